package googlesheets

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	readonlyScope   = "https://www.googleapis.com/auth/spreadsheets.readonly"
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	grantType       = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// ServiceAccount is the subset of a Google credentials.json the token exchange needs.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

func LoadServiceAccount(path string) (ServiceAccount, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ServiceAccount{}, errors.Wrap(err, "read credentials")
	}
	var sa ServiceAccount
	if err := json.Unmarshal(b, &sa); err != nil {
		return ServiceAccount{}, errors.Wrap(err, "decode credentials")
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return ServiceAccount{}, errors.New("credentials: client_email or private_key missing")
	}
	return sa, nil
}

// TokenSource exchanges a signed service-account assertion for an access token
// and reuses it until shortly before it expires.
type TokenSource struct {
	email    string
	tokenURI string
	key      *rsa.PrivateKey
	httpc    *http.Client
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewTokenSource(sa ServiceAccount) (*TokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	tokenURI := sa.TokenURI
	if tokenURI == "" {
		tokenURI = defaultTokenURI
	}
	return &TokenSource{
		email:    sa.ClientEmail,
		tokenURI: tokenURI,
		key:      key,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}, nil
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	if ts.token != "" && now.Add(time.Minute).Before(ts.expires) {
		return ts.token, nil
	}

	claims := jwt.MapClaims{
		"iss":   ts.email,
		"scope": readonlyScope,
		"aud":   ts.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(ts.key)
	if err != nil {
		return "", errors.Wrap(err, "sign assertion")
	}

	form := url.Values{"grant_type": {grantType}, "assertion": {assertion}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "new token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "token request")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("token endpoint http %d", resp.StatusCode)
	}

	var tr tokenResp
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", errors.Wrap(err, "decode token")
	}
	if tr.AccessToken == "" {
		return "", errors.New("token endpoint returned no access_token")
	}

	ts.token = tr.AccessToken
	ts.expires = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	return ts.token, nil
}
