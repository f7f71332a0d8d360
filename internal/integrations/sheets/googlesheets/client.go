package googlesheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BearBump/CargoLedger/internal/integrations/sheets"
	"github.com/pkg/errors"
)

const defaultBaseURL = "https://sheets.googleapis.com"

// Client reads worksheets through the Sheets v4 REST API. Requests are
// authorized with an API key, a service account, or both.
type Client struct {
	baseURL string
	apiKey  string
	tokens  *TokenSource
	httpc   *http.Client
}

func New(baseURL, apiKey string, tokens *TokenSource) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		tokens:  tokens,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type spreadsheetResp struct {
	Sheets []struct {
		Properties struct {
			SheetID int64  `json:"sheetId"`
			Title   string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

type valuesResp struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// Fetch loads the worksheet the url points at. Without a gid, or with a gid
// that matches nothing, the first worksheet is used.
func (c *Client) Fetch(ctx context.Context, sheetURL string) (sheets.Table, error) {
	id, err := sheets.ExtractSheetID(sheetURL)
	if err != nil {
		return sheets.Table{}, err
	}
	gid := sheets.ExtractGID(sheetURL)

	var meta spreadsheetResp
	if err := c.get(ctx, "/v4/spreadsheets/"+url.PathEscape(id), url.Values{"fields": {"sheets.properties"}}, &meta); err != nil {
		return sheets.Table{}, errors.Wrap(err, "spreadsheet metadata")
	}
	if len(meta.Sheets) == 0 {
		return sheets.Table{}, errors.New("spreadsheet has no worksheets")
	}

	title := meta.Sheets[0].Properties.Title
	if gid != "" {
		for _, s := range meta.Sheets {
			if strconv.FormatInt(s.Properties.SheetID, 10) == gid {
				title = s.Properties.Title
				break
			}
		}
	}

	var vals valuesResp
	path := "/v4/spreadsheets/" + url.PathEscape(id) + "/values/" + url.PathEscape(title)
	if err := c.get(ctx, path, nil, &vals); err != nil {
		return sheets.Table{}, errors.Wrap(err, "spreadsheet values")
	}
	return sheets.FromValues(title, vals.Values), nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.RawPath = path
	u.Path, _ = url.PathUnescape(path)

	if q == nil {
		q = url.Values{}
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sheets api http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}
