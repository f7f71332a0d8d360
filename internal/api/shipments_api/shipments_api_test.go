package shipments_api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/CargoLedger/internal/auth"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/shipments"
	"github.com/BearBump/CargoLedger/internal/storage/pgshipments/pgshipmentstest"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const secret = "api-test"

type client struct {
	t     *testing.T
	srv   *httptest.Server
	token string
}

func newClient(t *testing.T, srv *httptest.Server, p models.Principal) *client {
	tok, err := auth.GenerateToken(secret, p, time.Hour)
	require.NoError(t, err)
	return &client{t: t, srv: srv, token: tok}
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rd)
	require.NoError(c.t, err)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *client) send(req *http.Request, out any) int {
	c.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func newServer(t *testing.T) (*httptest.Server, *pgshipmentstest.Store) {
	store := pgshipmentstest.New()
	svc := shipments.New(store, nil, shipments.Options{})
	srv := httptest.NewServer(New(svc).Router(auth.Middleware(secret)))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestShipmentsAPI_Flow(t *testing.T) {
	srv, store := newServer(t)
	admin := newClient(t, srv, models.Principal{ID: "1", Username: "admin", Role: models.RoleAdmin})
	driver := newClient(t, srv, models.Principal{ID: "3", Username: "park", Role: models.RoleDriver})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/shipments")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := json.RawMessage(`{"shipments":[
		{"id":"temp_1","일시":"240101","기사명":"Kim","청구운임":100,"유류비1":50,"톨비2":10,"청구추가":0},
		{"id":"temp_2","일시":"240201","기사명":"Lee"}
	]}`)
	require.Equal(t, http.StatusForbidden, driver.do(http.MethodPost, "/shipments/save", body, nil))

	var saved models.SaveResult
	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, "/shipments/save", body, &saved))
	require.Equal(t, models.SaveResult{Inserted: 2}, saved)

	var list struct {
		Shipments []json.RawMessage `json:"shipments"`
		Stale     bool              `json:"stale"`
	}
	require.Equal(t, http.StatusOK, driver.do(http.MethodGet, "/shipments?driverName=kim", nil, &list))
	require.Len(t, list.Shipments, 1)
	require.False(t, list.Stale)

	ids := store.IDs()
	first := models.PersistedID(ids[0]).String()

	var rec map[string]any
	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, "/shipments/"+first+"/edit",
		map[string]any{"changes": map[string]any{"청구운임": 200}}, &rec))
	require.EqualValues(t, 260, rec["청구계"])
	require.Len(t, rec["logs"], 1)

	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, "/shipments/invoice",
		map[string]any{"id": first, "memo": "march"}, &rec))
	require.Equal(t, true, rec["isInvoiceLocked"])
	require.NotContains(t, rec, "invoicePassword")

	require.Equal(t, http.StatusConflict, admin.do(http.MethodPost, "/shipments/bulk-update",
		map[string]any{"ids": []string{first}, "field": "상차지", "value": "Seoul"}, nil))
	require.Equal(t, http.StatusUnprocessableEntity, admin.do(http.MethodPost, "/shipments/invoice/unlock",
		map[string]any{"id": first, "password": "nope"}, nil))
	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, "/shipments/invoice/unlock",
		map[string]any{"id": first, "password": "0000"}, &rec))
	require.Equal(t, false, rec["isInvoiceLocked"])

	var dup struct {
		IDs []string `json:"ids"`
	}
	require.Equal(t, http.StatusCreated, admin.do(http.MethodPost, "/shipments/duplicate",
		map[string]any{"ids": []string{first}}, &dup))
	require.Len(t, dup.IDs, 1)

	require.Equal(t, http.StatusBadRequest, admin.do(http.MethodPost, "/shipments/recalculate",
		map[string]any{"ids": []string{first}, "column": "기사명"}, nil))
	require.Equal(t, http.StatusNotFound, admin.do(http.MethodGet, "/shipments/data_999", nil, nil))
	require.Equal(t, http.StatusBadRequest, admin.do(http.MethodGet, "/shipments?from=yesterday", nil, nil))
}

func TestShipmentsAPI_Sheets(t *testing.T) {
	srv, _ := newServer(t)
	manager := newClient(t, srv, models.Principal{ID: "2", Username: "kim", Role: models.RoleManager})

	// без клиента таблиц загрузка по ссылке невозможна
	require.Equal(t, http.StatusInternalServerError, manager.do(http.MethodPost, "/sheets/load", map[string]string{"url": "sample"}, nil))

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"일시", "기사명"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"240101", "Kim"}))
	var xlsx bytes.Buffer
	require.NoError(t, f.Write(&xlsx))

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "march.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/sheets/upload", &form)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+manager.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res shipments.ImportResult
	require.Equal(t, http.StatusOK, manager.send(req, &res))
	require.Len(t, res.Records, 1)
	require.NotEmpty(t, res.SessionID)

	var sessions struct {
		Sessions []models.SheetSession `json:"sessions"`
	}
	require.Equal(t, http.StatusOK, manager.do(http.MethodGet, "/sheets/sessions", nil, &sessions))
	require.Len(t, sessions.Sessions, 1)

	var deleted map[string]int64
	require.Equal(t, http.StatusOK, manager.do(http.MethodDelete, "/sheets/sessions/"+res.SessionID, nil, &deleted))
	require.Equal(t, int64(0), deleted["deleted"])
	require.Equal(t, http.StatusNotFound, manager.do(http.MethodDelete, "/sheets/sessions/"+res.SessionID, nil, nil))
}
