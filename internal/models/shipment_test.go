package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRecordID(t *testing.T) {
	id := ParseRecordID("data_42")
	n, ok := id.Persisted()
	require.True(t, ok)
	require.Equal(t, uint64(42), n)
	require.Equal(t, "data_42", id.String())

	id = ParseRecordID("7")
	n, ok = id.Persisted()
	require.True(t, ok)
	require.Equal(t, uint64(7), n)

	for _, tok := range []string{"temp_sheet_1700000000_3", "sheet_abc_1", "temp_9", "data_", "data_x"} {
		id := ParseRecordID(tok)
		_, ok := id.Persisted()
		require.False(t, ok, tok)
		require.True(t, id.IsPending(), tok)
		require.Equal(t, tok, id.String())
	}

	require.True(t, ParseRecordID("  ").IsZero())
}

func TestRecordID_JSON(t *testing.T) {
	var ids []RecordID
	require.NoError(t, json.Unmarshal([]byte(`["data_3", 5, "temp_1", null]`), &ids))
	require.Len(t, ids, 4)

	n, ok := ids[0].Persisted()
	require.True(t, ok)
	require.Equal(t, uint64(3), n)
	n, ok = ids[1].Persisted()
	require.True(t, ok)
	require.Equal(t, uint64(5), n)
	require.True(t, ids[2].IsPending())
	require.True(t, ids[3].IsZero())

	b, err := json.Marshal(PersistedID(9))
	require.NoError(t, err)
	require.JSONEq(t, `"data_9"`, string(b))
}

func TestValue_JSON(t *testing.T) {
	var m map[string]Value
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":12.5,"c":null,"d":true}`), &m))

	require.Equal(t, "x", m["a"].String())
	f, ok := m["b"].Float()
	require.True(t, ok)
	require.Equal(t, 12.5, f)
	require.True(t, m["c"].IsBlank())
	require.Equal(t, "true", m["d"].String())

	b, err := json.Marshal(Number(100))
	require.NoError(t, err)
	require.Equal(t, "100", string(b))
}

func TestShipmentRecord_JSONRoundTripKeepsFlatShape(t *testing.T) {
	in := `{
  "id": "data_1",
  "일시": "240115",
  "청구운임": "1,000",
  "유류비1": 200,
  "autoCalculatedFields": ["청구계"],
  "isInvoiceLocked": true,
  "invoiceMemo": "March",
  "invoicePassword": "0000",
  "sheetName": "Jan",
  "selected": true
}`
	var rec ShipmentRecord
	require.NoError(t, json.Unmarshal([]byte(in), &rec))

	require.Equal(t, "data_1", rec.ID.String())
	require.Equal(t, "240115", rec.Date())
	require.Equal(t, "1,000", rec.Get(FieldBillingFreight).String())
	require.True(t, rec.Get(FieldFuel).IsNumber())
	require.Equal(t, "1,000", rec.Billing.Freight.String())
	_, inBag := rec.Fields[FieldBillingFreight]
	require.False(t, inBag)
	require.True(t, rec.IsInvoiceLocked)
	require.Empty(t, rec.InvoicePasswordHash)
	_, isField := rec.Fields["invoicePassword"]
	require.False(t, isField)

	rec.InvoicePasswordHash = "secret-hash"
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NotContains(t, string(out), "secret-hash")

	var flat map[string]any
	require.NoError(t, json.Unmarshal(out, &flat))
	require.Equal(t, "240115", flat["일시"])
	require.Equal(t, "1,000", flat["청구운임"])
	require.Equal(t, float64(200), flat["유류비1"])
	_, hasPayment := flat["지급운임"]
	require.False(t, hasPayment)
	require.Equal(t, "March", flat["invoiceMemo"])
	require.Equal(t, []any{}, flat["logs"])
}

func TestShipmentRecord_CloneIsDeep(t *testing.T) {
	r := NewShipmentRecord(PersistedID(1))
	r.Set(FieldDriverName, String("Kim"))
	r.MarkAutoCalculated(FieldBillingTotal)
	r.Logs = []AuditLogEntry{{ChangedFields: []string{"a"}, NewValues: map[string]Value{"a": String("1")}}}

	c := r.Clone()
	c.Set(FieldDriverName, String("Lee"))
	c.MarkAutoCalculated(FieldPaymentTotal)
	c.Logs[0].ChangedFields[0] = "b"
	c.Logs[0].NewValues["a"] = String("2")

	require.Equal(t, "Kim", r.Get(FieldDriverName).String())
	require.Equal(t, []string{FieldBillingTotal}, r.AutoCalculatedFields)
	require.Equal(t, "a", r.Logs[0].ChangedFields[0])
	require.Equal(t, "1", r.Logs[0].NewValues["a"].String())
}

func TestRole_CanWrite(t *testing.T) {
	require.True(t, RoleAdmin.CanWrite())
	require.True(t, RoleManager.CanWrite())
	require.False(t, RoleDriver.CanWrite())
	require.False(t, RoleClerk.CanWrite())
	require.False(t, Role("guest").Valid())
}
