package auditlog

import (
	"testing"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/stretchr/testify/require"
)

var editor = models.Principal{ID: "7", Username: "manager1", Role: models.RoleManager}

func TestAppend_IsAppendOnly(t *testing.T) {
	rec := models.NewShipmentRecord(models.PersistedID(1))
	first := models.AuditLogEntry{EditorName: "a", ChangedFields: []string{"x"}}
	second := models.AuditLogEntry{EditorName: "b", ChangedFields: []string{"y"}}

	r1 := Append(rec, first)
	r2 := Append(r1, second)

	require.Empty(t, rec.Logs)
	require.Len(t, r1.Logs, 1)
	require.Len(t, r2.Logs, 2)
	require.Equal(t, r1.Logs[0], r2.Logs[0])
	require.Equal(t, "b", r2.Logs[1].EditorName)
}

func TestNewEntry_ExcludesDerivedTotals(t *testing.T) {
	before := models.NewShipmentRecord(models.PersistedID(1))
	before.Billing.Freight = models.Number(100)
	before.Set(models.FieldDriverName, models.String("Kim"))
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))

	e := NewEntry(editor, before, map[string]models.Value{
		models.FieldBillingFreight: models.Number(120),
		models.FieldBillingTotal:   models.Number(500),
		models.FieldDriverName:     models.String("Lee"),
	}, false, now)

	require.Equal(t, []string{models.FieldDriverName, models.FieldBillingFreight}, e.ChangedFields)
	require.Equal(t, "100", e.OldValues[models.FieldBillingFreight].String())
	require.Equal(t, "120", e.NewValues[models.FieldBillingFreight].String())
	require.Equal(t, "Kim", e.OldValues[models.FieldDriverName].String())
	require.NotContains(t, e.OldValues, models.FieldBillingTotal)
	require.NotContains(t, e.NewValues, models.FieldBillingTotal)
	require.Equal(t, "manager1", e.EditorName)
	require.Equal(t, models.RoleManager, e.EditorRole)
	require.False(t, e.IsBulkEdit)
	require.Equal(t, time.UTC, e.Timestamp.Location())
}

func TestSanitize(t *testing.T) {
	e := Sanitize(models.AuditLogEntry{
		ChangedFields: []string{models.FieldPaymentTotal, models.FieldOrigin},
		OldValues:     map[string]models.Value{models.FieldPaymentTotal: models.Number(1), models.FieldOrigin: models.String("Busan")},
		NewValues:     map[string]models.Value{models.FieldPaymentTotal: models.Number(2), models.FieldOrigin: models.String("Seoul")},
		IsBulkEdit:    true,
	})
	require.Equal(t, []string{models.FieldOrigin}, e.ChangedFields)
	require.Len(t, e.OldValues, 1)
	require.Len(t, e.NewValues, 1)
	require.True(t, e.IsBulkEdit)
}
