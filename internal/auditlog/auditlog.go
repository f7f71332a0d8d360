package auditlog

import (
	"sort"
	"time"

	"github.com/BearBump/CargoLedger/internal/calc"
	"github.com/BearBump/CargoLedger/internal/models"
)

// Append returns a copy of rec with entry added at the end of its log.
// Earlier entries are never touched.
func Append(rec *models.ShipmentRecord, entry models.AuditLogEntry) *models.ShipmentRecord {
	out := rec.Clone()
	out.Logs = append(out.Logs, entry.Clone())
	return out
}

// NewEntry builds a log entry from the changes the editor intended, with old values
// taken from before. Derived totals are dropped: they are consequences, not edits.
func NewEntry(editor models.Principal, before *models.ShipmentRecord, changes map[string]models.Value, bulk bool, now time.Time) models.AuditLogEntry {
	e := models.AuditLogEntry{
		Timestamp:     now.UTC(),
		EditorName:    editor.Username,
		EditorRole:    editor.Role,
		ChangedFields: make([]string, 0, len(changes)),
		OldValues:     make(map[string]models.Value, len(changes)),
		NewValues:     make(map[string]models.Value, len(changes)),
		IsBulkEdit:    bulk,
	}
	for field, v := range changes {
		if calc.IsDerived(field) {
			continue
		}
		e.ChangedFields = append(e.ChangedFields, field)
		e.OldValues[field] = before.Get(field)
		e.NewValues[field] = v
	}
	sort.Strings(e.ChangedFields)
	return e
}

// Sanitize strips derived totals from an entry supplied by a client.
func Sanitize(e models.AuditLogEntry) models.AuditLogEntry {
	out := e.Clone()
	fields := out.ChangedFields[:0]
	for _, f := range out.ChangedFields {
		if !calc.IsDerived(f) {
			fields = append(fields, f)
		}
	}
	out.ChangedFields = fields
	for _, f := range []string{models.FieldBillingTotal, models.FieldPaymentTotal} {
		delete(out.OldValues, f)
		delete(out.NewValues, f)
	}
	return out
}
