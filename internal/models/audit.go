package models

import "time"

// AuditLogEntry records one edit action against one record.
type AuditLogEntry struct {
	Timestamp     time.Time        `json:"timestamp"`
	EditorName    string           `json:"editorName"`
	EditorRole    Role             `json:"editorRole"`
	ChangedFields []string         `json:"changedFields"`
	OldValues     map[string]Value `json:"oldValues"`
	NewValues     map[string]Value `json:"newValues"`
	IsBulkEdit    bool             `json:"isBulkEdit"`
}

func (e AuditLogEntry) Clone() AuditLogEntry {
	c := e
	c.ChangedFields = append([]string(nil), e.ChangedFields...)
	c.OldValues = cloneValues(e.OldValues)
	c.NewValues = cloneValues(e.NewValues)
	return c
}

func cloneValues(m map[string]Value) map[string]Value {
	if m == nil {
		return nil
	}
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
