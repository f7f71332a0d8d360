package messages

import "time"

const (
	KindSave      = "save"
	KindEdit      = "edit"
	KindBulkEdit  = "bulk_edit"
	KindDuplicate = "duplicate"
	KindLock      = "invoice_lock"
	KindUnlock    = "invoice_unlock"
	KindAudit     = "audit"
	KindSession   = "session_delete"
)

// ShipmentsChanged публикуется после каждого закоммиченного изменения таблицы.
type ShipmentsChanged struct {
	Kind  string `json:"kind"`
	Actor string `json:"actor"`

	Deleted  int64 `json:"deleted"`
	Updated  int64 `json:"updated"`
	Inserted int64 `json:"inserted"`

	RecordIDs []uint64 `json:"record_ids,omitempty"`

	At time.Time `json:"at"`
}
