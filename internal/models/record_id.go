package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const persistedPrefix = "data_"

// RecordID is either a storage-assigned id or a pending token for a row
// that has not been saved yet. The zero value is invalid.
type RecordID struct {
	persisted uint64
	token     string
}

func PersistedID(id uint64) RecordID { return RecordID{persisted: id} }

func PendingID(token string) RecordID { return RecordID{token: token} }

// ParseRecordID accepts "data_<n>" and bare "<n>" as persisted ids.
// Anything else non-empty is a pending token.
func ParseRecordID(s string) RecordID {
	s = strings.TrimSpace(s)
	if s == "" {
		return RecordID{}
	}
	digits := strings.TrimPrefix(s, persistedPrefix)
	if n, err := strconv.ParseUint(digits, 10, 64); err == nil && n > 0 {
		return PersistedID(n)
	}
	return PendingID(s)
}

func (id RecordID) Persisted() (uint64, bool) {
	return id.persisted, id.persisted > 0
}

func (id RecordID) IsPending() bool { return id.persisted == 0 && id.token != "" }

func (id RecordID) IsZero() bool { return id.persisted == 0 && id.token == "" }

func (id RecordID) String() string {
	if id.persisted > 0 {
		return persistedPrefix + strconv.FormatUint(id.persisted, 10)
	}
	return id.token
}

func (id RecordID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *RecordID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = RecordID{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return errors.Wrap(err, "record id")
		}
		*id = ParseRecordID(s)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "record id")
	}
	*id = PersistedID(n)
	return nil
}
