package models

import "github.com/pkg/errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrCredentialMismatch = errors.New("invoice credential mismatch")
	ErrRecordLocked       = errors.New("record is invoice-locked")
	ErrNotFound           = errors.New("record not found")
	ErrRateLimited        = errors.New("rate limited")
)
