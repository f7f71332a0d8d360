// Package invoice implements the two-state invoice lock of a shipment record.
//
// A locked record is frozen against edits until the lock credential is presented.
// The credential is a fixed default unless the operator configures another one;
// only its bcrypt hash is stored on the record.
package invoice

import (
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const DefaultPassword = "0000"

var (
	ErrAlreadyLocked = errors.New("invoice already locked")
	ErrNotLocked     = errors.New("invoice is not locked")
)

type Locker struct {
	password string
	cost     int
}

// New returns a Locker using password as the lock credential. Empty means DefaultPassword.
func New(password string) *Locker {
	if password == "" {
		password = DefaultPassword
	}
	return &Locker{password: password, cost: bcrypt.DefaultCost}
}

// Lock moves rec from UNLOCKED to LOCKED and stores memo with the credential hash.
func (l *Locker) Lock(rec *models.ShipmentRecord, memo string) error {
	if rec.IsInvoiceLocked {
		return ErrAlreadyLocked
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(l.password), l.cost)
	if err != nil {
		return errors.Wrap(err, "hash invoice credential")
	}
	rec.IsInvoiceLocked = true
	rec.InvoiceMemo = memo
	rec.InvoicePasswordHash = string(hash)
	return nil
}

// Unlock moves rec back to UNLOCKED when attempt matches the stored credential.
// On mismatch rec is left untouched. Memo and hash stay on the record.
func (l *Locker) Unlock(rec *models.ShipmentRecord, attempt string) error {
	if !rec.IsInvoiceLocked {
		return ErrNotLocked
	}
	if !l.matches(rec, attempt) {
		return models.ErrCredentialMismatch
	}
	rec.IsInvoiceLocked = false
	return nil
}

func (l *Locker) matches(rec *models.ShipmentRecord, attempt string) bool {
	if rec.InvoicePasswordHash == "" {
		// запись залочена до появления хеша: сверяем с текущим паролем
		return attempt == l.password
	}
	return bcrypt.CompareHashAndPassword([]byte(rec.InvoicePasswordHash), []byte(attempt)) == nil
}
