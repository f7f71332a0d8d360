// Package sheetimport turns raw worksheet rows into canonical shipment records.
package sheetimport

import (
	"strconv"
	"strings"

	"github.com/BearBump/CargoLedger/internal/integrations/sheets"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const SourceGoogleSheet = "google_sheet"

// ComputedColumns are recomputed by the application and never taken from a sheet.
var ComputedColumns = []string{
	models.FieldBillingTotal,
	models.FieldPaymentTotal,
	"수수료율퍼센트",
	"수수료",
	"위탁수수료",
	"수익",
	"실공급액",
	"부가세",
	"합계",
}

var computed = func() map[string]struct{} {
	m := make(map[string]struct{}, len(ComputedColumns))
	for _, c := range ComputedColumns {
		m[c] = struct{}{}
	}
	return m
}()

type Normalizer struct {
	newBatch func() string
	source   string
}

func New() *Normalizer {
	return &Normalizer{newBatch: uuid.NewString, source: SourceGoogleSheet}
}

// WithSource returns a copy that tags records with a different provenance.
func (n *Normalizer) WithSource(source string) *Normalizer {
	c := *n
	c.source = source
	return &c
}

// Normalize maps each non-blank row to a record keyed by the header row.
// Every call gets its own batch token, so pending ids never collide across
// imports or with persisted ids.
func (n *Normalizer) Normalize(t sheets.Table) []*models.ShipmentRecord {
	header := make([]string, len(t.Header))
	for i, h := range t.Header {
		header[i] = norm.NFC.String(strings.TrimSpace(h))
	}

	batch := n.newBatch()
	out := make([]*models.ShipmentRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		if isBlankRow(row) {
			continue
		}

		rec := models.NewShipmentRecord(models.PendingID("sheet_" + batch + "_" + strconv.Itoa(len(out))))
		for i, h := range header {
			if h == "" {
				continue
			}
			if _, skip := computed[h]; skip {
				continue
			}
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			rec.Set(h, models.String(cell))
		}
		if !rec.Has(models.FieldDate) {
			rec.Set(models.FieldDate, models.String(""))
		}
		rec.Selected = false
		rec.SheetName = t.Title
		rec.Source = n.source
		out = append(out, rec)
	}
	return out
}

// Headers returns the normalized, non-empty header names of t.
func Headers(t sheets.Table) []string {
	out := make([]string, 0, len(t.Header))
	for _, h := range t.Header {
		h = norm.NFC.String(strings.TrimSpace(h))
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
