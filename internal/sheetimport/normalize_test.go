package sheetimport

import (
	"strconv"
	"strings"
	"testing"

	"github.com/BearBump/CargoLedger/internal/integrations/sheets"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func fixedBatches() func() string {
	n := 0
	return func() string {
		n++
		return "b" + strconv.Itoa(n)
	}
}

func TestNormalize_RowsHeadersAndProvenance(t *testing.T) {
	n := New()
	n.newBatch = fixedBatches()

	recs := n.Normalize(sheets.Table{
		Title:  "1월 운송",
		Header: []string{"일시", "", "기사명", "청구운임", "청구계", "합계", "부가세"},
		Rows: [][]string{
			{"240101", "ignored", "Kim", "1000", "9999", "1", "2"},
			{"", " ", "", "", "", "", ""},
			{"240102", "", "Lee"},
		},
	})

	require.Len(t, recs, 2)

	first := recs[0]
	require.Equal(t, "sheet_b1_0", first.ID.String())
	require.True(t, first.ID.IsPending())
	require.Equal(t, "240101", first.Date())
	require.Equal(t, "Kim", first.Get(models.FieldDriverName).String())
	require.Equal(t, "1000", first.Billing.Freight.String())
	require.True(t, first.Billing.Total.IsZero())
	require.NotContains(t, first.Fields, "합계")
	require.NotContains(t, first.Fields, "부가세")
	require.NotContains(t, first.Fields, "")
	require.False(t, first.Selected)
	require.Equal(t, "1월 운송", first.SheetName)
	require.Equal(t, SourceGoogleSheet, first.Source)

	second := recs[1]
	require.Equal(t, "sheet_b1_1", second.ID.String())
	require.Equal(t, "", second.Billing.Freight.String())
}

func TestNormalize_MissingDateColumnBecomesEmpty(t *testing.T) {
	recs := New().Normalize(sheets.Table{Header: []string{"기사명"}, Rows: [][]string{{"Kim"}}})
	require.Len(t, recs, 1)
	require.True(t, recs[0].Has(models.FieldDate))
	require.Equal(t, "", recs[0].Date())
}

func TestNormalize_BatchesNeverCollide(t *testing.T) {
	tbl := sheets.Table{Header: []string{"일시"}, Rows: [][]string{{"240101"}, {"240102"}}}
	n := New()

	a := n.Normalize(tbl)
	b := n.Normalize(tbl)
	seen := map[string]bool{}
	for _, r := range append(a, b...) {
		require.True(t, strings.HasPrefix(r.ID.String(), "sheet_"))
		_, persisted := r.ID.Persisted()
		require.False(t, persisted)
		require.False(t, seen[r.ID.String()])
		seen[r.ID.String()] = true
	}
}

func TestNormalize_HeaderNFC(t *testing.T) {
	decomposed := norm.NFD.String(models.FieldDriverName)
	require.NotEqual(t, models.FieldDriverName, decomposed)

	recs := New().Normalize(sheets.Table{Header: []string{decomposed}, Rows: [][]string{{"Kim"}}})
	require.Equal(t, "Kim", recs[0].Get(models.FieldDriverName).String())
}

func TestNormalize_WithSource(t *testing.T) {
	recs := New().WithSource("xlsx_upload").Normalize(sheets.Table{Header: []string{"일시"}, Rows: [][]string{{"1"}}})
	require.Equal(t, "xlsx_upload", recs[0].Source)
}

func TestHeaders(t *testing.T) {
	require.Equal(t, []string{"일시", "기사명"}, Headers(sheets.Table{Header: []string{" 일시 ", "", "기사명"}}))
}
