package xlsxfile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	require.NoError(t, f.SetSheetName("Sheet1", "3월"))
	require.NoError(t, f.SetSheetRow("3월", "A1", &[]any{"일시", "기사명", "청구운임"}))
	require.NoError(t, f.SetSheetRow("3월", "A2", &[]any{"240301", "Kim", 1000}))
	require.NoError(t, f.SetSheetRow("3월", "A3", &[]any{"240302", "Lee", 2000}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestRead_FirstWorksheet(t *testing.T) {
	tbl, err := Read(workbook(t), "march.XLSX")
	require.NoError(t, err)
	require.Equal(t, "3월", tbl.Title)
	require.Equal(t, []string{"일시", "기사명", "청구운임"}, tbl.Header)
	require.Equal(t, [][]string{{"240301", "Kim", "1000"}, {"240302", "Lee", "2000"}}, tbl.Rows)
}

func TestRead_RejectsOtherExtensions(t *testing.T) {
	_, err := Read(strings.NewReader("a,b"), "data.csv")
	require.ErrorIs(t, err, ErrNotXLSX)
}

func TestRead_CorruptWorkbook(t *testing.T) {
	_, err := Read(strings.NewReader("not a zip"), "broken.xlsx")
	require.Error(t, err)
}
