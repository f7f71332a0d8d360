package sheets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractSheetID(t *testing.T) {
	id, err := ExtractSheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9xYz/edit#gid=123")
	require.NoError(t, err)
	require.Equal(t, "1AbC-d_9xYz", id)

	_, err = ExtractSheetID("https://example.com/sheet")
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestExtractGID(t *testing.T) {
	require.Equal(t, "123", ExtractGID("https://docs.google.com/spreadsheets/d/x/edit#gid=123"))
	require.Equal(t, "0", ExtractGID("https://docs.google.com/spreadsheets/d/x/edit?gid=0"))
	require.Equal(t, "", ExtractGID("https://docs.google.com/spreadsheets/d/x/edit"))
}

func TestFromValues(t *testing.T) {
	tbl := FromValues("Jan", [][]string{{"일시", "기사명"}, {"240101", "Kim"}})
	require.Equal(t, "Jan", tbl.Title)
	require.Equal(t, []string{"일시", "기사명"}, tbl.Header)
	require.Len(t, tbl.Rows, 1)

	empty := FromValues("Feb", nil)
	require.Empty(t, empty.Header)
	require.Empty(t, empty.Rows)
}
