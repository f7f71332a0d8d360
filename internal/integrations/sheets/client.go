package sheets

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
)

// Table is a raw worksheet: the first row split off as Header, the rest as Rows.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

type Client interface {
	Fetch(ctx context.Context, url string) (Table, error)
}

var ErrInvalidURL = errors.New("spreadsheet id not found in url")

var (
	reSheetID = regexp.MustCompile(`/d/([a-zA-Z0-9-_]+)`)
	reGID     = regexp.MustCompile(`gid=([0-9]+)`)
)

// ExtractSheetID pulls the spreadsheet id out of a docs.google.com url.
func ExtractSheetID(url string) (string, error) {
	m := reSheetID.FindStringSubmatch(url)
	if m == nil {
		return "", ErrInvalidURL
	}
	return m[1], nil
}

// ExtractGID returns the worksheet gid from the url fragment or query, or "" when absent.
func ExtractGID(url string) string {
	m := reGID.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

// FromValues splits raw sheet values into a Table.
func FromValues(title string, values [][]string) Table {
	t := Table{Title: title}
	if len(values) == 0 {
		return t
	}
	t.Header = values[0]
	t.Rows = values[1:]
	return t
}
