package xlsxfile

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/BearBump/CargoLedger/internal/integrations/sheets"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

var ErrNotXLSX = errors.New("only .xlsx files can be uploaded")

// Read parses the first worksheet of an uploaded workbook. The table title is
// the worksheet name, or the file name when the worksheet is unnamed.
func Read(r io.Reader, filename string) (sheets.Table, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return sheets.Table{}, ErrNotXLSX
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return sheets.Table{}, errors.Wrap(err, "open workbook")
	}
	defer func() { _ = f.Close() }()

	list := f.GetSheetList()
	if len(list) == 0 {
		return sheets.Table{}, errors.New("workbook has no worksheets")
	}
	name := list[0]

	rows, err := f.GetRows(name)
	if err != nil {
		return sheets.Table{}, errors.Wrapf(err, "read worksheet %q", name)
	}

	title := name
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return sheets.FromValues(title, rows), nil
}
