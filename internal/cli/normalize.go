package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/BearBump/CargoLedger/internal/calc"
	"github.com/BearBump/CargoLedger/internal/integrations/sheets/xlsxfile"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/shipments"
	"github.com/BearBump/CargoLedger/internal/sheetimport"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type NormalizeResult struct {
	SheetTitle string                   `json:"sheetTitle"`
	Headers    []string                 `json:"headers"`
	Records    []*models.ShipmentRecord `json:"shipments"`
}

// NewNormalizeCommand previews how an .xlsx export would be imported.
// Nothing is written to the database.
func NewNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	var recalc bool

	cmd := &cobra.Command{
		Use:          "normalize <file.xlsx>",
		Short:        "Normalize an .xlsx sheet into shipment records",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := normalizeFile(args[0], recalc)
			if err != nil {
				return err
			}
			return writeNormalizeResult(cmd, rootOpts.Format, res)
		},
	}
	cmd.Flags().BoolVar(&recalc, "recalculate", false, "fill billing and payment totals from their inputs")

	return cmd
}

func normalizeFile(path string, recalc bool) (NormalizeResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return NormalizeResult{}, errors.Wrap(err, "open sheet")
	}
	defer f.Close()

	t, err := xlsxfile.Read(f, path)
	if err != nil {
		return NormalizeResult{}, err
	}

	recs := sheetimport.New().WithSource(shipments.SourceXLSXUpload).Normalize(t)
	if recalc {
		for i, r := range recs {
			recs[i] = calc.RecalculatePayment(calc.RecalculateBilling(r))
		}
	}
	return NormalizeResult{SheetTitle: t.Title, Headers: sheetimport.Headers(t), Records: recs}, nil
}

func writeNormalizeResult(cmd *cobra.Command, format string, res NormalizeResult) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "sheet %q: %d records, %d columns\n", res.SheetTitle, len(res.Records), len(res.Headers))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tDRIVER\tBILLING\tPAYMENT")
	for _, r := range res.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Get(models.FieldDate), r.Get(models.FieldDriverName), r.Billing.Total, r.Payment.Total)
	}
	return tw.Flush()
}
