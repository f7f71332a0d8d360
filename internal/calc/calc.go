// Package calc keeps the derived billing and payment totals of a shipment in step with their inputs.
package calc

import (
	"strings"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

var (
	BillingInputs = []string{models.FieldBillingFreight, models.FieldFuel, models.FieldToll, models.FieldBillingExtra}
	PaymentInputs = []string{models.FieldPaymentFreight, models.FieldPaymentExtra1, models.FieldPaymentExtra2}
)

func IsBillingInput(field string) bool { return contains(BillingInputs, field) }

func IsPaymentInput(field string) bool { return contains(PaymentInputs, field) }

// IsDerived reports whether field is one of the computed totals.
func IsDerived(field string) bool {
	return field == models.FieldBillingTotal || field == models.FieldPaymentTotal
}

// ParseAmount coerces a cell to a number. Thousands separators and full-width
// digits are accepted; anything else that does not parse counts as zero.
func ParseAmount(v models.Value) decimal.Decimal {
	if f, ok := v.Float(); ok {
		return decimal.NewFromFloat(f)
	}
	s := strings.TrimSpace(width.Narrow.String(v.String()))
	s = strings.NewReplacer(",", "", " ", "", "₩", "", "원", "").Replace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Recompute sets field to value and, when field is an input of a derived total,
// refreshes that total and marks it auto-calculated. A value written to a total
// itself is kept as entered and loses the auto-calculated flag.
// The input record is not modified.
func Recompute(rec *models.ShipmentRecord, field string, value models.Value) *models.ShipmentRecord {
	return RecomputeTotals(rec, map[string]models.Value{field: value})
}

// RecomputeTotals applies several field changes at once and refreshes each
// affected total a single time. A manual value for a total wins over recomputation.
func RecomputeTotals(rec *models.ShipmentRecord, changes map[string]models.Value) *models.ShipmentRecord {
	out := rec.Clone()
	var billing, payment bool
	for field, v := range changes {
		out.Set(field, v)
		billing = billing || IsBillingInput(field)
		payment = payment || IsPaymentInput(field)
	}

	if _, manual := changes[models.FieldBillingTotal]; manual {
		out.UnmarkAutoCalculated(models.FieldBillingTotal)
	} else if billing {
		applyBilling(out)
	}
	if _, manual := changes[models.FieldPaymentTotal]; manual {
		out.UnmarkAutoCalculated(models.FieldPaymentTotal)
	} else if payment {
		applyPayment(out)
	}
	return out
}

// RecalculateBilling refreshes 청구계 from the current inputs.
func RecalculateBilling(rec *models.ShipmentRecord) *models.ShipmentRecord {
	out := rec.Clone()
	applyBilling(out)
	return out
}

// RecalculatePayment refreshes 지급계 from the current inputs.
func RecalculatePayment(rec *models.ShipmentRecord) *models.ShipmentRecord {
	out := rec.Clone()
	applyPayment(out)
	return out
}

func BillingTotal(b models.Billing) float64 {
	return sum(b.Freight, b.Fuel, b.Toll, b.Extra)
}

func PaymentTotal(p models.Payment) float64 {
	return sum(p.Freight, p.Extra1, p.Extra2)
}

func applyBilling(rec *models.ShipmentRecord) {
	rec.Billing.Total = models.Number(BillingTotal(rec.Billing))
	rec.MarkAutoCalculated(models.FieldBillingTotal)
}

func applyPayment(rec *models.ShipmentRecord) {
	rec.Payment.Total = models.Number(PaymentTotal(rec.Payment))
	rec.MarkAutoCalculated(models.FieldPaymentTotal)
}

func sum(values ...models.Value) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(ParseAmount(v))
	}
	f, _ := total.Float64()
	return f
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
