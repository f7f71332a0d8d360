package calc

import (
	"testing"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/stretchr/testify/require"
)

func billingRecord(a, b, c, d models.Value) *models.ShipmentRecord {
	r := models.NewShipmentRecord(models.PersistedID(1))
	r.Billing = models.Billing{Freight: a, Fuel: b, Toll: c, Extra: d}
	return r
}

func total(t *testing.T, v models.Value) float64 {
	t.Helper()
	f, ok := v.Float()
	require.True(t, ok, "total must be numeric, got %q", v.String())
	return f
}

func TestRecompute_BillingTotal(t *testing.T) {
	r := billingRecord(models.Number(100), models.Number(50), models.Number(10), models.Number(0))

	out := Recompute(r, models.FieldBillingFreight, models.Number(100))
	require.Equal(t, float64(160), total(t, out.Billing.Total))
	require.True(t, out.IsAutoCalculated(models.FieldBillingTotal))
	require.False(t, out.IsAutoCalculated(models.FieldPaymentTotal))
}

func TestRecompute_UsesNewValueForChangedInput(t *testing.T) {
	r := billingRecord(models.Number(1), models.Number(2), models.Number(3), models.Number(4))

	out := Recompute(r, models.FieldToll, models.String("30"))
	require.Equal(t, float64(1+2+30+4), total(t, out.Billing.Total))
	require.Equal(t, "30", out.Billing.Toll.String())
}

func TestRecompute_NonNumericCoercesToZero(t *testing.T) {
	r := billingRecord(models.String("abc"), models.String(""), models.Value{}, models.String("1,250"))

	out := Recompute(r, models.FieldFuel, models.String("  "))
	require.Equal(t, float64(1250), total(t, out.Billing.Total))
}

func TestRecompute_PaymentTotal(t *testing.T) {
	r := models.NewShipmentRecord(models.PendingID("temp_1"))
	r.Payment = models.Payment{Freight: models.String("700"), Extra1: models.Number(20.5)}
	r.AutoCalculatedFields = []string{models.FieldBillingTotal}

	out := Recompute(r, models.FieldPaymentExtra2, models.Number(9.5))
	require.Equal(t, float64(730), total(t, out.Payment.Total))
	require.ElementsMatch(t, []string{models.FieldBillingTotal, models.FieldPaymentTotal}, out.AutoCalculatedFields)
}

func TestRecompute_NonInputFieldLeavesTotalsAlone(t *testing.T) {
	r := billingRecord(models.Number(1), models.Number(1), models.Number(1), models.Number(1))
	r.Billing.Total = models.Number(999)

	out := Recompute(r, models.FieldDriverName, models.String("Park"))
	require.Equal(t, "Park", out.Get(models.FieldDriverName).String())
	require.Equal(t, float64(999), total(t, out.Billing.Total))
	require.Empty(t, out.AutoCalculatedFields)
}

func TestRecompute_ManualTotalKeptAndUnflagged(t *testing.T) {
	r := billingRecord(models.Number(1), models.Number(1), models.Number(1), models.Number(1))
	r = Recompute(r, models.FieldFuel, models.Number(2))
	require.True(t, r.IsAutoCalculated(models.FieldBillingTotal))

	out := Recompute(r, models.FieldBillingTotal, models.Number(100))
	require.Equal(t, float64(100), total(t, out.Billing.Total))
	require.False(t, out.IsAutoCalculated(models.FieldBillingTotal))
	require.Equal(t, "2", out.Billing.Fuel.String())

	// следующая правка входа снова считает итог
	again := Recompute(out, models.FieldToll, models.Number(3))
	require.Equal(t, float64(7), total(t, again.Billing.Total))
	require.True(t, again.IsAutoCalculated(models.FieldBillingTotal))
}

func TestRecompute_DoesNotMutateInput(t *testing.T) {
	r := billingRecord(models.Number(1), models.Number(2), models.Number(3), models.Number(4))

	_ = Recompute(r, models.FieldBillingFreight, models.Number(10))
	require.Equal(t, "1", r.Billing.Freight.String())
	require.True(t, r.Billing.Total.IsZero())
	require.Empty(t, r.AutoCalculatedFields)
}

func TestRecompute_Idempotent(t *testing.T) {
	r := billingRecord(models.Number(5), models.Number(6), models.Number(7), models.Number(8))

	once := Recompute(r, models.FieldFuel, models.Number(60))
	twice := Recompute(once, models.FieldFuel, models.Number(60))
	require.Equal(t, once.Billing, twice.Billing)
	require.Equal(t, once.AutoCalculatedFields, twice.AutoCalculatedFields)
}

func TestRecomputeTotals_MultiFieldAndManualOverride(t *testing.T) {
	r := billingRecord(models.Number(1), models.Number(1), models.Number(1), models.Number(1))
	r.AutoCalculatedFields = []string{models.FieldBillingTotal, models.FieldPaymentTotal}

	out := RecomputeTotals(r, map[string]models.Value{
		models.FieldBillingFreight: models.Number(10),
		models.FieldFuel:           models.Number(20),
		models.FieldPaymentTotal:   models.Number(5),
	})
	require.Equal(t, float64(32), total(t, out.Billing.Total))
	require.Equal(t, float64(5), total(t, out.Payment.Total))
	require.Equal(t, []string{models.FieldBillingTotal}, out.AutoCalculatedFields)
}

func TestRecalculate_ExplicitColumns(t *testing.T) {
	r := billingRecord(models.Number(1), models.Number(2), models.Number(3), models.Number(4))
	r.Payment = models.Payment{Freight: models.Number(10), Extra1: models.Number(10), Extra2: models.Number(10)}

	b := RecalculateBilling(r)
	require.Equal(t, float64(10), total(t, b.Billing.Total))
	require.Equal(t, []string{models.FieldBillingTotal}, b.AutoCalculatedFields)

	p := RecalculatePayment(r)
	require.Equal(t, float64(30), total(t, p.Payment.Total))
	require.Equal(t, []string{models.FieldPaymentTotal}, p.AutoCalculatedFields)
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"1,234":    "1234",
		"１２３":      "123",
		" 42.5 ":   "42.5",
		"-300":     "-300",
		"12,000원":  "12000",
		"abc":      "0",
		"":         "0",
		"12abc":    "0",
	}
	for in, want := range cases {
		require.Equal(t, want, ParseAmount(models.String(in)).String(), in)
	}
	require.Equal(t, "7.25", ParseAmount(models.Number(7.25)).String())
}

func TestIsDerived(t *testing.T) {
	require.True(t, IsDerived(models.FieldBillingTotal))
	require.True(t, IsDerived(models.FieldPaymentTotal))
	require.False(t, IsDerived(models.FieldBillingFreight))
}
