package pgshipments

import (
	"encoding/json"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
)

// Row is the stored shape of a shipment record. Well-known columns are
// mirrored out of all_data for filtering and session lookups.
type Row struct {
	ID uint64

	ShipDate      string
	Contractor    string
	Affiliation   string
	VehicleNumber string
	DriverName    string
	Contact       string
	Origin        string
	Destination   string
	Amount        string

	SourceSheet string
	AllData     []byte
	AutoCalc    []byte
	Logs        []byte

	IsInvoiceLocked     bool
	InvoiceMemo         string
	InvoicePasswordHash string

	Source    string
	CreatedBy string
	SessionID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EncodeRecord builds the stored form of rec. For pending ids Row.ID is 0.
func EncodeRecord(rec *models.ShipmentRecord) (Row, error) {
	cols := rec.Columns()
	allData, err := json.Marshal(cols)
	if err != nil {
		return Row{}, errors.Wrap(err, "encode all_data")
	}

	auto := rec.AutoCalculatedFields
	if auto == nil {
		auto = []string{}
	}
	autoCalc, err := json.Marshal(auto)
	if err != nil {
		return Row{}, errors.Wrap(err, "encode auto_calculated_fields")
	}

	logs := rec.Logs
	if logs == nil {
		logs = []models.AuditLogEntry{}
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return Row{}, errors.Wrap(err, "encode logs")
	}

	r := Row{
		ShipDate:            rec.Get(models.FieldDate).String(),
		Contractor:          rec.Get(models.FieldContractor).String(),
		Affiliation:         rec.Get(models.FieldAffiliation).String(),
		VehicleNumber:       rec.Get(models.FieldVehicleNumber).String(),
		DriverName:          rec.Get(models.FieldDriverName).String(),
		Contact:             rec.Get(models.FieldContact).String(),
		Origin:              rec.Get(models.FieldOrigin).String(),
		Destination:         rec.Get(models.FieldDestination).String(),
		Amount:              rec.Get(models.FieldAmount).String(),
		SourceSheet:         rec.SheetName,
		AllData:             allData,
		AutoCalc:            autoCalc,
		Logs:                logsJSON,
		IsInvoiceLocked:     rec.IsInvoiceLocked,
		InvoiceMemo:         rec.InvoiceMemo,
		InvoicePasswordHash: rec.InvoicePasswordHash,
		Source:              rec.Source,
		CreatedBy:           rec.CreatedBy,
	}
	if id, ok := rec.ID.Persisted(); ok {
		r.ID = id
	}
	if rec.SessionID != "" {
		sid := rec.SessionID
		r.SessionID = &sid
	}
	return r, nil
}

func DecodeRow(r Row) (*models.ShipmentRecord, error) {
	rec := models.NewShipmentRecord(models.PersistedID(r.ID))

	var cols map[string]models.Value
	if len(r.AllData) > 0 {
		if err := json.Unmarshal(r.AllData, &cols); err != nil {
			return nil, errors.Wrapf(err, "decode all_data of %d", r.ID)
		}
	}
	for k, v := range cols {
		rec.Set(k, v)
	}

	if len(r.AutoCalc) > 0 {
		if err := json.Unmarshal(r.AutoCalc, &rec.AutoCalculatedFields); err != nil {
			return nil, errors.Wrapf(err, "decode auto_calculated_fields of %d", r.ID)
		}
	}
	if len(r.Logs) > 0 {
		if err := json.Unmarshal(r.Logs, &rec.Logs); err != nil {
			return nil, errors.Wrapf(err, "decode logs of %d", r.ID)
		}
	}

	rec.IsInvoiceLocked = r.IsInvoiceLocked
	rec.InvoiceMemo = r.InvoiceMemo
	rec.InvoicePasswordHash = r.InvoicePasswordHash
	rec.SheetName = r.SourceSheet
	rec.Source = r.Source
	rec.CreatedBy = r.CreatedBy
	if r.SessionID != nil {
		rec.SessionID = *r.SessionID
	}
	rec.CreatedAt = r.CreatedAt
	rec.UpdatedAt = r.UpdatedAt
	return rec, nil
}
