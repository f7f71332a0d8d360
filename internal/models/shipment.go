package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Well-known columns. Everything else a sheet carries lives in Fields under its header name.
const (
	FieldDate          = "일시"
	FieldContractor    = "원청"
	FieldAffiliation   = "소속"
	FieldVehicleNumber = "차량번호"
	FieldDriverName    = "기사명"
	FieldContact       = "연락처"
	FieldOrigin        = "상차지"
	FieldDestination   = "하차지"
	FieldAmount        = "금액"

	FieldBillingFreight = "청구운임"
	FieldFuel           = "유류비1"
	FieldToll           = "톨비2"
	FieldBillingExtra   = "청구추가"
	FieldBillingTotal   = "청구계"

	FieldPaymentFreight = "지급운임"
	FieldPaymentExtra1  = "지급추가1"
	FieldPaymentExtra2  = "지급추가2"
	FieldPaymentTotal   = "지급계"
)

const ManualSheetName = "수동 입력"

// Billing holds the inputs of 청구계 and the total itself.
type Billing struct {
	Freight Value
	Fuel    Value
	Toll    Value
	Extra   Value
	Total   Value
}

// Payment holds the inputs of 지급계 and the total itself.
type Payment struct {
	Freight Value
	Extra1  Value
	Extra2  Value
	Total   Value
}

type ShipmentRecord struct {
	ID RecordID
	// Fields carries every other column, keyed by header name.
	Fields map[string]Value

	Billing Billing
	Payment Payment

	AutoCalculatedFields []string

	IsInvoiceLocked     bool
	InvoiceMemo         string
	InvoicePasswordHash string

	Logs []AuditLogEntry

	SheetName string
	SessionID string
	Source    string
	CreatedBy string
	Selected  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewShipmentRecord(id RecordID) *ShipmentRecord {
	return &ShipmentRecord{ID: id, Fields: map[string]Value{}}
}

func (r *ShipmentRecord) money(field string) *Value {
	switch field {
	case FieldBillingFreight:
		return &r.Billing.Freight
	case FieldFuel:
		return &r.Billing.Fuel
	case FieldToll:
		return &r.Billing.Toll
	case FieldBillingExtra:
		return &r.Billing.Extra
	case FieldBillingTotal:
		return &r.Billing.Total
	case FieldPaymentFreight:
		return &r.Payment.Freight
	case FieldPaymentExtra1:
		return &r.Payment.Extra1
	case FieldPaymentExtra2:
		return &r.Payment.Extra2
	case FieldPaymentTotal:
		return &r.Payment.Total
	}
	return nil
}

var moneyFields = []string{
	FieldBillingFreight, FieldFuel, FieldToll, FieldBillingExtra, FieldBillingTotal,
	FieldPaymentFreight, FieldPaymentExtra1, FieldPaymentExtra2, FieldPaymentTotal,
}

// Get returns a column by name. Money columns resolve to the typed members.
func (r *ShipmentRecord) Get(field string) Value {
	if p := r.money(field); p != nil {
		return *p
	}
	if r.Fields == nil {
		return Value{}
	}
	return r.Fields[field]
}

func (r *ShipmentRecord) Set(field string, v Value) {
	if p := r.money(field); p != nil {
		*p = v
		return
	}
	if r.Fields == nil {
		r.Fields = map[string]Value{}
	}
	r.Fields[field] = v
}

// Has reports whether a column carries a value, including an explicit empty string
// for non-money columns.
func (r *ShipmentRecord) Has(field string) bool {
	if p := r.money(field); p != nil {
		return !p.IsZero()
	}
	_, ok := r.Fields[field]
	return ok
}

// Columns returns every column that carries a value, money columns included.
func (r *ShipmentRecord) Columns() map[string]Value {
	out := make(map[string]Value, len(r.Fields)+len(moneyFields))
	for k, v := range r.Fields {
		out[k] = v
	}
	for _, f := range moneyFields {
		if v := *r.money(f); !v.IsZero() {
			out[f] = v
		}
	}
	return out
}

func (r *ShipmentRecord) Date() string { return r.Get(FieldDate).String() }

func (r *ShipmentRecord) IsAutoCalculated(field string) bool {
	for _, f := range r.AutoCalculatedFields {
		if f == field {
			return true
		}
	}
	return false
}

func (r *ShipmentRecord) MarkAutoCalculated(field string) {
	if !r.IsAutoCalculated(field) {
		r.AutoCalculatedFields = append(r.AutoCalculatedFields, field)
	}
}

func (r *ShipmentRecord) UnmarkAutoCalculated(field string) {
	out := r.AutoCalculatedFields[:0]
	for _, f := range r.AutoCalculatedFields {
		if f != field {
			out = append(out, f)
		}
	}
	r.AutoCalculatedFields = out
}

// Clone делает глубокую копию: поля, флаги и журнал не разделяются с оригиналом.
func (r *ShipmentRecord) Clone() *ShipmentRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = make(map[string]Value, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	c.AutoCalculatedFields = append([]string(nil), r.AutoCalculatedFields...)
	if r.Logs != nil {
		c.Logs = make([]AuditLogEntry, len(r.Logs))
		for i, e := range r.Logs {
			c.Logs[i] = e.Clone()
		}
	}
	return &c
}

// FieldNames returns the names of all populated columns in a stable order.
func (r *ShipmentRecord) FieldNames() []string {
	cols := r.Columns()
	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Ключи, которые не являются колонками таблицы.
const (
	keyID                   = "id"
	keyAutoCalculatedFields = "autoCalculatedFields"
	keyIsInvoiceLocked      = "isInvoiceLocked"
	keyInvoiceMemo          = "invoiceMemo"
	keyInvoicePassword      = "invoicePassword"
	keyLogs                 = "logs"
	keySheetName            = "sheetName"
	keySessionID            = "sessionId"
	keySource               = "source"
	keyCreatedBy            = "createdBy"
	keySelected             = "selected"
	keyCreatedAt            = "createdAt"
	keyUpdatedAt            = "updatedAt"
)

func IsReservedKey(k string) bool {
	switch k {
	case keyID, keyAutoCalculatedFields, keyIsInvoiceLocked, keyInvoiceMemo, keyInvoicePassword,
		keyLogs, keySheetName, keySessionID, keySource, keyCreatedBy, keySelected, keyCreatedAt, keyUpdatedAt:
		return true
	}
	return false
}

// MarshalJSON emits a flat object: sheet columns side by side with record metadata.
// The invoice credential never leaves the server.
func (r ShipmentRecord) MarshalJSON() ([]byte, error) {
	cols := r.Columns()
	out := make(map[string]any, len(cols)+12)
	for k, v := range cols {
		out[k] = v
	}
	out[keyID] = r.ID
	auto := r.AutoCalculatedFields
	if auto == nil {
		auto = []string{}
	}
	out[keyAutoCalculatedFields] = auto
	out[keyIsInvoiceLocked] = r.IsInvoiceLocked
	out[keyInvoiceMemo] = r.InvoiceMemo
	logs := r.Logs
	if logs == nil {
		logs = []AuditLogEntry{}
	}
	out[keyLogs] = logs
	out[keySheetName] = r.SheetName
	out[keySelected] = r.Selected
	if r.SessionID != "" {
		out[keySessionID] = r.SessionID
	}
	if r.Source != "" {
		out[keySource] = r.Source
	}
	if r.CreatedBy != "" {
		out[keyCreatedBy] = r.CreatedBy
	}
	if !r.CreatedAt.IsZero() {
		out[keyCreatedAt] = r.CreatedAt
	}
	if !r.UpdatedAt.IsZero() {
		out[keyUpdatedAt] = r.UpdatedAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat client form. A client-supplied invoice credential is ignored.
func (r *ShipmentRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "decode shipment")
	}

	rec := ShipmentRecord{Fields: make(map[string]Value, len(raw))}
	for k, v := range raw {
		var err error
		switch k {
		case keyID:
			err = json.Unmarshal(v, &rec.ID)
		case keyAutoCalculatedFields:
			err = unmarshalOptional(v, &rec.AutoCalculatedFields)
		case keyIsInvoiceLocked:
			err = unmarshalOptional(v, &rec.IsInvoiceLocked)
		case keyInvoiceMemo:
			err = unmarshalOptional(v, &rec.InvoiceMemo)
		case keyLogs:
			err = unmarshalOptional(v, &rec.Logs)
		case keySheetName:
			err = unmarshalOptional(v, &rec.SheetName)
		case keySessionID:
			err = unmarshalOptional(v, &rec.SessionID)
		case keySource:
			err = unmarshalOptional(v, &rec.Source)
		case keyCreatedBy:
			err = unmarshalOptional(v, &rec.CreatedBy)
		case keySelected:
			err = unmarshalOptional(v, &rec.Selected)
		case keyInvoicePassword, keyCreatedAt, keyUpdatedAt:
			// задаются только сервером
		default:
			var val Value
			err = json.Unmarshal(v, &val)
			rec.Set(k, val)
		}
		if err != nil {
			return errors.Wrapf(err, "decode shipment field %q", k)
		}
	}

	*r = rec
	return nil
}

func unmarshalOptional(b json.RawMessage, dst any) error {
	if string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, dst)
}
