package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Value хранит значение ячейки: строку или число, как оно пришло из таблицы или от клиента.
type Value struct {
	str   string
	num   float64
	isNum bool
}

func String(s string) Value { return Value{str: s} }

func Number(f float64) Value { return Value{num: f, isNum: true} }

func (v Value) IsNumber() bool { return v.isNum }

// Float returns the numeric payload; ok is false for string values.
func (v Value) Float() (float64, bool) {
	if !v.isNum {
		return 0, false
	}
	return v.num, true
}

func (v Value) String() string {
	if v.isNum {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}

// IsZero reports an unset value. An explicit empty string is indistinguishable from it.
func (v Value) IsZero() bool { return !v.isNum && v.str == "" }

func (v Value) IsBlank() bool {
	return !v.isNum && strings.TrimSpace(v.str) == ""
}

func (v Value) Equal(o Value) bool {
	if v.isNum != o.isNum {
		return false
	}
	if v.isNum {
		return v.num == o.num
	}
	return v.str == o.str
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isNum {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.str)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*v = String("")
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*v = Number(f)
		return nil
	default:
		// bool, объекты и массивы храним как есть в виде текста
		*v = String(string(b))
		return nil
	}
}
