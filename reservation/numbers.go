package reservation

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Decimal is a monetary amount kept in its decimal string form so that no
// precision is lost between the dashboard and the rental API.
type Decimal string

func (d Decimal) Float64() (float64, error) {
	return strconv.ParseFloat(string(d), 64)
}

// MarshalJSON writes the amount as a JSON number, or null when empty.
func (d Decimal) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("null"), nil
	}
	if _, err := d.Float64(); err != nil {
		return json.Marshal(string(d))
	}
	return []byte(d), nil
}

// UnmarshalJSON accepts a number or a string holding one.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Decimal(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")))
		return nil
	}
	*d = Decimal(b)
	return nil
}

// FlexInt is an integer form field that the dashboard may send as a number,
// a numeric string or an empty string.
type FlexInt struct {
	V     int64
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = FlexInt{}
		return nil
	}

	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*f = FlexInt{}
			return nil
		}
	}

	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*f = FlexInt{V: v, Valid: true}
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v != math.Trunc(v) {
		return fmt.Errorf("not an integer: %q", raw)
	}
	*f = FlexInt{V: int64(v), Valid: true}
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.V, 10)), nil
}

// Int64Ptr returns nil when the field was empty.
func (f FlexInt) Int64Ptr() *int64 {
	if !f.Valid {
		return nil
	}
	v := f.V
	return &v
}

// IntPtr returns nil when the field was empty.
func (f FlexInt) IntPtr() *int {
	if !f.Valid {
		return nil
	}
	v := int(f.V)
	return &v
}
