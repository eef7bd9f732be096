// Package metric defines the value model shared by probes, stores and
// snapshots: a named, timestamped Metric and an ordered Series of them.
package metric

import (
	"math"
	"strconv"
	"time"

	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/validation"
)

// ValueType distinguishes numeric samples from informational text.
type ValueType uint8

const (
	ValueTypeNumber ValueType = 1
	ValueTypeText   ValueType = 2
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeNumber:
		return "number"
	case ValueTypeText:
		return "text"
	default:
		return "unknown"
	}
}

// Value is either a float64 or a string.
type Value struct {
	typ  ValueType
	num  float64
	text string
}

// Number returns a numeric value.
func Number(v float64) Value {
	return Value{typ: ValueTypeNumber, num: v}
}

// Text returns a text value.
func Text(s string) Value {
	return Value{typ: ValueTypeText, text: s}
}

// Type reports the kind of value held.
func (v Value) Type() ValueType { return v.typ }

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.typ == ValueTypeNumber }

// Float returns the numeric form of v. Text values that parse as a float
// convert; anything else reports false.
func (v Value) Float() (float64, bool) {
	switch v.typ {
	case ValueTypeNumber:
		return v.num, true
	case ValueTypeText:
		f, err := strconv.ParseFloat(v.text, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String renders the value for display.
func (v Value) String() string {
	switch v.typ {
	case ValueTypeNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueTypeText:
		return v.text
	default:
		return ""
	}
}

// Interface returns the value as float64 or string, for encoders.
func (v Value) Interface() any {
	if v.typ == ValueTypeText {
		return v.text
	}
	return v.num
}

// Metric is one named observation. Epoch is Unix seconds.
type Metric struct {
	Name  string
	Value Value
	Epoch int64
}

// New builds a numeric metric.
func New(name string, v float64, epoch int64) Metric {
	return Metric{Name: name, Value: Number(v), Epoch: epoch}
}

// NewText builds a text metric.
func NewText(name, s string, epoch int64) Metric {
	return Metric{Name: name, Value: Text(s), Epoch: epoch}
}

// Float returns the numeric value or ErrNotNumeric.
func (m Metric) Float() (float64, error) {
	f, ok := m.Value.Float()
	if !ok {
		return 0, errors.Wrapf(errors.ErrNotNumeric, "metric %s", m.Name)
	}
	return f, nil
}

// Validate checks that m can be stored.
func (m Metric) Validate() error {
	if err := validation.ValidateMetricName(m.Name); err != nil {
		return err
	}
	switch m.Value.typ {
	case ValueTypeNumber:
		return nil
	case ValueTypeText:
		return validation.ValidateText(m.Value.text)
	default:
		return errors.Wrapf(errors.ErrInvalidMetric, "metric %s: no value", m.Name)
	}
}

// Now returns the current epoch in whole seconds.
func Now() int64 {
	return time.Now().Unix()
}

// Round rounds v to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
