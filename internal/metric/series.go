package metric

import (
	"github.com/elaiviaien/smaug/internal/errors"
)

// Series is an ordered collection of metrics with unique names, as
// returned by one probe invocation. The zero value is an empty series.
type Series struct {
	items []Metric
	index map[string]int
}

// NewSeries builds a series, failing with ErrDuplicateMetricName when two
// members share a name.
func NewSeries(metrics ...Metric) (Series, error) {
	s := Series{
		items: make([]Metric, 0, len(metrics)),
		index: make(map[string]int, len(metrics)),
	}
	for _, m := range metrics {
		if _, dup := s.index[m.Name]; dup {
			return Series{}, errors.Wrapf(errors.ErrDuplicateMetricName, "metric %s", m.Name)
		}
		s.index[m.Name] = len(s.items)
		s.items = append(s.items, m)
	}
	return s, nil
}

// MustSeries is NewSeries for statically known names. It panics on duplicates.
func MustSeries(metrics ...Metric) Series {
	s, err := NewSeries(metrics...)
	if err != nil {
		panic(err)
	}
	return s
}

// Get returns the member called name.
func (s Series) Get(name string) (Metric, error) {
	i, ok := s.index[name]
	if !ok {
		return Metric{}, errors.NewMetricNotFound(name)
	}
	return s.items[i], nil
}

// Float returns the numeric value of the member called name.
func (s Series) Float(name string) (float64, error) {
	m, err := s.Get(name)
	if err != nil {
		return 0, err
	}
	return m.Float()
}

// Has reports whether name is a member.
func (s Series) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Len returns the number of members.
func (s Series) Len() int { return len(s.items) }

// Names returns member names in insertion order.
func (s Series) Names() []string {
	names := make([]string, len(s.items))
	for i, m := range s.items {
		names[i] = m.Name
	}
	return names
}

// Metrics returns a copy of the members in insertion order.
func (s Series) Metrics() []Metric {
	out := make([]Metric, len(s.items))
	copy(out, s.items)
	return out
}

// Concat merges series in order into a new series.
func Concat(series ...Series) (Series, error) {
	var all []Metric
	for _, s := range series {
		all = append(all, s.items...)
	}
	return NewSeries(all...)
}
