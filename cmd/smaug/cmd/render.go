package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/goccy/go-json"

	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/metric"
)

const (
	clearScreen = "\033[H\033[2J"
	gaugeWidth  = 20
)

// renderer writes snapshots either as aligned text or as JSON lines.
type renderer struct {
	w     io.Writer
	json  bool
	clear bool
}

func (r *renderer) render(s metric.Series) error {
	if r.json {
		return r.renderJSON(s)
	}
	return r.renderText(s)
}

func (r *renderer) renderJSON(s metric.Series) error {
	obj := make(map[string]any, s.Len()+1)
	var epoch int64
	for _, m := range s.Metrics() {
		obj[m.Name] = m.Value.Interface()
		if m.Epoch > epoch {
			epoch = m.Epoch
		}
	}
	obj["epoch"] = epoch

	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = r.w.Write(data)
	return err
}

func (r *renderer) renderText(s metric.Series) error {
	var b strings.Builder
	if r.clear {
		b.WriteString(clearScreen)
	}
	for _, m := range s.Metrics() {
		fmt.Fprintf(&b, "%-26s %14s", m.Name, formatValue(m))
		if g := gauge(m); g != "" {
			b.WriteString("  ")
			b.WriteString(g)
		}
		b.WriteByte('\n')
	}
	if !r.clear {
		b.WriteByte('\n')
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

func formatValue(m metric.Metric) string {
	v, ok := m.Value.Float()
	if !ok {
		return m.Value.String()
	}

	switch unit := constants.UnitOf(m.Name); unit {
	case constants.UnitBytes:
		return datasize.ByteSize(v).HumanReadable()
	case "", constants.UnitCount:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strconv.FormatFloat(v, 'f', -1, 64) + " " + unit
	}
}

// gauge draws a bar for metrics with a known maximum.
func gauge(m metric.Metric) string {
	limit, ok := constants.MaxValues[m.Name]
	if !ok || limit <= 0 {
		return ""
	}
	v, ok := m.Value.Float()
	if !ok {
		return ""
	}

	filled := int(v / limit * gaugeWidth)
	filled = max(0, min(filled, gaugeWidth))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", gaugeWidth-filled) + "]"
}
