package wal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/elaiviaien/smaug/internal/metric"
)

// Metric encoding format (binary, little-endian):
// - Name length (2 bytes) + Name string
// - Epoch (8 bytes, int64 seconds)
// - Value type (1 byte)
// - Number: Value (8 bytes, float64)
// - Text:   length (2 bytes) + string

const maxStringLen = math.MaxUint16

// RecordSize returns the bytes m occupies in a log, record header included.
func RecordSize(m metric.Metric) int64 {
	n := recordHeaderSize + 2 + len(m.Name) + 8 + 1
	if m.Value.Type() == metric.ValueTypeText {
		n += 2 + len(m.Value.String())
	} else {
		n += 8
	}
	return int64(n)
}

// HeaderSize is the size of the file header preceding the first record.
const HeaderSize = headerSize

// encodeMetric encodes a metric into a record payload.
func encodeMetric(m metric.Metric) ([]byte, error) {
	if len(m.Name) > maxStringLen {
		return nil, fmt.Errorf("name too long: %d bytes", len(m.Name))
	}

	buf := make([]byte, 0, RecordSize(m)-recordHeaderSize)
	buf = appendString(buf, m.Name)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.Epoch))

	switch m.Value.Type() {
	case metric.ValueTypeNumber:
		f, _ := m.Value.Float()
		buf = append(buf, byte(metric.ValueTypeNumber))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	case metric.ValueTypeText:
		s := m.Value.String()
		if len(s) > maxStringLen {
			return nil, fmt.Errorf("text value too long: %d bytes", len(s))
		}
		buf = append(buf, byte(metric.ValueTypeText))
		buf = appendString(buf, s)
	default:
		return nil, fmt.Errorf("metric %s: unknown value type %d", m.Name, m.Value.Type())
	}

	return buf, nil
}

// decodeMetric decodes a record payload into a metric.
func decodeMetric(data []byte) (metric.Metric, error) {
	var m metric.Metric
	var err error
	offset := 0

	m.Name, offset, err = readString(data, offset)
	if err != nil {
		return metric.Metric{}, fmt.Errorf("name: %w", err)
	}

	if offset+9 > len(data) {
		return metric.Metric{}, fmt.Errorf("data too short for epoch")
	}
	m.Epoch = int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8

	typ := metric.ValueType(data[offset])
	offset++

	switch typ {
	case metric.ValueTypeNumber:
		if offset+8 > len(data) {
			return metric.Metric{}, fmt.Errorf("data too short for value")
		}
		m.Value = metric.Number(math.Float64frombits(binary.LittleEndian.Uint64(data[offset:])))
		offset += 8
	case metric.ValueTypeText:
		var s string
		s, offset, err = readString(data, offset)
		if err != nil {
			return metric.Metric{}, fmt.Errorf("text value: %w", err)
		}
		m.Value = metric.Text(s)
	default:
		return metric.Metric{}, fmt.Errorf("unknown value type %d", typ)
	}

	if offset != len(data) {
		return metric.Metric{}, fmt.Errorf("%d trailing bytes", len(data)-offset)
	}
	return m, nil
}

// appendString appends a length-prefixed string to the buffer.
func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// readString reads a length-prefixed string from the buffer.
func readString(data []byte, offset int) (string, int, error) {
	if offset+2 > len(data) {
		return "", offset, fmt.Errorf("data too short for string length")
	}

	length := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2

	if offset+length > len(data) {
		return "", offset, fmt.Errorf("data too short for string content")
	}

	s := string(data[offset : offset+length])
	return s, offset + length, nil
}
