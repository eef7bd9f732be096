package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
)

// maxRecordSize bounds a single record. Larger lengths mean a damaged header.
const maxRecordSize = 1 << 20

// Reader reads metrics from a log file.
type Reader struct {
	path string
	file *os.File

	// Statistics
	stats ReaderStats
}

// ReaderStats holds log reader statistics.
type ReaderStats struct {
	RecordsRead    int64
	BytesRead      int64
	CorruptRecords int64
}

// NewReader opens a log file and verifies its header.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	if err := readHeader(f); err != nil {
		f.Close()
		return nil, err
	}

	return &Reader{
		path: path,
		file: f,
	}, nil
}

func readHeader(r io.Reader) error {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	magic := binary.LittleEndian.Uint64(header[0:8])
	if magic != logMagic {
		return fmt.Errorf("invalid magic: expected %x, got %x", uint64(logMagic), magic)
	}

	version := binary.LittleEndian.Uint32(header[8:12])
	if version != logVersion {
		return fmt.Errorf("unsupported version: %d", version)
	}
	return nil
}

// ReadAll reads every intact record. Reading stops at the first truncated
// or damaged record, which is what a crash during append leaves behind;
// the entries before it are returned.
func (r *Reader) ReadAll() ([]metric.Metric, error) {
	var all []metric.Metric

	for {
		m, err := r.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.stats.CorruptRecords++
			break
		}
		all = append(all, m)
	}

	return all, nil
}

// ReadRecord reads the next record from the log.
// Returns io.EOF when there are no more records.
func (r *Reader) ReadRecord() (metric.Metric, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r.file, header[:]); err != nil {
		if err == io.EOF {
			return metric.Metric{}, io.EOF
		}
		return metric.Metric{}, fmt.Errorf("read record header: %w: %w", errors.ErrCorruptRecord, err)
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	expectedCRC := binary.LittleEndian.Uint32(header[4:8])

	if length > maxRecordSize {
		return metric.Metric{}, fmt.Errorf("record too large: %d bytes: %w", length, errors.ErrCorruptRecord)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.file, payload); err != nil {
		return metric.Metric{}, fmt.Errorf("read payload: %w: %w", errors.ErrCorruptRecord, err)
	}

	actualCRC := crc32.ChecksumIEEE(payload)
	if actualCRC != expectedCRC {
		return metric.Metric{}, fmt.Errorf("CRC mismatch: expected %x, got %x: %w", expectedCRC, actualCRC, errors.ErrCorruptRecord)
	}

	m, err := decodeMetric(payload)
	if err != nil {
		return metric.Metric{}, fmt.Errorf("decode metric: %w: %w", errors.ErrCorruptRecord, err)
	}

	r.stats.RecordsRead++
	r.stats.BytesRead += int64(recordHeaderSize + len(payload))

	return m, nil
}

// ValidSize returns the length of the file prefix made of intact records.
func (r *Reader) ValidSize() int64 {
	return headerSize + r.stats.BytesRead
}

// Close closes the reader.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Stats returns reader statistics.
func (r *Reader) Stats() ReaderStats {
	return r.stats
}

// Path returns the log path.
func (r *Reader) Path() string {
	return r.path
}

// ReadFile is a convenience function to read all metrics from a log file.
func ReadFile(path string) ([]metric.Metric, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.ReadAll()
}
