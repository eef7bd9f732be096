// Package validation checks metric names and values before they reach a
// store.
package validation

import (
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/elaiviaien/smaug/internal/errors"
)

const (
	// MaxNameLength bounds a metric name in bytes.
	MaxNameLength = 200

	// MaxFileNameLength is the longest log file name most filesystems accept.
	MaxFileNameLength = 255

	// MaxTextLength bounds a text value in bytes.
	MaxTextLength = 1<<16 - 1

	logSuffix = ".log"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for metric names.
type NameRules struct {
	MinLength int
	MaxLength int

	// FileSafe requires the escaped name plus the log suffix to fit in a
	// single file name.
	FileSafe bool
}

// DefaultNameRules returns the rules every stored metric name follows.
func DefaultNameRules() NameRules {
	return NameRules{
		MinLength: 1,
		MaxLength: MaxNameLength,
	}
}

// StoreNameRules returns the rules for names that become log files.
func StoreNameRules() NameRules {
	rules := DefaultNameRules()
	rules.FileSafe = true
	return rules
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return invalid("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return invalid("name too long: maximum %d bytes allowed", rules.MaxLength)
	}
	if !utf8.ValidString(name) {
		return invalid("name %q is not valid UTF-8", name)
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return invalid("name cannot contain control characters at position %d", i)
		}
	}

	if rules.FileSafe {
		if n := len(url.PathEscape(name)) + len(logSuffix); n > MaxFileNameLength {
			return invalid("name %q escapes to a %d byte file name", name, n)
		}
	}
	return nil
}

// ValidateMetricName validates a metric name with default rules.
func ValidateMetricName(name string) error {
	return ValidateName(name, DefaultNameRules())
}

// ValidateStoreName validates a name that will back a log file.
func ValidateStoreName(name string) error {
	return ValidateName(name, StoreNameRules())
}

// =============================================================================
// Value Validation
// =============================================================================

// ValidateText checks that a text value fits a record.
func ValidateText(s string) error {
	if len(s) > MaxTextLength {
		return invalid("text value too long: %d bytes, maximum %d", len(s), MaxTextLength)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errors.ErrInvalidMetric)
}
