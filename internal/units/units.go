// Package units converts Kubernetes quantity strings to plain numbers and back.
//
// CPU values are expressed in cores, memory values in bytes. Parse failures are
// not fatal: the non-strict helpers log them and return 0, which callers treat the
// same as "metric unavailable".
package units

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

const (
	kibibyte = 1024
	mebibyte = 1024 * kibibyte
	gibibyte = 1024 * mebibyte

	// truncation guard for values like 0.7*1000 = 699.9999999
	epsilon = 1e-9
)

// ParseError reports a quantity that could not be interpreted.
type ParseError struct {
	Kind  string // "cpu" or "memory"
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("units: invalid %s quantity %q: %v", e.Kind, e.Value, e.Err)
	}
	return fmt.Sprintf("units: invalid %s quantity %q", e.Kind, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

var cpuSuffixes = []string{"n", "u", "m"}
var memorySuffixes = []string{"Ki", "Mi", "Gi"}

// ParseCPUStrict parses a CPU quantity ("250m", "1", "1500000n") into cores.
func ParseCPUStrict(s string) (float64, error) {
	return parse("cpu", s, cpuSuffixes)
}

// ParseMemoryStrict parses a memory quantity ("512Mi", "1Gi", "2048") into bytes.
func ParseMemoryStrict(s string) (float64, error) {
	return parse("memory", s, memorySuffixes)
}

// ParseCPU is ParseCPUStrict with failures degraded to 0.
func ParseCPU(s string) float64 {
	v, err := ParseCPUStrict(s)
	if err != nil {
		slog.Debug("failed to parse cpu quantity", "value", s, "error", err)
		return 0
	}
	return v
}

// ParseMemory is ParseMemoryStrict with failures degraded to 0.
func ParseMemory(s string) float64 {
	v, err := ParseMemoryStrict(s)
	if err != nil {
		slog.Debug("failed to parse memory quantity", "value", s, "error", err)
		return 0
	}
	return v
}

func parse(kind, raw string, allowed []string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &ParseError{Kind: kind, Value: raw}
	}

	// Only the suffix family of the resource kind is accepted; ParseQuantity on
	// its own would also take "k", "M", "Ti", exponents, ...
	number := s
	for _, suffix := range allowed {
		if strings.HasSuffix(s, suffix) {
			number = strings.TrimSuffix(s, suffix)
			break
		}
	}
	if number == "" || !isPlainNumber(number) {
		return 0, &ParseError{Kind: kind, Value: raw}
	}

	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, &ParseError{Kind: kind, Value: raw, Err: err}
	}
	return q.AsApproximateFloat64(), nil
}

func isPlainNumber(s string) bool {
	dot := false
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' && !dot:
			dot = true
		case (r == '+' || r == '-') && i == 0:
		default:
			return false
		}
	}
	return digits > 0
}

// FormatMillicores renders cores as an integer millicore quantity, truncating.
func FormatMillicores(cores float64) string {
	return fmt.Sprintf("%dm", int64(math.Floor(cores*1000+epsilon)))
}

// FormatMebibytes renders bytes as an integer Mi quantity, truncating.
func FormatMebibytes(bytes float64) string {
	return fmt.Sprintf("%dMi", int64(math.Floor(bytes/mebibyte+epsilon)))
}

// ScaleCPU multiplies a CPU quantity by factor and re-serializes it in millicores.
func ScaleCPU(current string, factor float64) (string, error) {
	cores, err := ParseCPUStrict(current)
	if err != nil {
		return "", err
	}
	return FormatMillicores(cores * factor), nil
}

// ScaleMemory multiplies a memory quantity by factor and re-serializes it in Mi.
func ScaleMemory(current string, factor float64) (string, error) {
	bytes, err := ParseMemoryStrict(current)
	if err != nil {
		return "", err
	}
	return FormatMebibytes(bytes * factor), nil
}
