package units

import (
	"errors"
	"math"
	"testing"
)

func TestParseCPU(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "millicores", input: "500m", expected: 0.5},
		{name: "whole cores", input: "2", expected: 2},
		{name: "fractional cores", input: "1.5", expected: 1.5},
		{name: "microcores", input: "250000u", expected: 0.25},
		{name: "nanocores", input: "125000000n", expected: 0.125},
		{name: "surrounding whitespace", input: " 100m ", expected: 0.1},
		{name: "garbage degrades to zero", input: "lots", expected: 0},
		{name: "empty degrades to zero", input: "", expected: 0},
		{name: "memory suffix rejected", input: "1Gi", expected: 0},
		{name: "exponent rejected", input: "1e3", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCPU(tt.input)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("ParseCPU(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseMemory(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "kibibytes", input: "2Ki", expected: 2048},
		{name: "mebibytes", input: "128Mi", expected: 128 * 1024 * 1024},
		{name: "gibibytes", input: "1Gi", expected: 1024 * 1024 * 1024},
		{name: "plain bytes", input: "4096", expected: 4096},
		{name: "cpu suffix rejected", input: "100m", expected: 0},
		{name: "decimal suffix rejected", input: "1G", expected: 0},
		{name: "garbage degrades to zero", input: "Mi", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMemory(tt.input)
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("ParseMemory(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseStrict_ReturnsParseError(t *testing.T) {
	_, err := ParseCPUStrict("abc")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Kind != "cpu" || perr.Value != "abc" {
		t.Errorf("unexpected parse error fields: %+v", perr)
	}

	_, err = ParseMemoryStrict("12Xi")
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Kind != "memory" {
		t.Errorf("expected memory kind, got %q", perr.Kind)
	}
}

func TestFormat(t *testing.T) {
	if got := FormatMillicores(0.75); got != "750m" {
		t.Errorf("FormatMillicores(0.75) = %q", got)
	}
	if got := FormatMillicores(0.7); got != "700m" {
		t.Errorf("FormatMillicores(0.7) = %q", got)
	}
	if got := FormatMillicores(0.0019); got != "1m" {
		t.Errorf("FormatMillicores truncates, got %q", got)
	}
	if got := FormatMebibytes(614.4 * 1024 * 1024); got != "614Mi" {
		t.Errorf("FormatMebibytes(614.4Mi) = %q", got)
	}
	if got := FormatMebibytes(2 * 1024 * 1024 * 1024); got != "2048Mi" {
		t.Errorf("FormatMebibytes(2Gi) = %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	cpu := ParseCPU(FormatMillicores(ParseCPU("500m")))
	if math.Abs(cpu-0.5) > 0.001 {
		t.Errorf("cpu round trip drifted: %v", cpu)
	}

	for _, in := range []string{"512Mi", "1Gi", "3Gi"} {
		want := ParseMemory(in)
		got := ParseMemory(FormatMebibytes(want))
		if math.Abs(got-want) > mebibyte {
			t.Errorf("memory round trip for %s: got %v want %v", in, got, want)
		}
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		name    string
		scale   func(string, float64) (string, error)
		current string
		factor  float64
		want    string
		wantErr bool
	}{
		{name: "cpu 500m x1.5", scale: ScaleCPU, current: "500m", factor: 1.5, want: "750m"},
		{name: "cpu default 100m x1.2", scale: ScaleCPU, current: "100m", factor: 1.2, want: "120m"},
		{name: "cpu cores keep millicore family", scale: ScaleCPU, current: "1", factor: 1.25, want: "1250m"},
		{name: "memory 512Mi x1.2 truncates", scale: ScaleMemory, current: "512Mi", factor: 1.2, want: "614Mi"},
		{name: "memory default 128Mi x1.2", scale: ScaleMemory, current: "128Mi", factor: 1.2, want: "153Mi"},
		{name: "memory Gi input", scale: ScaleMemory, current: "1Gi", factor: 1.5, want: "1536Mi"},
		{name: "cpu invalid", scale: ScaleCPU, current: "fast", factor: 2, wantErr: true},
		{name: "memory invalid", scale: ScaleMemory, current: "lots", factor: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.scale(tt.current, tt.factor)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
