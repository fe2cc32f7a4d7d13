package types

import (
	"testing"
	"time"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain bytes", input: "4096", want: 4096},
		{name: "zero", input: "0", want: 0},
		{name: "bytes with B suffix", input: "512B", want: 512},
		{name: "kilobytes short", input: "4K", want: 4 * 1024},
		{name: "kilobytes iec", input: "4KiB", want: 4 * 1024},
		{name: "megabytes lowercase", input: "10mb", want: 10 * 1024 * 1024},
		{name: "gigabytes", input: "2G", want: 2 * 1024 * 1024 * 1024},
		{name: "whitespace", input: "  1M  ", want: 1024 * 1024},
		{name: "decimal truncated", input: "1.5K", want: 1536},

		{name: "empty", input: "", wantErr: true},
		{name: "negative", input: "-1K", wantErr: true},
		{name: "unknown suffix", input: "10X", wantErr: true},
		{name: "suffix only", input: "M", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{500, "500 B"},
		{1024, "1.0 KiB"},
		{1536 * 1024, "1.5 MiB"},
		{-1, "?"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatRate(t *testing.T) {
	if got := FormatRate(0); got != "-" {
		t.Errorf("FormatRate(0) = %q, want %q", got, "-")
	}
	if got := FormatRate(2048); got != "2.0 KiB/s" {
		t.Errorf("FormatRate(2048) = %q, want %q", got, "2.0 KiB/s")
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "-"},
		{0, "0:00"},
		{75 * time.Second, "1:15"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}

	for _, tt := range tests {
		if got := FormatETA(tt.d); got != tt.want {
			t.Errorf("FormatETA(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
