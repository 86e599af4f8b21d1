package display

import (
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"small bytes", 512, "512 B"},
		{"exactly 1 KiB", 1024, "1.0 KiB"},
		{"1.5 KiB", 1536, "1.5 KiB"},
		{"1 MiB", 1024 * 1024, "1.0 MiB"},
		{"1 GiB", 1024 * 1024 * 1024, "1.0 GiB"},
		{"slide deck 700 MiB", 734003200, "700.0 MiB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatBytes(tt.bytes)
			if got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"millis", 850 * time.Millisecond, "850ms"},
		{"seconds", 12300 * time.Millisecond, "12.3s"},
		{"minutes", 4*time.Minute + 5*time.Second, "4m05s"},
		{"hours", time.Hour + 2*time.Minute, "1h02m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatDuration(tt.d)
			if got != tt.want {
				t.Errorf("FormatDuration(%s) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(1, 4); got != "25.0%" {
		t.Errorf("Percent(1, 4) = %q", got)
	}
	if got := Percent(0, 0); got != "-" {
		t.Errorf("Percent(0, 0) = %q", got)
	}
}
