package domain

import (
	"testing"
	"time"
)

func TestParseYearMonth(t *testing.T) {
	tests := []struct {
		in      string
		want    YearMonth
		wantErr bool
	}{
		{in: "2026-02", want: YearMonth{Year: 2026, Month: time.February}},
		{in: "1999-12", want: YearMonth{Year: 1999, Month: time.December}},
		{in: "2026-13", wantErr: true},
		{in: "2026-2", wantErr: true},
		{in: "feb 2026", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseYearMonth(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseYearMonth(%q) succeeded, want error", tt.in)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("ParseYearMonth(%q) err = %v, want validation error", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseYearMonth(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseYearMonth(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestYearMonthAddCrossesYears(t *testing.T) {
	jan := YearMonth{Year: 2026, Month: time.January}
	if got := jan.Add(-1).String(); got != "2025-12" {
		t.Errorf("Add(-1) = %s, want 2025-12", got)
	}
	if got := jan.Add(12).String(); got != "2027-01" {
		t.Errorf("Add(12) = %s, want 2027-01", got)
	}
	if got := jan.Add(0); got != jan {
		t.Errorf("Add(0) = %v, want unchanged", got)
	}
}

func TestYearMonthBounds(t *testing.T) {
	start, next := YearMonth{Year: 2026, Month: time.February}.Bounds()
	if !start.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if !next.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("next = %v", next)
	}
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2026, 2, 20, 17, 45, 3, 12, time.UTC)
	want := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	if got := DateOnly(in); !got.Equal(want) {
		t.Errorf("DateOnly = %v, want %v", got, want)
	}
}
