package anonymizer

import (
	"fmt"
	"testing"
	"time"
)

func TestShiftDays_Bound(t *testing.T) {
	for i := 0; i < 500; i++ {
		d := time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i*37).Format(dateLayout)
		n := ShiftDays(d, 30)
		if n < -30 || n >= 30 {
			t.Fatalf("shift for %s out of range: %d", d, n)
		}
	}
	if ShiftDays("2000-01-01", 0) != 0 {
		t.Error("expected zero window to disable shifting")
	}
}

func TestShiftDays_LargeWindow(t *testing.T) {
	for _, window := range []int{1 << 31, 1 << 32, 36500} {
		n := ShiftDays("1980-05-15", window)
		if n < -window || n >= window {
			t.Errorf("window %d: shift %d out of range", window, n)
		}
	}
	if _, ok := ShiftDate("1980-05-15", 36500, true); !ok {
		t.Error("expected a full date to shift under the maximum window")
	}
}

func TestShiftDate_BoundWithoutYearRestore(t *testing.T) {
	for i := 0; i < 200; i++ {
		orig := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i*11)
		s, ok := ShiftDate(orig.Format(dateLayout), 30, false)
		if !ok {
			t.Fatalf("expected %s to parse", orig.Format(dateLayout))
		}
		shifted, _ := time.Parse(dateLayout, s)
		diff := shifted.Sub(orig).Hours() / 24
		if diff < -30 || diff > 30 {
			t.Errorf("%s shifted by %v days", orig.Format(dateLayout), diff)
		}
	}
}

func TestShiftDate_Deterministic(t *testing.T) {
	a, _ := ShiftDate("1980-05-15", 30, true)
	b, _ := ShiftDate("1980-05-15", 30, true)
	if a != b {
		t.Errorf("expected same shift, got %s and %s", a, b)
	}
}

func TestShiftDate_YearPreserved(t *testing.T) {
	for _, d := range []string{"1980-01-02", "1999-12-30", "2000-02-29", "2012-06-15"} {
		s, ok := ShiftDate(d, 30, true)
		if !ok {
			t.Fatalf("expected %s to parse", d)
		}
		if s[:4] != d[:4] {
			t.Errorf("%s -> %s: year not preserved", d, s)
		}
		if _, err := time.Parse(dateLayout, s); err != nil {
			t.Errorf("%s -> %s is not a valid date", d, s)
		}
	}
}

func TestShiftDate_Unparseable(t *testing.T) {
	for _, d := range []string{"1980", "1980-05", "not-a-date", ""} {
		s, ok := ShiftDate(d, 30, true)
		if ok {
			t.Errorf("expected %q to be rejected", d)
		}
		if s != d {
			t.Errorf("expected %q returned unchanged, got %q", d, s)
		}
	}
}

func TestIsLeap(t *testing.T) {
	cases := map[int]bool{1900: false, 2000: true, 2020: true, 2023: false}
	for year, want := range cases {
		t.Run(fmt.Sprint(year), func(t *testing.T) {
			if got := isLeap(year); got != want {
				t.Errorf("isLeap(%d) = %v, want %v", year, got, want)
			}
		})
	}
}
