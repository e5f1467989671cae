package anonymizer

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

const dateLayout = "2006-01-02"

// ShiftDays is the deterministic offset for a date string:
// (digest mod 2*window) - window, so the result lies in [-window, window).
func ShiftDays(original string, window int) int {
	if window <= 0 {
		return 0
	}
	sum := sha256.Sum256([]byte(original))
	h := binary.BigEndian.Uint64(sum[:8])
	return int(h%(2*uint64(window))) - window
}

// ShiftDate moves a YYYY-MM-DD date by ShiftDays. With keepYear the year is
// restored after the shift, so month/day come from the shifted date. A date
// that does not exist in the restored year (Feb 29) falls back to Feb 28.
// It returns false when original is not a full calendar date.
func ShiftDate(original string, window int, keepYear bool) (string, bool) {
	d, err := time.Parse(dateLayout, original)
	if err != nil {
		return original, false
	}
	shifted := d.AddDate(0, 0, ShiftDays(original, window))
	if keepYear {
		day := shifted.Day()
		if shifted.Month() == time.February && day == 29 && !isLeap(d.Year()) {
			day = 28
		}
		shifted = time.Date(d.Year(), shifted.Month(), day, 0, 0, 0, 0, time.UTC)
	}
	return shifted.Format(dateLayout), true
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
