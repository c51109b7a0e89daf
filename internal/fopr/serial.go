package fopr

import "time"

// excelEpoch is day zero of the spreadsheet date serial system. 1899-12-30
// rather than 1899-12-31 compensates for the serial format treating 1900 as a
// leap year.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// SerialDate converts a spreadsheet date serial to midnight UTC of that day.
// Fractional parts (time of day) are discarded.
func SerialDate(serial float64) time.Time {
	return excelEpoch.AddDate(0, 0, int(serial))
}
