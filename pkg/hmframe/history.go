package hmframe

import (
	"fmt"
	"time"
)

// history records are 32 bytes each
const historyRecordSize = 32

// ComputeHistoryAddress returns the byte offset of the history record for the
// given time. Each interval uses its own banking: 1-minute records wrap every
// 10 days, 10-minute records every quarter, 60-minute records every year.
func ComputeHistoryAddress(interval, year, month, day, hour, minute int) (uint32, error) {
	var slot int

	switch interval {
	case Interval1Min:
		bucketDay := day
		switch {
		case day <= 10:
		case day <= 20:
			bucketDay = day - 10
		default:
			bucketDay = day - 20
		}
		slot = (bucketDay-1)*1440 + hour*60 + minute

	case Interval10Min:
		bucketMonth := 1
		switch {
		case month >= 1 && month <= 3:
			bucketMonth = month
		case month >= 4 && month <= 6:
			bucketMonth = month - 3
		case month >= 7 && month <= 9:
			bucketMonth = month - 6
		case month >= 10 && month <= 12:
			bucketMonth = month - 9
		}
		slot = (bucketMonth-1)*144*31 + (day-1)*144 + hour*6 + minute/10

	case Interval60Min:
		slot = (month-1)*24*31 + (day-1)*24 + hour

	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidInterval, interval)
	}

	if slot < 0 {
		return 0, fmt.Errorf("%w: time %04d-%02d-%02d %02d:%02d", ErrEncoding, year, month, day, hour, minute)
	}

	return uint32(slot * historyRecordSize), nil
}

// HistoryAddressAt is ComputeHistoryAddress for a time.Time
func HistoryAddressAt(interval int, ts time.Time) (uint32, error) {
	return ComputeHistoryAddress(interval, ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(), ts.Minute())
}
