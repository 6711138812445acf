package codec

import (
	"errors"
	"time"
)

const (
	// TimeLayout is the layout of the timestamp field.
	TimeLayout = "2006.01.02-15.04.05.000"

	// SecondLayout is the looser layout used by time based session ids.
	SecondLayout = "2006.01.02-15.04.05"
)

var parseLayouts = []string{TimeLayout, SecondLayout}

// FormatTime renders t in TimeLayout using local time.
func FormatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

// ParseTime accepts TimeLayout and SecondLayout, interpreting them as local time.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("codec: unsupported timestamp " + s)
}
