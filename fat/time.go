package fat

import "time"

const dosEpochYear = 1980

// DOS timestamps have two second resolution in the time field; the
// creation tenth byte carries the remaining 0-199 hundredths.

func dosDateTime(t time.Time) (date, clock uint16, tenth uint8) {
	if t.Year() < dosEpochYear {
		t = time.Date(dosEpochYear, time.January, 1, 0, 0, 0, 0, t.Location())
	}
	if t.Year() > dosEpochYear+127 {
		t = time.Date(dosEpochYear+127, time.December, 31, 23, 59, 58, 0, t.Location())
	}
	date = uint16(t.Year()-dosEpochYear)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	clock = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	tenth = uint8(t.Second()%2*100 + t.Nanosecond()/int(10*time.Millisecond))
	return date, clock, tenth
}

func dosTime(date, clock uint16, tenth uint8) time.Time {
	if date == 0 {
		return time.Time{}
	}
	year := int(date>>9) + dosEpochYear
	month := time.Month((date >> 5) & 0x0f)
	day := int(date & 0x1f)
	hour := int(clock >> 11)
	minute := int((clock >> 5) & 0x3f)
	second := int(clock&0x1f) * 2
	extra := time.Duration(tenth) * 10 * time.Millisecond
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC).Add(extra)
}
