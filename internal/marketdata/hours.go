package marketdata

import (
	"time"
	_ "time/tzdata" // America/New_York on hosts without a zoneinfo database
)

var newYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// RegularHours reports whether t falls in the NYSE regular session,
// 09:30 to 16:00 New York time on weekdays. Exchange holidays are not
// modelled; use a broker clock when one is available.
func RegularHours(t time.Time) bool {
	ny := t.In(newYork)
	if wd := ny.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := ny.Hour()*60 + ny.Minute()
	return minutes >= 9*60+30 && minutes <= 16*60
}

// Timeframe returns the bar timeframe used to price a replay stepping every
// stepMinutes.
func Timeframe(stepMinutes int) string {
	switch {
	case stepMinutes <= 1:
		return "1Min"
	case stepMinutes <= 5:
		return "5Min"
	case stepMinutes <= 15:
		return "15Min"
	case stepMinutes <= 30:
		return "30Min"
	case stepMinutes <= 60:
		return "1Hour"
	default:
		return "1Day"
	}
}
