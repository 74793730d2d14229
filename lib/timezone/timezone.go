package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
}

// force timezone to be in ET because the game's daily resets follow
// the site's clock, not wherever our servers happen to be deployed.
// manipulating dates with <time.Time>.Year()/Month()/Day()/Hour()/...
// in server-local time produces off-by-a-day bugs.
func Now() time.Time {
	return time.Now().In(Location)
}

// DateKey formats an instant into the ET calendar date it falls on.
// Two instants share a DateKey iff they fall on the same ET calendar
// day, DST shifts included.
func DateKey(t time.Time) string {
	return t.In(Location).Format("2006-01-02")
}

// NextMidnight returns the next ET midnight strictly after t.
// The delta to it is not a fixed 24h: across a DST transition the
// local day is 23 or 25 hours long and time.Date accounts for that.
func NextMidnight(t time.Time) time.Time {
	local := t.In(Location)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, Location)
}
