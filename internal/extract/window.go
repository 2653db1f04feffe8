package extract

import "time"

// DateLayout is the date format of CDO startdate/enddate parameters.
const DateLayout = "2006-01-02"

// Window is the part of one calendar year that falls inside the configured range.
// The data endpoint accepts at most one year per request.
type Window struct {
	Year  int
	Start time.Time
	End   time.Time
}

// YearWindows splits [start, end] into per-year windows, from start's year through
// end's year inclusive. Years whose clipped window is empty are left out.
func YearWindows(start, end time.Time) []Window {
	start, end = civilDate(start), civilDate(end)

	var windows []Window
	for year := start.Year(); year <= end.Year(); year++ {
		if w, ok := yearWindow(year, start, end); ok {
			windows = append(windows, w)
		}
	}
	return windows
}

func yearWindow(year int, start, end time.Time) (Window, bool) {
	ws := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	we := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	if start.After(ws) {
		ws = start
	}
	if end.Before(we) {
		we = end
	}
	if ws.After(we) {
		return Window{}, false
	}
	return Window{Year: year, Start: ws, End: we}, true
}

// civilDate drops the clock part of t, keeping its calendar date in UTC.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
