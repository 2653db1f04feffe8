package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/godhahn/data-project/internal/noaa"
)

// maxRecordedErrors bounds the error messages kept from weather fetches.
const maxRecordedErrors = 20

// SeriesRequest describes the datatype × station × year enumeration.
type SeriesRequest struct {
	DatasetID   string
	Units       string
	DatatypeIDs []string
	StationIDs  []string
	Start       time.Time
	End         time.Time
}

// SeriesStats counts what happened during one enumeration.
type SeriesStats struct {
	Calls          int
	Failures       int
	SkippedWindows int
	Interrupted    bool
	Errors         []string
}

// Aggregator fetches the weather series one (datatype, station, year) triple at a time.
type Aggregator struct {
	fetcher Fetcher
	log     *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(fetcher Fetcher, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{fetcher: fetcher, log: log}
}

// Collect issues one data fetch per triple, in datatype-major order, and concatenates
// the results. Failed triples keep whatever records they returned. The enumeration
// stops early only when ctx is done.
func (a *Aggregator) Collect(ctx context.Context, req SeriesRequest) ([]noaa.Record, SeriesStats) {
	var (
		all   []noaa.Record
		stats SeriesStats
	)

	windows := YearWindows(req.Start, req.End)
	years := civilDate(req.End).Year() - civilDate(req.Start).Year() + 1
	skippedPerPair := 0
	if years > len(windows) {
		skippedPerPair = years - len(windows)
	}

	for _, datatypeID := range req.DatatypeIDs {
		for _, stationID := range req.StationIDs {
			stats.SkippedWindows += skippedPerPair

			for _, w := range windows {
				if ctx.Err() != nil {
					stats.Interrupted = true
					a.log.Warn("weather fetch interrupted", "error", ctx.Err(), "calls", stats.Calls)
					return all, stats
				}

				params := url.Values{}
				params.Set("datasetid", req.DatasetID)
				params.Set("datatypeid", datatypeID)
				params.Set("stationid", stationID)
				params.Set("startdate", w.Start.Format(DateLayout))
				params.Set("enddate", w.End.Format(DateLayout))
				params.Set("units", req.Units)

				a.log.Info(fmt.Sprintf("Fetching %s for station %s - %d", datatypeID, stationID, w.Year))
				stats.Calls++

				records, err := a.fetcher.Fetch(ctx, noaa.EndpointData, params)
				if err != nil {
					stats.Failures++
					if len(stats.Errors) < maxRecordedErrors {
						stats.Errors = append(stats.Errors, err.Error())
					}
				}
				all = append(all, records...)
			}
		}
	}

	a.log.Info(fmt.Sprintf("Made %d API calls to fetch weather data", stats.Calls))
	return all, stats
}

var dateLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	DateLayout,
}

// SortByDate parses each record's date field, stores the parsed time back into the
// record, and stably sorts records ascending by it. Records whose date is missing or
// unparseable keep their relative order after all dated records; their count is returned.
func SortByDate(records []noaa.Record) int {
	type item struct {
		rec noaa.Record
		ts  time.Time
		ok  bool
	}

	items := make([]item, len(records))
	unparsed := 0
	for i, r := range records {
		ts, ok := parseDate(r)
		if !ok {
			unparsed++
		}
		items[i] = item{rec: r, ts: ts, ok: ok}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok {
			return false
		}
		return a.ts.Before(b.ts)
	})

	for i := range items {
		if items[i].ok {
			items[i].rec.Set("date", items[i].ts)
		}
		records[i] = items[i].rec
	}
	return unparsed
}

func parseDate(r noaa.Record) (time.Time, bool) {
	v, ok := r.Get("date")
	if !ok {
		return time.Time{}, false
	}
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, d); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
