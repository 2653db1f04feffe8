// Package extract runs the NOAA CDO extract: it loads the reference resources,
// enumerates the weather series and hands every table to the snapshot writer.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/godhahn/data-project/internal/common"
	"github.com/godhahn/data-project/internal/noaa"
	"github.com/godhahn/data-project/internal/snapshot"
)

// Snapshot filenames.
const (
	DatatypeFile = "datatype.csv"
	DatasetFile  = "dataset.csv"
	StationFile  = "station.csv"
	WeatherFile  = "weather.csv"
)

// Fetcher reads every page of one endpoint. On failure it returns the records read so
// far together with the error.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) ([]noaa.Record, error)
}

// SnapshotWriter stores a table under a filename and reports the outcome.
type SnapshotWriter interface {
	Write(ctx context.Context, filename string, t *snapshot.Table) snapshot.Result
}

// Params are the extract settings of a run.
type Params struct {
	LocationID  string
	DatasetID   string
	DatatypeIDs []string
	Units       string
	StartDate   time.Time
	// EndDate is the last day of the range; zero means the run date.
	EndDate time.Time
}

// Job runs the full extract once per Run call.
type Job struct {
	fetcher    Fetcher
	writer     SnapshotWriter
	aggregator *Aggregator
	params     Params
	log        *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewJob creates a Job.
func NewJob(fetcher Fetcher, writer SnapshotWriter, params Params, log *slog.Logger) *Job {
	if log == nil {
		log = slog.Default()
	}
	if params.Units == "" {
		params.Units = "metric"
	}
	return &Job{
		fetcher:    fetcher,
		writer:     writer,
		aggregator: NewAggregator(fetcher, log),
		params:     params,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Run executes one extract and returns its summary. It never returns an error:
// failures are recorded in the summary and the run moves on where it can.
func (j *Job) Run(ctx context.Context) (sum Summary) {
	start, end := j.dateRange()
	sum = Summary{
		RunID:     j.newID(),
		StartedAt: j.now().UTC(),
		StartDate: start.Format(DateLayout),
		EndDate:   end.Format(DateLayout),
	}
	log := j.log.With("run_id", sum.RunID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Process failed", "error", r, "stack", string(debug.Stack()))
			sum.Status = StatusFailed
			sum.Errors = append(sum.Errors, fmt.Sprint(r))
		}
		sum.settle(j.now().UTC())
		log.Info("run finished", "status", sum.Status, "duration", sum.Duration())
	}()

	log.Info(fmt.Sprintf("Starting NOAA data fetch from %s to %s", sum.StartDate, sum.EndDate))

	j.loadDatatypes(ctx, log, &sum)
	j.loadDatasets(ctx, log, &sum)

	stationIDs := j.loadStations(ctx, log, &sum)
	sum.Stations = len(stationIDs)
	if len(stationIDs) == 0 {
		log.Error("No stations found. Exiting.")
		sum.Status = StatusNoStations
		return sum
	}

	records, stats := j.aggregator.Collect(ctx, SeriesRequest{
		DatasetID:   j.params.DatasetID,
		Units:       j.params.Units,
		DatatypeIDs: j.params.DatatypeIDs,
		StationIDs:  stationIDs,
		Start:       start,
		End:         end,
	})
	sum.WeatherCalls = stats.Calls
	sum.WeatherFailures = stats.Failures
	sum.SkippedWindows = stats.SkippedWindows
	sum.Interrupted = stats.Interrupted
	sum.Errors = append(sum.Errors, stats.Errors...)
	sum.WeatherRecords = len(records)

	if len(records) == 0 {
		log.Warn("No weather data retrieved")
		sum.Status = StatusNoData
		return sum
	}

	sum.UnparsedDates = SortByDate(records)
	if sum.UnparsedDates > 0 {
		log.Warn("weather records without a parseable date", "count", sum.UnparsedDates)
	}

	sum.addSnapshot(j.writer.Write(ctx, WeatherFile, snapshot.FromRecords(records)))
	log.Info("Weather data fetch completed")
	return sum
}

func (j *Job) dateRange() (time.Time, time.Time) {
	end := j.params.EndDate
	if end.IsZero() {
		end = j.now().UTC()
	}
	return civilDate(j.params.StartDate), civilDate(end)
}

func (j *Job) loadDatatypes(ctx context.Context, log *slog.Logger, sum *Summary) {
	log.Info("Fetching datatypes...")
	records, err := j.fetcher.Fetch(ctx, noaa.EndpointDatatypes, nil)
	sum.addFetch("datatype", noaa.EndpointDatatypes, len(records), err)

	allowed := common.NewSet(j.params.DatatypeIDs...)
	tbl := snapshot.FromRecords(records).Filter(func(r noaa.Record) bool {
		return allowed.Has(r.String("id"))
	})
	sum.addSnapshot(j.writer.Write(ctx, DatatypeFile, tbl))
}

func (j *Job) loadDatasets(ctx context.Context, log *slog.Logger, sum *Summary) {
	log.Info("Fetching datasets...")
	records, err := j.fetcher.Fetch(ctx, noaa.EndpointDatasets, nil)
	sum.addFetch("dataset", noaa.EndpointDatasets, len(records), err)

	sum.addSnapshot(j.writer.Write(ctx, DatasetFile, snapshot.FromRecords(records)))
}

// loadStations writes the station snapshot and returns the station ids in API order.
func (j *Job) loadStations(ctx context.Context, log *slog.Logger, sum *Summary) []string {
	log.Info(fmt.Sprintf("Fetching stations for %s...", j.params.LocationID))
	params := url.Values{}
	params.Set("locationid", j.params.LocationID)

	records, err := j.fetcher.Fetch(ctx, noaa.EndpointStations, params)
	sum.addFetch("station", noaa.EndpointStations, len(records), err)

	tbl := snapshot.FromRecords(records)
	sum.addSnapshot(j.writer.Write(ctx, StationFile, tbl))

	var ids []string
	for _, id := range tbl.Column("id") {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
