package extract

import (
	"time"

	"github.com/godhahn/data-project/internal/snapshot"
)

// Status is the end state of a run.
type Status string

const (
	// StatusCompleted means every fetch and write succeeded.
	StatusCompleted Status = "completed"
	// StatusPartial means the run went through but some fetch or write failed.
	StatusPartial Status = "partial"
	// StatusNoStations means the station snapshot was empty and the weather phase was skipped.
	StatusNoStations Status = "no_stations"
	// StatusNoData means no weather records were returned for any triple.
	StatusNoData Status = "no_data"
	// StatusFailed means the run was aborted by an unexpected failure.
	StatusFailed Status = "failed"
)

// FetchReport records one reference-resource fetch.
type FetchReport struct {
	Resource string `json:"resource"`
	Endpoint string `json:"endpoint"`
	Records  int    `json:"records"`
	Error    string `json:"error,omitempty"`
}

// Summary is the typed outcome of one run.
type Summary struct {
	RunID      string    `json:"runId"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	StartDate  string    `json:"startDate"`
	EndDate    string    `json:"endDate"`

	Fetches   []FetchReport     `json:"fetches"`
	Snapshots []snapshot.Result `json:"snapshots"`

	Stations        int  `json:"stations"`
	WeatherCalls    int  `json:"weatherCalls"`
	WeatherFailures int  `json:"weatherFailures"`
	SkippedWindows  int  `json:"skippedWindows"`
	WeatherRecords  int  `json:"weatherRecords"`
	UnparsedDates   int  `json:"unparsedDates"`
	Interrupted     bool `json:"interrupted,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// Duration returns the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Degraded reports whether any fetch or write failed during the run.
func (s Summary) Degraded() bool {
	if s.WeatherFailures > 0 || s.Interrupted {
		return true
	}
	for _, f := range s.Fetches {
		if f.Error != "" {
			return true
		}
	}
	for _, r := range s.Snapshots {
		if r.Status == snapshot.StatusFailed {
			return true
		}
	}
	return false
}

func (s *Summary) addFetch(resource, endpoint string, records int, err error) {
	report := FetchReport{Resource: resource, Endpoint: endpoint, Records: records}
	if err != nil {
		report.Error = err.Error()
		s.Errors = append(s.Errors, err.Error())
	}
	s.Fetches = append(s.Fetches, report)
}

func (s *Summary) addSnapshot(res snapshot.Result) {
	s.Snapshots = append(s.Snapshots, res)
	if res.Status == snapshot.StatusFailed {
		s.Errors = append(s.Errors, res.Key+": "+res.Error)
	}
}

// settle fills in the final status unless a terminal one was already set.
func (s *Summary) settle(finishedAt time.Time) {
	s.FinishedAt = finishedAt
	if s.Status != "" {
		return
	}
	if s.Degraded() {
		s.Status = StatusPartial
		return
	}
	s.Status = StatusCompleted
}
