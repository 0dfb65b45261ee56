// Package dashboard aggregates named status sources into a single report
// for the status monitor, the way the teacher's dashboard aggregated
// per-concern stats (containers, stacks, JSON-LD counts) into one Stats
// struct before serializing it.
package dashboard

import (
	"encoding/json"
	"fmt"

	"github.com/docuhub/gsadapt/journal"
)

// Severity is how healthy a single status source currently is.
type Severity int

const (
	Inactive Severity = iota
	Unavailable
	Normal
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Unavailable:
		return "UNAVAILABLE"
	case Normal:
		return "NORMAL"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "INACTIVE"
	}
}

// Status is one named source's current reading.
type Status struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// StatusSource produces one Status reading on demand. Implementations
// should be cheap: the monitor may poll every source on every request.
type StatusSource interface {
	Name() string
	Check() Status
}

// Monitor aggregates a fixed set of named StatusSources into one report.
type Monitor struct {
	sources []StatusSource
}

// NewMonitor builds a Monitor over sources, queried in the given order.
func NewMonitor(sources ...StatusSource) *Monitor {
	return &Monitor{sources: sources}
}

// Report is the aggregated reading across all sources, plus the worst
// severity seen (the overall health at a glance).
type Report struct {
	Statuses []Status `json:"statuses"`
	Worst    Severity `json:"worst"`
}

// Check queries every source and returns the aggregated report.
func (m *Monitor) Check() Report {
	statuses := make([]Status, 0, len(m.sources))
	worst := Inactive
	for _, src := range m.sources {
		s := src.Check()
		statuses = append(statuses, s)
		if s.Severity > worst {
			worst = s.Severity
		}
	}
	return Report{Statuses: statuses, Worst: worst}
}

// ToJSON serializes a Report.
func ToJSON(r Report) (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("dashboard: marshaling report: %w", err)
	}
	return string(b), nil
}

// lastPushSource reports the outcome of the most recently completed full
// push: NORMAL on success, WARNING on interruption, ERROR on failure,
// INACTIVE if no push has completed yet.
type lastPushSource struct {
	j *journal.Journal
}

// NewLastPushSource builds a StatusSource over j's last-push outcome.
func NewLastPushSource(j *journal.Journal) StatusSource {
	return lastPushSource{j: j}
}

func (s lastPushSource) Name() string { return "last-push" }

func (s lastPushSource) Check() Status {
	snap := s.j.Snapshot()
	switch snap.LastPushStatus {
	case journal.PushSuccess:
		return Status{Name: s.Name(), Severity: Normal, Message: "last full push succeeded"}
	case journal.PushInterruption:
		return Status{Name: s.Name(), Severity: Warning, Message: "last full push was interrupted"}
	case journal.PushFailure:
		return Status{Name: s.Name(), Severity: Error, Message: "last full push failed"}
	default:
		return Status{Name: s.Name(), Severity: Inactive, Message: "no full push has completed yet"}
	}
}

// retrieverErrorRateSource reports WARNING above 1/16 and ERROR above 1/8
// of recent adaptor retrieval calls failing.
type retrieverErrorRateSource struct {
	j *journal.Journal
}

// NewRetrieverErrorRateSource builds a StatusSource over j's retriever
// error rate.
func NewRetrieverErrorRateSource(j *journal.Journal) StatusSource {
	return retrieverErrorRateSource{j: j}
}

func (s retrieverErrorRateSource) Name() string { return "retriever-error-rate" }

func (s retrieverErrorRateSource) Check() Status {
	rate := s.j.RetrieverErrorRate()
	msg := fmt.Sprintf("retriever error rate %.1f%%", rate*100)
	switch {
	case rate > 1.0/8:
		return Status{Name: s.Name(), Severity: Error, Message: msg}
	case rate > 1.0/16:
		return Status{Name: s.Name(), Severity: Warning, Message: msg}
	default:
		return Status{Name: s.Name(), Severity: Normal, Message: msg}
	}
}

// crawledRecentlySource reports ERROR if nothing has been crawled in the
// last 24 hours.
type crawledRecentlySource struct {
	j *journal.Journal
}

// NewCrawledRecentlySource builds a StatusSource over j's crawl recency.
func NewCrawledRecentlySource(j *journal.Journal) StatusSource {
	return crawledRecentlySource{j: j}
}

func (s crawledRecentlySource) Name() string { return "crawled-within-24h" }

func (s crawledRecentlySource) Check() Status {
	if s.j.CrawledWithinLast24h() {
		return Status{Name: s.Name(), Severity: Normal, Message: "a document was crawled within the last 24 hours"}
	}
	return Status{Name: s.Name(), Severity: Error, Message: "no document has been crawled in the last 24 hours"}
}

// DefaultMonitor builds the standard monitor wired over j's three built-in
// sources.
func DefaultMonitor(j *journal.Journal) *Monitor {
	return NewMonitor(
		NewLastPushSource(j),
		NewRetrieverErrorRateSource(j),
		NewCrawledRecentlySource(j),
	)
}
