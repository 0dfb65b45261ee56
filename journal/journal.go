// Package journal accumulates push/request statistics under a single mutex
// and feeds the dashboard's status sources and JSON-RPC snapshots.
package journal

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PushStatus is the outcome of the most recently completed full push.
type PushStatus int

const (
	PushNone PushStatus = iota
	PushSuccess
	PushInterruption
	PushFailure
)

func (s PushStatus) String() string {
	switch s {
	case PushSuccess:
		return "SUCCESS"
	case PushInterruption:
		return "INTERRUPTION"
	case PushFailure:
		return "FAILURE"
	default:
		return "NONE"
	}
}

// counter tracks unique-docid cardinality plus a running total.
type counter struct {
	seen  map[string]struct{}
	total int64
}

func newCounter() counter {
	return counter{seen: map[string]struct{}{}}
}

func (c *counter) add(id string) {
	c.seen[id] = struct{}{}
	c.total++
}

func (c *counter) snapshot() (unique, total int64) {
	return int64(len(c.seen)), c.total
}

// bucket is one slot of a circular-buffer stats window.
type bucket struct {
	responses      int64
	durationTotal  time.Duration
	durationMax    time.Duration
	processing     int64
	processingTot  time.Duration
	processingMax  time.Duration
	bytesIn        int64
	bytesOut       int64
}

// window is a circular buffer of buckets spanning `len(buckets) * granularity`.
type window struct {
	granularity time.Duration
	buckets     []bucket
	cur         int
	pendingEnd  time.Time
	initialized bool
}

func newWindow(numBuckets int, granularity time.Duration) *window {
	return &window{granularity: granularity, buckets: make([]bucket, numBuckets)}
}

// advance implements getCurrentStat's three-branch algorithm: return the
// current bucket unless now has moved past its pending end, in which case
// roll forward (resetting passed buckets) or, if now is far enough past,
// reset the whole window and realign.
func (w *window) advance(now time.Time) *bucket {
	if !w.initialized {
		w.initialized = true
		w.cur = 0
		w.pendingEnd = now.Add(w.granularity)
		w.buckets[w.cur] = bucket{}
		return &w.buckets[w.cur]
	}

	if now.Before(w.pendingEnd) {
		return &w.buckets[w.cur]
	}

	fullSpan := time.Duration(len(w.buckets)) * w.granularity
	if now.Sub(w.pendingEnd) >= fullSpan {
		for i := range w.buckets {
			w.buckets[i] = bucket{}
		}
		w.cur = 0
		w.pendingEnd = now.Add(w.granularity)
		return &w.buckets[w.cur]
	}

	for w.pendingEnd.Before(now) || w.pendingEnd.Equal(now) {
		w.cur = (w.cur + 1) % len(w.buckets)
		w.buckets[w.cur] = bucket{}
		w.pendingEnd = w.pendingEnd.Add(w.granularity)
	}
	return &w.buckets[w.cur]
}

func (w *window) record(now time.Time, respDur, procDur time.Duration, bytesIn, bytesOut int64) {
	b := w.advance(now)
	b.responses++
	b.durationTotal += respDur
	if respDur > b.durationMax {
		b.durationMax = respDur
	}
	b.processing++
	b.processingTot += procDur
	if procDur > b.processingMax {
		b.processingMax = procDur
	}
	b.bytesIn += bytesIn
	b.bytesOut += bytesOut
}

func (w *window) clone() []bucket {
	out := make([]bucket, len(w.buckets))
	copy(out, w.buckets)
	return out
}

// Journal is the single authoritative store of adaptor-process statistics.
// It is constructed once and passed explicitly to every component that
// needs it — never a process-global singleton.
type Journal struct {
	mu sync.Mutex

	pushed         counter
	gsaRequests    counter
	nonGsaRequests counter

	lastPushStatus PushStatus
	lastPushID     string

	lastIndexerFetch time.Time

	retrieverRequests int64
	retrieverErrors   int64

	secondWindow *window
	minuteWindow *window
	halfHrWindow *window
}

// New constructs an empty Journal with the spec's fixed window shapes:
// 60 buckets of 1s, 60 buckets of 1m, 48 buckets of 30m.
func New() *Journal {
	return &Journal{
		secondWindow: newWindow(60, time.Second),
		minuteWindow: newWindow(60, time.Minute),
		halfHrWindow: newWindow(48, 30*time.Minute),
	}
}

// RecordPushed registers one docid as pushed in the current full push.
func (j *Journal) RecordPushed(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pushed.add(id)
}

// RecordRequest classifies and records an incoming document request,
// updating unique/total counters and all three stat windows.
func (j *Journal) RecordRequest(id string, fromIndexer bool, procDur, respDur time.Duration, bytesIn, bytesOut int64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if fromIndexer {
		j.gsaRequests.add(id)
		j.lastIndexerFetch = time.Now()
	} else {
		j.nonGsaRequests.add(id)
	}

	now := time.Now()
	j.secondWindow.record(now, respDur, procDur, bytesIn, bytesOut)
	j.minuteWindow.record(now, respDur, procDur, bytesIn, bytesOut)
	j.halfHrWindow.record(now, respDur, procDur, bytesIn, bytesOut)
}

// RecordFullPushStarted resets the pushed counter for a new full push run
// and returns a fresh run id.
func (j *Journal) RecordFullPushStarted() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pushed = newCounter()
	j.lastPushID = uuid.NewString()
	return j.lastPushID
}

// RecordFullPushResult stores the outcome of the most recently completed
// full push.
func (j *Journal) RecordFullPushResult(status PushStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastPushStatus = status
}

// CrawledWithinLast24h reports whether the indexer has fetched any document
// in the last 24 hours.
func (j *Journal) CrawledWithinLast24h() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.lastIndexerFetch.IsZero() {
		return false
	}
	return time.Since(j.lastIndexerFetch) <= 24*time.Hour
}

// Snapshot is a deep-cloned, point-in-time view of the journal's state,
// safe to read without holding the journal's lock.
type Snapshot struct {
	ID                 string
	PushedUnique       int64
	PushedTotal        int64
	GSARequestsUnique  int64
	GSARequestsTotal   int64
	NonGSARequestsUniq int64
	NonGSARequestsTot  int64
	LastPushStatus     PushStatus
	CrawledWithin24h   bool
}

// Snapshot returns a deep clone of the current counters under the journal's
// mutex, decoupling the reader from concurrent writers.
func (j *Journal) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	pu, pt := j.pushed.snapshot()
	gu, gt := j.gsaRequests.snapshot()
	nu, nt := j.nonGsaRequests.snapshot()

	crawled := !j.lastIndexerFetch.IsZero() && time.Since(j.lastIndexerFetch) <= 24*time.Hour

	return Snapshot{
		ID:                 uuid.NewString(),
		PushedUnique:       pu,
		PushedTotal:        pt,
		GSARequestsUnique:  gu,
		GSARequestsTotal:   gt,
		NonGSARequestsUniq: nu,
		NonGSARequestsTot:  nt,
		LastPushStatus:     j.lastPushStatus,
		CrawledWithin24h:   crawled,
	}
}

// RecordRetrieverError registers one adaptor.GetDocContent (or equivalent)
// call outcome. The dashboard's retriever-error-rate status source reads
// this via RetrieverErrorRate.
func (j *Journal) RecordRetrieverError(failed bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.retrieverRequests++
	if failed {
		j.retrieverErrors++
	}
	const sampleSize = 1000
	if j.retrieverRequests > sampleSize {
		// Decay toward the trailing window rather than keep an unbounded
		// history; approximate by halving both counters.
		j.retrieverRequests /= 2
		j.retrieverErrors /= 2
	}
}

// RetrieverErrorRate reports the fraction of recent adaptor retrieval calls
// that failed, over (approximately) the trailing 1000 requests.
func (j *Journal) RetrieverErrorRate() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.retrieverRequests == 0 {
		return 0
	}
	return float64(j.retrieverErrors) / float64(j.retrieverRequests)
}
