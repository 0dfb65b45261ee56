package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestCountersUniqueVsTotal(t *testing.T) {
	j := New()
	j.RecordRequest("a", true, time.Millisecond, time.Millisecond, 10, 20)
	j.RecordRequest("a", true, time.Millisecond, time.Millisecond, 10, 20)
	j.RecordRequest("b", true, time.Millisecond, time.Millisecond, 10, 20)

	snap := j.Snapshot()
	assert.Equal(t, int64(2), snap.GSARequestsUnique)
	assert.Equal(t, int64(3), snap.GSARequestsTotal)
}

func TestFullPushLifecycle(t *testing.T) {
	j := New()
	id := j.RecordFullPushStarted()
	assert.NotEmpty(t, id)

	j.RecordPushed("doc1")
	j.RecordPushed("doc1")
	j.RecordPushed("doc2")

	snap := j.Snapshot()
	assert.Equal(t, int64(2), snap.PushedUnique)
	assert.Equal(t, int64(3), snap.PushedTotal)

	j.RecordFullPushResult(PushSuccess)
	assert.Equal(t, PushSuccess, j.Snapshot().LastPushStatus)
}

func TestCrawledWithin24h(t *testing.T) {
	j := New()
	assert.False(t, j.CrawledWithinLast24h())

	j.RecordRequest("doc", true, 0, 0, 0, 0)
	assert.True(t, j.CrawledWithinLast24h())
}

func TestRetrieverErrorRate(t *testing.T) {
	j := New()
	assert.Equal(t, 0.0, j.RetrieverErrorRate())

	for i := 0; i < 15; i++ {
		j.RecordRetrieverError(i%2 == 0)
	}
	rate := j.RetrieverErrorRate()
	assert.InDelta(t, 8.0/15.0, rate, 0.01)
}

func TestConsecutiveRequestsCountedAsUnique(t *testing.T) {
	j := New()
	j.RecordRequest("a", false, time.Millisecond, time.Millisecond, 1, 1)
	// A second request for a different docid, recorded right after the
	// first, must also be accounted in the unique counter.
	j.RecordRequest("b", false, time.Millisecond, time.Millisecond, 1, 1)
	snap := j.Snapshot()
	assert.Equal(t, int64(2), snap.NonGSARequestsUniq)
}
