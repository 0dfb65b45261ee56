// Package feed builds GSA-style feed manifests from batches of docid
// records and submits them to the indexer over HTTP multipart POST.
package feed

import (
	"net/url"
	"time"

	"github.com/docuhub/gsadapt/docid"
)

// Record is one push entry: a docid plus the attributes describing how the
// indexer should treat it. Immutable after construction; equality is
// structural.
type Record struct {
	ID               docid.DocID
	Delete           bool
	LastModified      time.Time
	HasLastModified   bool
	ResultLink        *url.URL
	CrawlImmediately  bool
	CrawlOnce         bool
	Lock              bool
	Metadata          []MetaItem
}

// MetaItem is one `<meta name=... content=.../>` entry.
type MetaItem struct {
	Name    string
	Content string
}

// RecordBuilder constructs a Record. Every setter assigns its argument —
// the source's inconsistent self-assignment in some Builder setters is not
// reproduced here (see DESIGN.md's Open Question decisions).
type RecordBuilder struct {
	r Record
}

// NewRecordBuilder starts building a Record for the given docid.
func NewRecordBuilder(id docid.DocID) *RecordBuilder {
	return &RecordBuilder{r: Record{ID: id}}
}

func (b *RecordBuilder) Delete(v bool) *RecordBuilder {
	b.r.Delete = v
	return b
}

func (b *RecordBuilder) LastModified(t time.Time) *RecordBuilder {
	b.r.LastModified = t
	b.r.HasLastModified = true
	return b
}

func (b *RecordBuilder) ResultLink(u *url.URL) *RecordBuilder {
	b.r.ResultLink = u
	return b
}

func (b *RecordBuilder) CrawlImmediately(v bool) *RecordBuilder {
	b.r.CrawlImmediately = v
	return b
}

func (b *RecordBuilder) CrawlOnce(v bool) *RecordBuilder {
	b.r.CrawlOnce = v
	return b
}

func (b *RecordBuilder) Lock(v bool) *RecordBuilder {
	b.r.Lock = v
	return b
}

func (b *RecordBuilder) Meta(name, content string) *RecordBuilder {
	b.r.Metadata = append(b.r.Metadata, MetaItem{Name: name, Content: content})
	return b
}

// Build finalizes the Record. Deleted records carry no metadata regardless
// of what was added via Meta, per the feed wire format.
func (b *RecordBuilder) Build() Record {
	r := b.r
	if r.Delete {
		r.Metadata = nil
	}
	return r
}
