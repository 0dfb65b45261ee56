package unzip

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"strings"

	"github.com/docuhub/gsadapt/acl"
	"github.com/docuhub/gsadapt/adaptor"
	"github.com/docuhub/gsadapt/common"
	"github.com/docuhub/gsadapt/config"
	"github.com/docuhub/gsadapt/docid"
	"github.com/docuhub/gsadapt/feed"
	"github.com/docuhub/gsadapt/push"
)

// Wrapper decorates an adaptor.Adaptor, virtualizing zip archive members as
// child docids of the form "outer!inner!...".
type Wrapper struct {
	inner  adaptor.Adaptor
	logger *common.ContextLogger
}

// Wrap constructs a Wrapper around inner.
func Wrap(inner adaptor.Adaptor) *Wrapper {
	return &Wrapper{inner: inner, logger: common.ServiceLogger("unzip")}
}

func (w *Wrapper) InitConfig(cfg *config.Config) error { return w.inner.InitConfig(cfg) }

func (w *Wrapper) Init(ctx context.Context) error { return w.inner.Init(ctx) }

func (w *Wrapper) Destroy(ctx context.Context) error { return w.inner.Destroy(ctx) }

// GetDocIds drives the wrapped adaptor's listing, expanding zip members into
// child records via expandingPusher (expand fetches each archive through
// fetchContentToTemp).
func (w *Wrapper) GetDocIds(ctx context.Context, pusher push.PushContext) error {
	expander := &expandingPusher{
		ctx:    ctx,
		out:    pusher,
		fetch:  w.fetchContentToTemp,
		logger: w.logger,
	}
	return w.inner.GetDocIds(ctx, expander)
}

// expandingPusher expands any listed ".zip" record into one synthetic child
// record per archive member, recursing into nested archives.
type expandingPusher struct {
	ctx    context.Context
	out    push.PushContext
	fetch  func(ctx context.Context, id docid.DocID) (string, func(), error)
	logger *common.ContextLogger
}

func (p *expandingPusher) Send(ctx context.Context, records []feed.Record) error {
	expanded := make([]feed.Record, 0, len(records))
	for _, rec := range records {
		expanded = append(expanded, rec)
		if rec.Delete || !strings.HasSuffix(string(rec.ID), ".zip") {
			continue
		}
		children, err := p.expand(ctx, rec.ID, Escape(string(rec.ID)))
		if err != nil {
			p.logger.WithError(err).WithField("docid", string(rec.ID)).Warn("zip expansion failed")
			continue
		}
		expanded = append(expanded, children...)
	}
	return p.out.Send(ctx, expanded)
}

// expand fetches the archive at outerID's content and emits one record per
// non-directory member, recursing into nested zips.
func (p *expandingPusher) expand(ctx context.Context, outerID docid.DocID, virtualPrefix string) ([]feed.Record, error) {
	path, cleanup, err := p.fetch(ctx, outerID)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return p.expandArchiveAt(path, virtualPrefix)
}

// expandArchiveAt lists the non-directory members of the zip at path,
// recursing into members that are themselves zips.
func (p *expandingPusher) expandArchiveAt(path, virtualPrefix string) ([]feed.Record, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out []feed.Record
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		childVirtual := virtualPrefix + string(delimiter) + Escape(f.Name)
		out = append(out, feed.NewRecordBuilder(docid.DocID(childVirtual)).Build())

		if !strings.HasSuffix(f.Name, ".zip") {
			continue
		}
		nested, err := p.expandNestedEntry(f, childVirtual)
		if err != nil {
			p.logger.WithError(err).WithField("docid", childVirtual).Warn("nested zip expansion failed")
			continue
		}
		out = append(out, nested...)
	}
	return out, nil
}

// expandNestedEntry copies a zip member to a temp file and recurses into it
// via expandArchiveAt.
func (p *expandingPusher) expandNestedEntry(f *zip.File, virtualPrefix string) ([]feed.Record, error) {
	path, cleanup, err := copyZipEntryToTemp(f)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return p.expandArchiveAt(path, virtualPrefix)
}

// copyZipEntryToTemp copies a zip member's bytes to a fresh temp file,
// returning its path and a cleanup func.
func copyZipEntryToTemp(f *zip.File) (string, func(), error) {
	tmp, err := os.CreateTemp("", "unzip-nested-*.zip")
	if err != nil {
		return "", nil, err
	}
	path := tmp.Name()
	cleanup := func() { os.Remove(path) }

	rc, err := f.Open()
	if err != nil {
		tmp.Close()
		cleanup()
		return "", nil, err
	}
	_, copyErr := io.Copy(tmp, rc)
	rc.Close()
	closeErr := tmp.Close()
	if copyErr != nil {
		cleanup()
		return "", nil, copyErr
	}
	if closeErr != nil {
		cleanup()
		return "", nil, closeErr
	}
	return path, cleanup, nil
}

// fetchContentToTemp fetches id's content from the wrapped adaptor into a
// temp file, returning its path and a cleanup func.
func (w *Wrapper) fetchContentToTemp(ctx context.Context, id docid.DocID) (string, func(), error) {
	tmp, err := os.CreateTemp("", "unzip-fetch-*.zip")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	rw := &tempResponseWriter{f: tmp}
	err = w.inner.GetDocContent(ctx, &adaptor.Request{ID: id}, rw)
	closeErr := tmp.Close()
	if err != nil {
		cleanup()
		return "", nil, err
	}
	if closeErr != nil {
		cleanup()
		return "", nil, closeErr
	}
	return tmp.Name(), cleanup, nil
}

// tempResponseWriter adapts adaptor.ResponseWriter onto an *os.File so the
// wrapped adaptor's normal content path can be reused to materialize a zip
// to disk.
type tempResponseWriter struct {
	f            *os.File
	notModified  bool
}

func (w *tempResponseWriter) Write(p []byte) (int, error) { return w.f.Write(p) }
func (w *tempResponseWriter) RespondNotModified()          { w.notModified = true }
func (w *tempResponseWriter) SetContentType(string)        {}
func (w *tempResponseWriter) SetMetadata(string, string)   {}

// GetDocContent serves a request. If the docid contains no unescaped "!" it
// is passed straight through; otherwise the outer archive (and any nested
// archives) is fetched to disk and the named entry is streamed out.
func (w *Wrapper) GetDocContent(ctx context.Context, req *adaptor.Request, resp adaptor.ResponseWriter) error {
	outer, rest, ok := Split(string(req.ID))
	if !ok {
		return w.inner.GetDocContent(ctx, req, resp)
	}

	path, cleanup, err := w.fetchContentToTemp(ctx, docid.DocID(outer))
	if err != nil {
		return err
	}
	defer cleanup()

	return w.streamFromZip(path, rest, resp)
}

// streamFromZip opens the zip at path and either streams the named entry
// (if remainder has no further "!") or recurses into a nested zip member.
func (w *Wrapper) streamFromZip(path, remainder string, resp adaptor.ResponseWriter) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	entryName, rest, hasMore := Split(remainder)
	if !hasMore {
		entryName = Unescape(remainder)
	}

	var target *zip.File
	for _, f := range zr.File {
		if f.Name == entryName {
			target = f
			break
		}
	}
	if target == nil {
		return adaptor.ErrNotFound
	}

	if !hasMore {
		rc, err := target.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		resp.SetContentType("application/octet-stream")
		_, err = io.Copy(resp, rc)
		return err
	}

	nestedPath, cleanup, err := copyZipEntryToTemp(target)
	if err != nil {
		return err
	}
	defer cleanup()

	return w.streamFromZip(nestedPath, rest, resp)
}

// IsUserAuthorized strips virtual components from every requested docid and
// delegates to the wrapped adaptor about the outer docid only, mapping
// results back onto the original (virtual) ids.
func (w *Wrapper) IsUserAuthorized(ctx context.Context, user string, groups []string, ids []docid.DocID) (map[docid.DocID]acl.AuthzStatus, error) {
	outerOf := make(map[docid.DocID]docid.DocID, len(ids))
	var outerIDs []docid.DocID
	seen := map[docid.DocID]bool{}
	for _, id := range ids {
		outer, _, ok := Split(string(id))
		var outerID docid.DocID
		if ok {
			outerID = docid.DocID(outer)
		} else {
			outerID = id
		}
		outerOf[id] = outerID
		if !seen[outerID] {
			seen[outerID] = true
			outerIDs = append(outerIDs, outerID)
		}
	}

	outerResults, err := w.inner.IsUserAuthorized(ctx, user, groups, outerIDs)
	if err != nil {
		return nil, err
	}

	results := make(map[docid.DocID]acl.AuthzStatus, len(ids))
	for _, id := range ids {
		results[id] = outerResults[outerOf[id]]
	}
	return results, nil
}
