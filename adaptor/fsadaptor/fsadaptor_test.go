package fsadaptor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuhub/gsadapt/acl"
	"github.com/docuhub/gsadapt/adaptor"
	"github.com/docuhub/gsadapt/docid"
	"github.com/docuhub/gsadapt/feed"
)

type recordingWriter struct {
	bytes.Buffer
	contentType  string
	notModified  bool
	metadata     map[string]string
}

func (w *recordingWriter) RespondNotModified()        { w.notModified = true }
func (w *recordingWriter) SetContentType(mime string) { w.contentType = mime }
func (w *recordingWriter) SetMetadata(key, value string) {
	if w.metadata == nil {
		w.metadata = map[string]string{}
	}
	w.metadata[key] = value
}

type recordingPusher struct {
	batches [][]feed.Record
}

func (p *recordingPusher) Send(ctx context.Context, records []feed.Record) error {
	p.batches = append(p.batches, records)
	return nil
}

func writeFile(t *testing.T, root, rel, content string) {
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestGetDocIdsListsRegularFilesOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	writeFile(t, root, "sub/b.txt", "world")
	writeFile(t, root, "a.txt.acl.json", `{"permitUsers":["alice"]}`)

	a := New(root)
	pusher := &recordingPusher{}
	require.NoError(t, a.GetDocIds(context.Background(), pusher))

	var ids []string
	for _, batch := range pusher.batches {
		for _, r := range batch {
			ids = append(ids, string(r.ID))
		}
	}
	assert.ElementsMatch(t, []string{"a.txt", filepath.ToSlash("sub/b.txt")}, ids)
}

func TestGetDocContentServesFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello world")

	a := New(root)
	w := &recordingWriter{}
	err := a.GetDocContent(context.Background(), &adaptor.Request{ID: "a.txt"}, w)
	require.NoError(t, err)
	assert.Equal(t, "hello world", w.String())
	assert.Equal(t, "text/plain", w.contentType)
}

func TestGetDocContentMissingFileIsNotFound(t *testing.T) {
	root := t.TempDir()
	a := New(root)
	w := &recordingWriter{}
	err := a.GetDocContent(context.Background(), &adaptor.Request{ID: "missing.txt"}, w)
	assert.ErrorIs(t, err, adaptor.ErrNotFound)
}

func TestIsUserAuthorizedRespectsSidecarACL(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "secret.txt", "top secret")
	writeFile(t, root, "secret.txt.acl.json", `{"permitUsers":["alice"]}`)
	writeFile(t, root, "unprotected.txt", "no sidecar at all")

	a := New(root)
	result, err := a.IsUserAuthorized(context.Background(), "alice", nil, []docid.DocID{"secret.txt", "unprotected.txt"})
	require.NoError(t, err)
	assert.Equal(t, acl.Permit, result["secret.txt"])
	// No ACL data anywhere resolves to an empty LEAF_NODE, which is an
	// INDETERMINATE chain result and therefore denied by default.
	assert.Equal(t, acl.Deny, result["unprotected.txt"])

	result, err = a.IsUserAuthorized(context.Background(), "bob", nil, []docid.DocID{"secret.txt"})
	require.NoError(t, err)
	assert.Equal(t, acl.Deny, result["secret.txt"])
}
