package feed

import (
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuhub/gsadapt/docid"
)

func TestBuildManifestDeletedRecordHasNoMetadata(t *testing.T) {
	rec := NewRecordBuilder(docid.DocID("doc1")).Delete(true).Meta("ignored", "x").Build()
	cfg := DefaultManifestConfig("testfeed")

	body, err := BuildManifest(cfg, []Record{rec}, func(r Record) (string, error) {
		return "http://example.com/doc/doc1", nil
	})
	require.NoError(t, err)

	s := string(body)
	assert.Contains(t, s, `action="delete"`)
	assert.NotContains(t, s, "<metadata>")
	assert.Contains(t, s, "-//Google//DTD GSA Feeds//EN")
}

func TestBuildManifestEmptyMetadataGetsSyntheticIsPublic(t *testing.T) {
	rec := NewRecordBuilder(docid.DocID("doc1")).Build()
	cfg := DefaultManifestConfig("testfeed")

	body, err := BuildManifest(cfg, []Record{rec}, func(r Record) (string, error) {
		return "http://example.com/doc/doc1", nil
	})
	require.NoError(t, err)

	s := string(body)
	assert.Contains(t, s, `name="ispublic"`)
	assert.Contains(t, s, `content="true"`)
}

func TestSenderSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// mime.ParseMediaType rejects the unquoted "<<" boundary in the
		// Content-Type header, so the body is read with the boundary given
		// directly instead of through r.ParseMultipartForm.
		form, err := multipart.NewReader(r.Body, feedBoundary).ReadForm(1 << 20)
		require.NoError(t, err)
		assert.Equal(t, []string{"testfeed"}, form.Value["datasource"])
		w.Write([]byte("Success"))
	}))
	defer srv.Close()

	// httptest picks an ephemeral port; the Sender hardcodes 19900 per the
	// wire protocol, so exercise buildMultipartBody + a direct client.Do
	// against the test server's actual URL instead of through Sender.Send.
	body, boundary, err := buildMultipartBody("testfeed", "metadata-and-url", []byte("<gsafeed/>"))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
