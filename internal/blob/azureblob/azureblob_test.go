package azureblob

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tonimelisma/onedrive-backup/internal/blob"
)

func testBlob(t *testing.T) *Blob {
	t.Helper()
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	b, err := New(Config{
		Account:    "myaccount",
		AccountKey: key,
		Container:  "mycontainer",
		Prefix:     "backup/",
	}, http.DefaultClient, http.DefaultClient)
	require.NoError(t, err)
	return b
}

func TestNew_RejectsInvalidKey(t *testing.T) {
	_, err := New(Config{Account: "a", AccountKey: "not-base64!!", Container: "c"}, nil, nil)
	assert.Error(t, err)
}

func TestNew_DefaultsNilClientsToHTTPDefaultClient(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	b, err := New(Config{Account: "a", AccountKey: key, Container: "c"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.DefaultClient, b.client)
	assert.Equal(t, http.DefaultClient, b.uploadClient)
}

func TestBlobURL_AppliesPrefixAndEscaping(t *testing.T) {
	b := testBlob(t)
	got := b.blobURL("dir/file name.txt")
	assert.Contains(t, got, "https://myaccount.blob.core.windows.net/mycontainer/")
	assert.Contains(t, got, url.PathEscape("backup/dir/file name.txt"))
}

func TestCanonicalizeHeaders_SortsAndFiltersXMS(t *testing.T) {
	h := http.Header{}
	h.Set("x-ms-version", "2021-08-06")
	h.Set("x-ms-blob-type", "BlockBlob")
	h.Set("Content-Type", "text/plain")

	got := canonicalizeHeaders(h)
	assert.Equal(t, "x-ms-blob-type:BlockBlob\nx-ms-version:2021-08-06", got)
}

func TestCanonicalResource_IncludesAccountAndSortedQuery(t *testing.T) {
	b := testBlob(t)
	u, err := url.Parse("https://myaccount.blob.core.windows.net/mycontainer?restype=container&comp=list")
	require.NoError(t, err)

	got := b.canonicalResource(u)
	assert.True(t, strings.HasPrefix(got, "/myaccount/mycontainer"))
	assert.True(t, strings.Index(got, "comp:list") < strings.Index(got, "restype:container"))
}

func TestSign_ProducesSharedKeyHeader(t *testing.T) {
	b := testBlob(t)
	req, err := http.NewRequest(http.MethodHead, b.blobURL("file.json"), nil)
	require.NoError(t, err)
	req.Header.Set("x-ms-date", "Mon, 01 Jan 2024 00:00:00 GMT")
	req.Header.Set("x-ms-version", apiVersion)

	sig, err := b.sign(req, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "SharedKey myaccount:"))
}

func TestHead_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := testBlob(t)
	b.endpoint = srv.URL

	_, err := b.Head(context.Background(), "missing.json")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}
