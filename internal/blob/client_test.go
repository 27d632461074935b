package blob

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/blobsync/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "container", Anonymous, srv.Client(), nil)
}

func TestGetBlockListNotFoundIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/container/file.bin", r.URL.Path)
		assert.Equal(t, "blocklist", r.URL.Query().Get("comp"))
		assert.Equal(t, "all", r.URL.Query().Get("blocklisttype"))
		w.WriteHeader(http.StatusNotFound)
	})

	list, err := c.GetBlockList(t.Context(), "file.bin")
	require.NoError(t, err)
	assert.False(t, list.Found)
	assert.Empty(t, list.Entries)
	assert.False(t, list.ObjectExists())
}

func TestGetBlockListDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ms-blob-content-length", "525288")
		io.WriteString(w, sampleListing)
	})

	list, err := c.GetBlockList(t.Context(), "file.bin")
	require.NoError(t, err)
	assert.True(t, list.Found)
	assert.Equal(t, int64(525288), list.ContentLength)
	assert.Len(t, list.Entries, 3)
}

func TestGetBlockListServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.GetBlockList(t.Context(), "file.bin")

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusInternalServerError, te.Status)
	assert.Equal(t, "boom", te.Body)
	assert.True(t, te.Retryable())
}

func TestGetRangeSendsRangeAndVerifiesMD5(t *testing.T) {
	payload := []byte("0123456789")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=4-7", r.Header.Get("x-ms-range"))
		w.Header().Set("Content-MD5", domain.Checksum(payload[4:8]))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[4:8])
	})

	data, err := c.GetRange(t.Context(), "file.bin", 4, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("4567"), data)
}

func TestGetRangeChecksumMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-MD5", domain.Checksum([]byte("other")))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("abcd"))
	})

	_, err := c.GetRange(t.Context(), "file.bin", 0, 4)
	assert.ErrorIs(t, err, domain.ErrChecksumMismatch)
}

func TestGetRangeIgnoredRangeFallsBack(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "0123456789")
	})

	data, err := c.GetRange(t.Context(), "file.bin", 6, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("6789"), data)
}

func TestPutBlock(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "block", r.URL.Query().Get("comp"))
		assert.Equal(t, domain.BlockID(3), r.URL.Query().Get("blockid"))
		assert.Equal(t, domain.Checksum([]byte("data")), r.Header.Get("Content-MD5"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "data", string(body))
		w.WriteHeader(http.StatusCreated)
	})

	err := c.PutBlock(t.Context(), "file.bin", domain.BlockID(3), []byte("data"), domain.Checksum([]byte("data")))
	require.NoError(t, err)
}

func TestPutBlockFailureCarriesBlockIndex(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	err := c.PutBlock(t.Context(), "file.bin", domain.BlockID(7), []byte("x"), "")

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, int64(7), te.Block)
	assert.Equal(t, http.StatusForbidden, te.Status)
	assert.False(t, te.Retryable())
	assert.Contains(t, err.Error(), "block #7")
}

func TestPutBlockList(t *testing.T) {
	ids := []string{domain.BlockID(0), domain.BlockID(1)}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "blocklist", r.URL.Query().Get("comp"))
		refs, err := DecodeBlockListRequest(r.Body)
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, ids[0], refs[0].ID)
		assert.Equal(t, ids[1], refs[1].ID)
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, c.PutBlockList(t.Context(), "file.bin", ids))
}

func TestNetworkErrorIsTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "container", nil, nil, nil)

	_, err := c.GetBlockList(t.Context(), "file.bin")

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.Status)
	assert.True(t, te.Retryable())
}
