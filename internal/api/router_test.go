package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/blobsync/internal/api/controllers"
	"github.com/datallboy/blobsync/internal/app"
	"github.com/datallboy/blobsync/internal/blob"
	"github.com/datallboy/blobsync/internal/domain"
	"github.com/datallboy/blobsync/internal/infra/logger"
)

func newEmulator(t *testing.T, verifier *blob.SharedKeySigner) (*httptest.Server, *controllers.MemoryStore) {
	t.Helper()
	store := controllers.NewMemoryStore()
	srv := httptest.NewServer(NewServer(app.NewContext(nil, logger.NewNop()), store, verifier))
	t.Cleanup(srv.Close)
	return srv, store
}

func newClient(srv *httptest.Server, signer blob.Signer) *blob.Client {
	return blob.NewClient(srv.URL, "container", signer, srv.Client(), nil)
}

func stage(t *testing.T, c *blob.Client, name string, index int64, data string) string {
	t.Helper()
	id := domain.BlockID(index)
	require.NoError(t, c.PutBlock(t.Context(), name, id, []byte(data), domain.Checksum([]byte(data))))
	return id
}

func TestMissingBlobListsAsNotFound(t *testing.T) {
	srv, _ := newEmulator(t, nil)
	c := newClient(srv, nil)

	list, err := c.GetBlockList(t.Context(), "nothing.bin")
	require.NoError(t, err)
	assert.False(t, list.Found)
	assert.False(t, list.ObjectExists())
}

func TestStageCommitRead(t *testing.T) {
	srv, store := newEmulator(t, nil)
	c := newClient(srv, nil)
	ctx := t.Context()

	id0 := stage(t, c, "file.bin", 0, "hello ")
	id1 := stage(t, c, "file.bin", 1, "world")

	list, err := c.GetBlockList(ctx, "file.bin")
	require.NoError(t, err)
	assert.True(t, list.Found)
	assert.False(t, list.ObjectExists(), "staged blocks alone are not an object")
	assert.Equal(t, int64(-1), list.ContentLength)
	assert.Equal(t, []domain.ListEntry{
		{ID: id0, Category: domain.CategoryStaged, Size: 6},
		{ID: id1, Category: domain.CategoryStaged, Size: 5},
	}, list.Entries)

	require.NoError(t, c.PutBlockList(ctx, "file.bin", []string{id0, id1}))

	list, err = c.GetBlockList(ctx, "file.bin")
	require.NoError(t, err)
	assert.True(t, list.ObjectExists())
	assert.Equal(t, int64(11), list.ContentLength)
	assert.Equal(t, []domain.ListEntry{
		{ID: id0, Category: domain.CategoryCommitted, Size: 6},
		{ID: id1, Category: domain.CategoryCommitted, Size: 5},
	}, list.Entries, "staged set is cleared by the commit")

	data, err := c.GetRange(ctx, "file.bin", 6, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	data, err = c.GetRange(ctx, "file.bin", 3, 100)
	require.NoError(t, err)
	assert.Equal(t, "lo world", string(data), "range is clamped at the end of the blob")

	assert.Equal(t, []string{id0, id1}, store.CommittedIDs("container", "file.bin"))

	stats := store.Stats()
	assert.Equal(t, 2, stats[controllers.OpPutBlock])
	assert.Equal(t, 1, stats[controllers.OpPutBlockList])
	assert.Equal(t, 2, stats[controllers.OpGetBlockList])
	assert.Equal(t, 2, stats[controllers.OpGetBlob])
}

func TestRangePastEndIsUnsatisfiable(t *testing.T) {
	srv, _ := newEmulator(t, nil)
	c := newClient(srv, nil)

	id := stage(t, c, "file.bin", 0, "abc")
	require.NoError(t, c.PutBlockList(t.Context(), "file.bin", []string{id}))

	_, err := c.GetRange(t.Context(), "file.bin", 3, 10)

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, te.Status)
}

func TestEmptyCommitCreatesEmptyObject(t *testing.T) {
	srv, _ := newEmulator(t, nil)
	c := newClient(srv, nil)

	require.NoError(t, c.PutBlockList(t.Context(), "empty.bin", nil))

	list, err := c.GetBlockList(t.Context(), "empty.bin")
	require.NoError(t, err)
	assert.True(t, list.ObjectExists())
	assert.Equal(t, int64(0), list.ContentLength)
	assert.Empty(t, list.Entries)
}

func TestBadChecksumIsRejected(t *testing.T) {
	srv, store := newEmulator(t, nil)
	c := newClient(srv, nil)

	err := c.PutBlock(t.Context(), "file.bin", domain.BlockID(0), []byte("data"), domain.Checksum([]byte("other")))

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Equal(t, int64(0), te.Block)
	assert.Contains(t, te.Body, controllers.CodeMd5Mismatch)

	list, err := c.GetBlockList(t.Context(), "file.bin")
	require.NoError(t, err)
	assert.False(t, list.Found, "rejected block was not staged")
	assert.Equal(t, 1, store.Stats()[controllers.OpPutBlock])
}

func TestCommitUnknownBlockFails(t *testing.T) {
	srv, _ := newEmulator(t, nil)
	c := newClient(srv, nil)

	err := c.PutBlockList(t.Context(), "file.bin", []string{domain.BlockID(9)})

	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Contains(t, te.Body, controllers.CodeInvalidBlockList)
}

func TestRecommitSameListIsNoOp(t *testing.T) {
	srv, store := newEmulator(t, nil)
	c := newClient(srv, nil)
	ctx := t.Context()

	ids := []string{stage(t, c, "file.bin", 0, "aa"), stage(t, c, "file.bin", 1, "bb")}
	require.NoError(t, c.PutBlockList(ctx, "file.bin", ids))
	first, _ := store.Content("container", "file.bin")

	// now resolved from the committed set
	require.NoError(t, c.PutBlockList(ctx, "file.bin", ids))
	second, _ := store.Content("container", "file.bin")

	assert.Equal(t, first, second)
	assert.Equal(t, ids, store.CommittedIDs("container", "file.bin"))
}

func TestCommitResolvesLatestOverCommitted(t *testing.T) {
	srv, store := newEmulator(t, nil)
	c := newClient(srv, nil)
	ctx := t.Context()

	id := stage(t, c, "file.bin", 0, "old")
	require.NoError(t, c.PutBlockList(ctx, "file.bin", []string{id}))
	stage(t, c, "file.bin", 0, "new")
	require.NoError(t, c.PutBlockList(ctx, "file.bin", []string{id}))

	content, ok := store.Content("container", "file.bin")
	require.True(t, ok)
	assert.Equal(t, "new", string(content))
}

func TestExplicitCommittedReference(t *testing.T) {
	srv, store := newEmulator(t, nil)
	c := newClient(srv, nil)
	ctx := t.Context()

	id := stage(t, c, "file.bin", 0, "old")
	require.NoError(t, c.PutBlockList(ctx, "file.bin", []string{id}))
	stage(t, c, "file.bin", 0, "new")

	body := `<?xml version="1.0" encoding="utf-8"?><BlockList><Committed>` + id + `</Committed></BlockList>`
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/container/file.bin?comp=blocklist", strings.NewReader(body))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	content, _ := store.Content("container", "file.bin")
	assert.Equal(t, "old", string(content))
}

func TestInvalidBlockID(t *testing.T) {
	srv, _ := newEmulator(t, nil)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/container/file.bin?comp=block&blockid=%25%25", strings.NewReader("x"))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, controllers.CodeInvalidBlockID, resp.Header.Get("x-ms-error-code"))
}

func TestSharedKeyAuth(t *testing.T) {
	verifier, err := blob.NewSharedKeySigner("acct", "c2VjcmV0LWtleQ==")
	require.NoError(t, err)
	srv, _ := newEmulator(t, verifier)

	_, err = newClient(srv, blob.Anonymous).GetBlockList(t.Context(), "file.bin")
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusForbidden, te.Status)

	wrong, err := blob.NewSharedKeySigner("acct", "b3RoZXIta2V5")
	require.NoError(t, err)
	_, err = newClient(srv, wrong).GetBlockList(t.Context(), "file.bin")
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusForbidden, te.Status)

	signer, err := blob.NewSharedKeySigner("acct", "c2VjcmV0LWtleQ==")
	require.NoError(t, err)
	c := newClient(srv, signer)
	id := stage(t, c, "file.bin", 0, "signed")
	require.NoError(t, c.PutBlockList(t.Context(), "file.bin", []string{id}))

	data, err := c.GetRange(t.Context(), "file.bin", 0, 6)
	require.NoError(t, err)
	assert.Equal(t, "signed", string(data))
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header     string
		size       int64
		start, end int64
		wantErr    bool
	}{
		{"bytes=0-9", 100, 0, 9, false},
		{"bytes=90-199", 100, 90, 99, false},
		{"bytes=10-", 100, 10, 99, false},
		{"bytes=100-101", 100, 0, 0, true},
		{"bytes=5-4", 100, 0, 0, true},
		{"items=0-1", 100, 0, 0, true},
		{"bytes=x-1", 100, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			start, end, err := controllers.ParseRange(tt.header, tt.size)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}
