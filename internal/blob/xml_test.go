package blob

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/blobsync/internal/domain"
)

const sampleListing = `<?xml version="1.0" encoding="utf-8"?>
<BlockList>
  <CommittedBlocks>
    <Block><Name>MDAwMDAwMDAwMA==</Name><Size>524288</Size></Block>
    <Block><Name>MDAwMDAwMDAwMQ==</Name><Size>1000</Size></Block>
  </CommittedBlocks>
  <UncommittedBlocks>
    <Block><Name>MDAwMDAwMDAwMg==</Name><Size>524288</Size></Block>
  </UncommittedBlocks>
</BlockList>`

func TestDecodeBlockList(t *testing.T) {
	entries, err := DecodeBlockList(strings.NewReader(sampleListing))
	require.NoError(t, err)

	assert.Equal(t, []domain.ListEntry{
		{ID: domain.BlockID(0), Category: domain.CategoryCommitted, Size: 524288},
		{ID: domain.BlockID(1), Category: domain.CategoryCommitted, Size: 1000},
		{ID: domain.BlockID(2), Category: domain.CategoryStaged, Size: 524288},
	}, entries)
}

func TestDecodeEmptyBlockList(t *testing.T) {
	entries, err := DecodeBlockList(strings.NewReader(`<BlockList><CommittedBlocks/><UncommittedBlocks/></BlockList>`))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDecodeBlockListRejectsGarbage(t *testing.T) {
	_, err := DecodeBlockList(strings.NewReader("not xml"))
	assert.Error(t, err)
}

func TestEncodeBlockListKeepsOrder(t *testing.T) {
	ids := []string{domain.BlockID(0), domain.BlockID(1), domain.BlockID(2)}
	body, err := EncodeBlockList(ids)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(body, []byte("<?xml")))

	refs, err := DecodeBlockListRequest(bytes.NewReader(body))
	require.NoError(t, err)
	require.Len(t, refs, 3)
	for i, r := range refs {
		assert.Equal(t, RefLatest, r.XMLName.Local)
		assert.Equal(t, ids[i], r.ID)
	}
}

func TestDecodeBlockListRequestMixedKinds(t *testing.T) {
	body := `<BlockList><Committed>a</Committed><Uncommitted>b</Uncommitted><Latest>c</Latest></BlockList>`
	refs, err := DecodeBlockListRequest(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, RefCommitted, refs[0].XMLName.Local)
	assert.Equal(t, RefUncommitted, refs[1].XMLName.Local)
	assert.Equal(t, "c", refs[2].ID)
}
