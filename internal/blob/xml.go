package blob

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/datallboy/blobsync/internal/domain"
)

// BlockListResponse is the body of a block listing.
type BlockListResponse struct {
	XMLName     xml.Name   `xml:"BlockList"`
	Committed   []XMLBlock `xml:"CommittedBlocks>Block"`
	Uncommitted []XMLBlock `xml:"UncommittedBlocks>Block"`
}

type XMLBlock struct {
	Name string `xml:"Name"`
	Size int64  `xml:"Size"`
}

// BlockListRequest is the body of a commit. Children keep their document
// order because the store resolves them in that order.
type BlockListRequest struct {
	XMLName xml.Name   `xml:"BlockList"`
	Items   []BlockRef `xml:",any"`
}

// BlockRef is one <Latest>, <Committed> or <Uncommitted> element.
type BlockRef struct {
	XMLName xml.Name
	ID      string `xml:",chardata"`
}

const (
	RefLatest      = "Latest"
	RefCommitted   = "Committed"
	RefUncommitted = "Uncommitted"
)

// DecodeBlockList turns a listing body into (id, category) entries,
// committed entries first.
func DecodeBlockList(r io.Reader) ([]domain.ListEntry, error) {
	var resp BlockListResponse
	if err := xml.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode block list: %w", err)
	}

	entries := make([]domain.ListEntry, 0, len(resp.Committed)+len(resp.Uncommitted))
	for _, b := range resp.Committed {
		entries = append(entries, domain.ListEntry{ID: b.Name, Category: domain.CategoryCommitted, Size: b.Size})
	}
	for _, b := range resp.Uncommitted {
		entries = append(entries, domain.ListEntry{ID: b.Name, Category: domain.CategoryStaged, Size: b.Size})
	}

	return entries, nil
}

// EncodeBlockList renders the commit body listing ids in the given order.
func EncodeBlockList(ids []string) ([]byte, error) {
	req := BlockListRequest{Items: make([]BlockRef, len(ids))}
	for i, id := range ids {
		req.Items[i] = BlockRef{XMLName: xml.Name{Local: RefLatest}, ID: id}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(req); err != nil {
		return nil, fmt.Errorf("encode block list: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeBlockListRequest parses a commit body.
func DecodeBlockListRequest(r io.Reader) ([]BlockRef, error) {
	var req BlockListRequest
	if err := xml.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode block list request: %w", err)
	}
	return req.Items, nil
}
