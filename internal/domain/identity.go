package domain

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"strconv"
)

// blockIDWidth keeps every encoded id the same length, which the remote
// store requires for all blocks of one blob.
const blockIDWidth = 10

// BlockID returns the wire identifier of the block at index.
// The index is rendered as fixed-width decimal and then base64 encoded.
func BlockID(index int64) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%0*d", blockIDWidth, index)))
}

// ParseBlockID recovers the block index from a wire identifier.
func ParseBlockID(id string) (int64, error) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidBlockID, id, err)
	}

	index, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("%w: %q decodes to %q", ErrInvalidBlockID, id, raw)
	}

	return index, nil
}

// Checksum returns the base64 MD5 digest the store expects in Content-MD5.
func Checksum(data []byte) string {
	sum := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}
