package domain

import "fmt"

// PlanBlocks cuts a file of length n into ordered blocks of blockSize bytes.
// Only the last block may be shorter.
func PlanBlocks(n, blockSize int64) ([]*Block, error) {
	if n < 0 {
		return nil, fmt.Errorf("cannot plan blocks for negative length %d", n)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be > 0, got %d", blockSize)
	}

	count := (n + blockSize - 1) / blockSize
	blocks := make([]*Block, 0, count)

	for i := int64(0); i < count; i++ {
		size := blockSize
		if remaining := n - i*blockSize; remaining < blockSize {
			size = remaining
		}
		blocks = append(blocks, NewBlock(i, size))
	}

	return blocks, nil
}
