package domain

// DefaultBlockSize is the nominal size of every block except possibly the last.
const DefaultBlockSize int64 = 512 * 1024

// BlockState records what is known about one block. The four facts are
// independent: a block can be staged remotely without being committed, and
// being known remotely says nothing about the local working copy.
type BlockState struct {
	Local          bool // bytes present in the local working copy
	UploadedStaged bool // bytes staged remotely, not necessarily committed
	Committed      bool // part of the last committed block list
	RemoteKnown    bool // seen in the remote block listing
}

// Block is one contiguous chunk of the target file.
type Block struct {
	ID    string
	Index int64
	// Size is <= the block size. It is only smaller for the last block,
	// although the last block may also be exactly the block size.
	Size int64
	// RemoteSize is the size reported by the remote listing, 0 when unknown.
	RemoteSize int64
	State      BlockState
}

// NewBlock builds a block for the given index with its wire identifier.
func NewBlock(index, size int64) *Block {
	return &Block{
		ID:    BlockID(index),
		Index: index,
		Size:  size,
	}
}

// Offset returns the byte offset of the block in a file cut into blockSize chunks.
func (b Block) Offset(blockSize int64) int64 {
	return b.Index * blockSize
}
