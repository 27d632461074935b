package domain

import (
	"sort"
	"sync"
)

// BlockMap holds every block of one transfer run keyed by block id.
// It is shared by all workers; each method is one short critical section.
type BlockMap struct {
	mu     sync.Mutex
	blocks map[string]*Block
}

func NewBlockMap(blocks ...*Block) *BlockMap {
	m := &BlockMap{blocks: make(map[string]*Block, len(blocks))}
	for _, b := range blocks {
		m.blocks[b.ID] = b
	}
	return m
}

// Len returns the number of blocks.
func (m *BlockMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}

// Get returns a copy of the block with the given id.
func (m *BlockMap) Get(id string) (Block, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[id]
	if !ok {
		return Block{}, false
	}
	return *b, true
}

// Ensure returns the block for id, creating it with the given index and size
// when missing. created reports whether a new block was added.
func (m *BlockMap) Ensure(id string, index, size int64) (created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blocks[id]; ok {
		return false
	}
	m.blocks[id] = &Block{ID: id, Index: index, Size: size}
	return true
}

// Update applies fn to the block under the map lock. fn must not block.
// It reports whether the block exists.
func (m *BlockMap) Update(id string, fn func(b *Block)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[id]
	if !ok {
		return false
	}
	fn(b)
	return true
}

// MarkLocal records that the block's bytes landed on disk. size corrects
// the nominal size with the number of bytes actually received.
func (m *BlockMap) MarkLocal(id string, size int64) {
	m.Update(id, func(b *Block) {
		b.State.Local = true
		b.Size = size
	})
}

// MarkStaged records a successful block upload.
func (m *BlockMap) MarkStaged(id string) {
	m.Update(id, func(b *Block) {
		b.State.UploadedStaged = true
		b.State.RemoteKnown = true
	})
}

// MarkCommitted flags every listed block as committed.
func (m *BlockMap) MarkCommitted(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if b, ok := m.blocks[id]; ok {
			b.State.Committed = true
			b.State.UploadedStaged = true
			b.State.RemoteKnown = true
		}
	}
}

// Snapshot returns copies of all blocks in ascending index order.
func (m *BlockMap) Snapshot() []Block {
	m.mu.Lock()
	out := make([]Block, 0, len(m.blocks))
	for _, b := range m.blocks {
		out = append(out, *b)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Select returns copies of the blocks matching keep, in ascending index order.
func (m *BlockMap) Select(keep func(Block) bool) []Block {
	all := m.Snapshot()
	out := all[:0]
	for _, b := range all {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// LocalIDs returns the ids of every block present locally, ordered by index.
func (m *BlockMap) LocalIDs() []string {
	local := m.Select(func(b Block) bool { return b.State.Local })
	ids := make([]string, len(local))
	for i, b := range local {
		ids[i] = b.ID
	}
	return ids
}
