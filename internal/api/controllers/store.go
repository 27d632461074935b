package controllers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/datallboy/blobsync/internal/blob"
)

// ErrUnknownBlock is returned by CommitBlockList for an id that is neither
// staged nor committed.
var ErrUnknownBlock = errors.New("block is not staged or committed")

type storedBlock struct {
	id   string
	data []byte
}

type object struct {
	staged    map[string][]byte
	committed []storedBlock
	// exists is set by the first commit, even of an empty list
	exists bool
}

func (o *object) content() []byte {
	var n int
	for _, b := range o.committed {
		n += len(b.data)
	}
	out := make([]byte, 0, n)
	for _, b := range o.committed {
		out = append(out, b.data...)
	}
	return out
}

// MemoryStore holds the blobs of every container in memory.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]*object
	stats   map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*object),
		stats:   make(map[string]int),
	}
}

func objectKey(container, name string) string {
	return container + "/" + name
}

// Record counts one request served for op.
func (s *MemoryStore) Record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[op]++
}

// Stats returns how many requests each operation served.
func (s *MemoryStore) Stats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out
}

// StageBlock stores data as an uncommitted block, replacing an earlier
// staging of the same id.
func (s *MemoryStore) StageBlock(container, name, id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := objectKey(container, name)
	o, ok := s.objects[key]
	if !ok {
		o = &object{}
		s.objects[key] = o
	}
	if o.staged == nil {
		o.staged = make(map[string][]byte)
	}
	o.staged[id] = append([]byte(nil), data...)
}

// CommitBlockList replaces the committed content with refs, resolved in
// order. Latest prefers a staged block over a committed one. On success
// every remaining staged block is dropped.
func (s *MemoryStore) CommitBlockList(container, name string, refs []blob.BlockRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.objects[objectKey(container, name)]
	if o == nil {
		o = &object{}
	}

	committed := make(map[string][]byte, len(o.committed))
	for _, b := range o.committed {
		committed[b.id] = b.data
	}

	list := make([]storedBlock, 0, len(refs))
	for _, ref := range refs {
		var (
			data  []byte
			found bool
		)
		switch ref.XMLName.Local {
		case blob.RefLatest:
			if data, found = o.staged[ref.ID]; !found {
				data, found = committed[ref.ID]
			}
		case blob.RefCommitted:
			data, found = committed[ref.ID]
		case blob.RefUncommitted:
			data, found = o.staged[ref.ID]
		default:
			return fmt.Errorf("unexpected element <%s>", ref.XMLName.Local)
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrUnknownBlock, ref.ID)
		}
		list = append(list, storedBlock{id: ref.ID, data: data})
	}

	o.committed = list
	o.staged = nil
	o.exists = true
	s.objects[objectKey(container, name)] = o
	return nil
}

// BlockList describes the blocks of a blob. found is false when the blob
// has neither committed content nor staged blocks.
func (s *MemoryStore) BlockList(container, name string) (resp blob.BlockListResponse, length int64, exists, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[objectKey(container, name)]
	if !ok || (!o.exists && len(o.staged) == 0) {
		return resp, 0, false, false
	}

	for _, b := range o.committed {
		resp.Committed = append(resp.Committed, blob.XMLBlock{Name: b.id, Size: int64(len(b.data))})
		length += int64(len(b.data))
	}
	for id, data := range o.staged {
		resp.Uncommitted = append(resp.Uncommitted, blob.XMLBlock{Name: id, Size: int64(len(data))})
	}
	sortBlocks(resp.Uncommitted)

	return resp, length, o.exists, true
}

// Content returns the committed bytes of a blob.
func (s *MemoryStore) Content(container, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[objectKey(container, name)]
	if !ok || !o.exists {
		return nil, false
	}
	return o.content(), true
}

// CommittedIDs returns the committed block list of a blob in order.
func (s *MemoryStore) CommittedIDs(container, name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[objectKey(container, name)]
	if !ok {
		return nil
	}
	ids := make([]string, len(o.committed))
	for i, b := range o.committed {
		ids[i] = b.id
	}
	return ids
}

func sortBlocks(blocks []blob.XMLBlock) {
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Name < blocks[j].Name })
}
