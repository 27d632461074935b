package engine

import (
	"sync"

	"github.com/datallboy/blobsync/internal/domain"
)

// TransferQueue is the FIFO of blocks awaiting transfer. It is filled once
// before the workers start and only drained afterwards.
type TransferQueue struct {
	mu     sync.Mutex
	blocks []domain.Block
}

func NewTransferQueue(blocks []domain.Block) *TransferQueue {
	q := &TransferQueue{}
	q.Push(blocks...)
	return q
}

func (q *TransferQueue) Push(blocks ...domain.Block) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocks = append(q.blocks, blocks...)
}

// TryPop removes the head of the queue without waiting. ok is false once
// the queue is empty.
func (q *TransferQueue) TryPop() (b domain.Block, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.blocks) == 0 {
		return domain.Block{}, false
	}
	b = q.blocks[0]
	q.blocks = q.blocks[1:]
	return b, true
}

func (q *TransferQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks)
}
