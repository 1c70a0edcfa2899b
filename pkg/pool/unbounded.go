package pool

import (
	"context"

	"gitlab.com/tozd/go/errors"
)

// Unbounded is a pseudo-pool: every Allocate heap-allocates a fresh block,
// nothing is recycled and nothing ever blocks. It is the default allocator
// for sessions created without an explicit pool.
type Unbounded struct {
	blockSize int
}

var _ Allocator = (*Unbounded)(nil)

// NewUnbounded returns an unbounded allocator of blockSize-byte blocks.
func NewUnbounded(blockSize int) *Unbounded {
	if blockSize <= 0 {
		panic("pool: block size must be positive")
	}
	return &Unbounded{blockSize: blockSize}
}

// Allocate implements Allocator. It never blocks.
func (u *Unbounded) Allocate(ctx context.Context) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Errorf("allocating block: %w", err)
	}
	return &Block{owner: u, buf: make([]byte, u.blockSize)}, nil
}

// TryAllocate implements Allocator. It always succeeds.
func (u *Unbounded) TryAllocate() (*Block, bool) {
	return &Block{owner: u, buf: make([]byte, u.blockSize)}, true
}

// Return implements Allocator. The block is dropped for the garbage
// collector; double returns are still rejected so misuse shows up in tests
// regardless of which allocator is plugged in.
func (u *Unbounded) Return(b *Block) error {
	return u.release(b)
}

// Disconnect implements Allocator.
func (u *Unbounded) Disconnect(b *Block) error {
	return u.release(b)
}

func (u *Unbounded) release(b *Block) error {
	if b == nil {
		return errors.New("returning nil block")
	}
	if b.owner != u {
		if b.owner == nil {
			return errors.New("block returned twice")
		}
		return errors.New("block belongs to a different allocator")
	}
	b.owner = nil
	return nil
}

// BlockSize implements Allocator.
func (u *Unbounded) BlockSize() int {
	return u.blockSize
}
