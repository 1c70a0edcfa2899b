// Package pool implements a bounded allocator and recycler of fixed-size
// byte blocks. Streaming transfers allocate blocks here instead of the
// heap, which caps the memory a session can pin and gives copy pipelines
// natural backpressure: a reader cannot outrun its writer by more than the
// pool budget.
package pool

import (
	"context"
	"sync"

	"gitlab.com/tozd/go/errors"
)

// Allocator hands out Blocks with exclusive ownership. The holder of a
// Block must eventually pass it to exactly one of Return or Disconnect.
type Allocator interface {
	// Allocate blocks until a block is available or ctx is done.
	Allocate(ctx context.Context) (*Block, error)

	// TryAllocate returns a block immediately, or false when the pool is
	// at capacity and nothing is recycled.
	TryAllocate() (*Block, bool)

	// Return gives a block back for recycling. Returning a block twice,
	// or a block owned by another allocator, is a usage error.
	Return(b *Block) error

	// Disconnect releases a block from the allocator's accounting without
	// recycling it; the caller keeps the bytes permanently.
	Disconnect(b *Block) error

	// BlockSize returns the fixed capacity of blocks from this allocator.
	BlockSize() int
}

// Block is a fixed-size byte buffer with a recorded valid length.
type Block struct {
	owner Allocator
	buf   []byte
	n     int
}

// Buf returns the full backing buffer for filling.
func (b *Block) Buf() []byte {
	return b.buf
}

// Bytes returns the valid prefix of the buffer.
func (b *Block) Bytes() []byte {
	return b.buf[:b.n]
}

// Len returns the valid length.
func (b *Block) Len() int {
	return b.n
}

// SetLen records how many bytes of the buffer are valid.
func (b *Block) SetLen(n int) {
	if n < 0 || n > len(b.buf) {
		panic("pool: SetLen out of range")
	}
	b.n = n
}

// Options configures a bounded Pool.
type Options struct {
	// BlockSize is the capacity of each block in bytes.
	BlockSize int
	// MaxBlocks caps how many blocks may be live at once.
	MaxBlocks int
	// MaxRecycled caps the recycle queue; returned blocks beyond it are
	// dropped for the garbage collector.
	MaxRecycled int
	// ClearRecycled wipes block bytes before recycling.
	ClearRecycled bool
}

// Pool is the bounded Allocator.
//
// Invariants: the number of live blocks never exceeds MaxBlocks, and the
// recycle queue never exceeds MaxRecycled. Each Return wakes at most one
// blocked Allocate.
type Pool struct {
	opts Options

	// tokens holds one permit per unclaimed capacity slot. Acquisition is
	// the only blocking point; mu is never held while waiting.
	tokens chan struct{}

	mu        sync.Mutex
	allocated int
	recycled  []*Block
}

var _ Allocator = (*Pool)(nil)

// New creates a bounded pool. The full MaxBlocks budget starts available;
// blocks are allocated lazily as they are first claimed.
func New(opts Options) (*Pool, error) {
	if opts.BlockSize <= 0 {
		return nil, errors.Errorf("block size must be positive, got %d", opts.BlockSize)
	}
	if opts.MaxBlocks <= 0 {
		return nil, errors.Errorf("max blocks must be positive, got %d", opts.MaxBlocks)
	}
	if opts.MaxRecycled < 0 {
		return nil, errors.Errorf("max recycled must not be negative, got %d", opts.MaxRecycled)
	}

	p := &Pool{
		opts:   opts,
		tokens: make(chan struct{}, opts.MaxBlocks),
	}
	for i := 0; i < opts.MaxBlocks; i++ {
		p.tokens <- struct{}{}
	}
	return p, nil
}

// Allocate implements Allocator.
func (p *Pool) Allocate(ctx context.Context) (*Block, error) {
	select {
	case <-p.tokens:
	default:
		// Fast path failed; wait for a token or cancellation.
		select {
		case <-p.tokens:
		case <-ctx.Done():
			return nil, errors.Errorf("allocating block: %w", ctx.Err())
		}
	}
	return p.claim(), nil
}

// TryAllocate implements Allocator.
func (p *Pool) TryAllocate() (*Block, bool) {
	select {
	case <-p.tokens:
		return p.claim(), true
	default:
		return nil, false
	}
}

// claim consumes one already-acquired token.
func (p *Pool) claim() *Block {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.allocated++
	if n := len(p.recycled); n > 0 {
		b := p.recycled[n-1]
		p.recycled = p.recycled[:n-1]
		b.owner = p
		b.n = 0
		return b
	}
	return &Block{owner: p, buf: make([]byte, p.opts.BlockSize)}
}

// Return implements Allocator.
func (p *Pool) Return(b *Block) error {
	if err := p.release(b); err != nil {
		return err
	}

	p.mu.Lock()
	if len(p.recycled) < p.opts.MaxRecycled {
		if p.opts.ClearRecycled {
			clear(b.buf)
		}
		b.n = 0
		p.recycled = append(p.recycled, b)
	}
	p.mu.Unlock()

	p.tokens <- struct{}{}
	return nil
}

// Disconnect implements Allocator.
func (p *Pool) Disconnect(b *Block) error {
	if err := p.release(b); err != nil {
		return err
	}
	p.tokens <- struct{}{}
	return nil
}

func (p *Pool) release(b *Block) error {
	if b == nil {
		return errors.New("returning nil block")
	}
	if b.owner != p {
		if b.owner == nil {
			return errors.New("block returned twice")
		}
		return errors.New("block belongs to a different allocator")
	}
	b.owner = nil

	p.mu.Lock()
	p.allocated--
	p.mu.Unlock()
	return nil
}

// BlockSize implements Allocator.
func (p *Pool) BlockSize() int {
	return p.opts.BlockSize
}

// Allocated returns the number of live blocks.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Recycled returns the current recycle queue length.
func (p *Pool) Recycled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recycled)
}
