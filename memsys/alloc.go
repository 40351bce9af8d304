package memsys

import "sync/atomic"

// Allocator is the pluggable allocation policy quadruple for a Pool. Any
// field may be nil: a nil Calloc falls back to Malloc-then-zero, a nil
// Realloc makes Pool.Realloc return a nil slice and ErrNotImplemented
// without freeing the input (the caller is responsible for avoiding
// Realloc against such a policy), and a
// nil Free makes Free a no-op success (the hallmark of a tracking policy,
// whose memory is reclaimed wholesale by Reset/Destroy instead).
type Allocator struct {
	Malloc  func(n int) ([]byte, error)
	Calloc  func(n int) ([]byte, error)
	Realloc func(p []byte, n int) ([]byte, error)
	Free    func(p []byte) error
}

// Policy bundles an Allocator with the optional Reset/Destroy operations
// that classify a Pool as tracking (Reset != nil) or non-tracking
// (Reset == nil, Free != nil). Per the single invariant every Pool must
// satisfy: Malloc is required, and either Free is present or both Reset
// and Destroy are present — no half-implementations.
type Policy struct {
	Allocator
	Reset   func() error
	Destroy func() error
}

func (p Policy) valid() bool {
	if p.Malloc == nil {
		return false
	}
	return p.Free != nil || (p.Reset != nil && p.Destroy != nil)
}

// defaultChunkSize is the arena chunk size used when Arena is given a
// non-positive chunkSize; it mirrors the teacher's
// fixed-size pooled chunk (eventloop/internal/alternatetwo/chunk.go), sized
// generously here since arena allocations are typically small bookkeeping
// structures (cleanup nodes) rather than bulk I/O buffers.
const defaultChunkSize = 4096

type arenaChunk struct {
	buf  []byte
	used int
}

// arena is a bump allocator over a growable list of fixed-size chunks. It
// implements the tracking allocation policy returned by Arena.
type arena struct {
	chunkSize int
	chunks    []*arenaChunk
	live      atomic.Int64
}

func (a *arena) malloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalid
	}
	size := a.chunkSize
	if n > size {
		size = n
	}
	var cur *arenaChunk
	if len(a.chunks) > 0 {
		cur = a.chunks[len(a.chunks)-1]
	}
	if cur == nil || cur.used+n > len(cur.buf) {
		cur = &arenaChunk{buf: make([]byte, size)}
		a.chunks = append(a.chunks, cur)
	}
	b := cur.buf[cur.used : cur.used+n : cur.used+n]
	cur.used += n
	a.live.Add(1)
	return b, nil
}

func (a *arena) reset() error {
	a.chunks = a.chunks[:0]
	a.live.Store(0)
	return nil
}

func (a *arena) destroy() error {
	return a.reset()
}

// Live reports the number of Malloc calls satisfied since the last Reset.
// It is intended for tests and diagnostics, not production bookkeeping.
func (a *arena) Live() int64 {
	return a.live.Load()
}

// Arena returns a tracking Policy: a bump allocator over growable chunks.
// Individual allocations cannot be freed; the whole arena is reclaimed when
// the owning Pool is Reset or Destroyed. Grounded on the teacher's
// sync.Pool-backed chunk list (eventloop/internal/alternatetwo/chunk.go)
// and bump-index arena (arena.go's TaskArena.Alloc).
func Arena(chunkSize int) Policy {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	a := &arena{chunkSize: chunkSize}
	return Policy{
		Allocator: Allocator{Malloc: a.malloc},
		Reset:     a.reset,
		Destroy:   a.destroy,
	}
}

// heap is a non-tracking allocation policy: every Malloc is a fresh make(),
// every Free just decrements a live-allocation counter. The counter lets
// tests assert that Free was actually called the expected number of times,
// standing in for the teacher's sync.Pool get/put accounting
// (eventloop/internal/alternatetwo/arena.go's nodePool/resultPool), adapted
// from pool-for-reuse to count-for-diagnostics since a non-tracking Policy
// needs genuine per-call Free, not object reuse.
type heap struct {
	live atomic.Int64
}

func (h *heap) malloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalid
	}
	h.live.Add(1)
	return make([]byte, n), nil
}

func (h *heap) free(p []byte) error {
	h.live.Add(-1)
	return nil
}

// Live reports the number of Malloc calls not yet balanced by a Free.
func (h *heap) Live() int64 {
	return h.live.Load()
}

// Heap returns a non-tracking Policy backed by per-call make()/GC
// reclamation, with a live-allocation counter for leak diagnostics.
func Heap() Policy {
	h := &heap{}
	return Policy{
		Allocator: Allocator{
			Malloc: h.malloc,
			Free:   h.free,
		},
	}
}
