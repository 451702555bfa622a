// Package pool provides reference-counted byte buffers backed by
// bytebufferpool. A Buffer has exactly one owner at a time; whoever drops
// the last reference returns it to its Pool.
package pool

import (
	"sync/atomic"

	"github.com/bassosimone/runtimex"
	"github.com/valyala/bytebufferpool"
)

// Allocator hands out buffers with at least capacity writable bytes.
// Implementations must be safe for concurrent use.
type Allocator interface {
	Allocate(capacity int) *Buffer
}

type Pool struct {
	bp          bytebufferpool.Pool
	outstanding atomic.Int64
}

func New() *Pool {
	return &Pool{}
}

var defaultPool = New()

// Default returns the process wide pool.
func Default() *Pool {
	return defaultPool
}

func (p *Pool) Allocate(capacity int) *Buffer {
	runtimex.Assert(capacity > 0)
	bb := p.bp.Get()
	if cap(bb.B) < capacity {
		bb.B = make([]byte, 0, capacity)
	} else {
		bb.B = bb.B[:0]
	}
	p.outstanding.Add(1)
	b := &Buffer{bb: bb, pool: p, limit: capacity}
	b.refs.Store(1)
	return b
}

// Outstanding reports pooled buffers allocated and not yet released.
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Load()
}

func (p *Pool) put(bb *bytebufferpool.ByteBuffer) {
	p.outstanding.Add(-1)
	p.bp.Put(bb)
}

type Buffer struct {
	bb    *bytebufferpool.ByteBuffer
	pool  *Pool
	limit int
	refs  atomic.Int32
}

// Wrap returns an unpooled buffer whose readable bytes are b.
func Wrap(b []byte) *Buffer {
	buf := &Buffer{bb: &bytebufferpool.ByteBuffer{B: b}, limit: len(b)}
	buf.refs.Store(1)
	return buf
}

// Bytes returns the readable bytes.
func (b *Buffer) Bytes() []byte {
	return b.bb.B
}

func (b *Buffer) Len() int {
	return len(b.bb.B)
}

// Cap is the capacity requested at allocation time, not the capacity of the
// underlying slice.
func (b *Buffer) Cap() int {
	return b.limit
}

// Writable returns the free space between the readable bytes and Cap.
func (b *Buffer) Writable() []byte {
	return b.bb.B[len(b.bb.B):b.limit]
}

// Advance marks n bytes of Writable as readable.
func (b *Buffer) Advance(n int) {
	runtimex.Assert(n >= 0 && len(b.bb.B)+n <= b.limit)
	b.bb.B = b.bb.B[:len(b.bb.B)+n]
}

func (b *Buffer) RefCnt() int32 {
	return b.refs.Load()
}

func (b *Buffer) Retain() *Buffer {
	if b.refs.Add(1) <= 1 {
		panic("pool: retain of released buffer")
	}
	return b
}

// Release drops one reference and reports whether the buffer was freed.
func (b *Buffer) Release() bool {
	refs := b.refs.Add(-1)
	switch {
	case refs > 0:
		return false
	case refs < 0:
		panic("pool: buffer released too many times")
	}
	bb := b.bb
	b.bb = &bytebufferpool.ByteBuffer{}
	b.limit = 0
	if b.pool != nil {
		b.pool.put(bb)
	}
	return true
}
