package lightsim

import "math"

// Buffers holds two generations of per-direction energy over a square window.
// Steps read from one generation and accumulate into the other.
type Buffers struct {
	size  int
	read  [DirectionCount][]Energy
	write [DirectionCount][]Energy
}

func NewBuffers(size int) *Buffers {
	b := &Buffers{size: size}
	for d := range b.read {
		b.read[d] = make([]Energy, size*size)
		b.write[d] = make([]Energy, size*size)
	}
	return b
}

func (b *Buffers) Size() int { return b.size }

func (b *Buffers) index(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= b.size || y >= b.size {
		return 0, false
	}
	return y*b.size + x, true
}

// Read returns the settled energy travelling in d at window cell (x,y).
func (b *Buffers) Read(d Direction, x, y int) Energy {
	i, ok := b.index(x, y)
	if !ok {
		return Energy{}
	}
	return b.read[d][i]
}

// Pending returns energy accumulated for the next generation.
func (b *Buffers) Pending(d Direction, x, y int) Energy {
	i, ok := b.index(x, y)
	if !ok {
		return Energy{}
	}
	return b.write[d][i]
}

// deposit adds e into the write generation, saturating every channel.
// Cells outside the window are dropped.
func (b *Buffers) deposit(d Direction, x, y int, e Energy) {
	i, ok := b.index(x, y)
	if !ok {
		return
	}
	dst := &b.write[d][i]
	for c := range e {
		dst[c] = satAdd(dst[c], e[c])
	}
}

func (b *Buffers) set(d Direction, x, y int, e Energy) {
	if i, ok := b.index(x, y); ok {
		b.write[d][i] = e
	}
}

// Swap promotes the write generation and zeroes the new write side.
func (b *Buffers) Swap() {
	b.read, b.write = b.write, b.read
	for d := range b.write {
		clear(b.write[d])
	}
}

// Reset zeroes both generations.
func (b *Buffers) Reset() {
	for d := range b.read {
		clear(b.read[d])
		clear(b.write[d])
	}
}

func satAdd(a, b int32) int32 {
	s := int64(a) + int64(b)
	if s > math.MaxInt32 {
		return math.MaxInt32
	}
	if s < 0 {
		return 0
	}
	return int32(s)
}
