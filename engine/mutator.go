// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package engine

import (
	"encoding/binary"
	"math/rand"

	"github.com/bradleyjkemp/simfuzz/sim"
)

const maxStackPow = 7

var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

// Mutator applies stacked havoc mutations.
type Mutator struct {
	r       *rand.Rand
	maxSize int
}

func newMutator(r *rand.Rand) *Mutator {
	return &Mutator{r: r, maxSize: sim.MaxInputSize}
}

func (m *Mutator) rand(n int) int {
	if n <= 0 {
		return 0
	}
	return m.r.Intn(n)
}

func (m *Mutator) randbool() bool {
	return m.r.Intn(2) == 0
}

func (m *Mutator) randByteOrder() binary.ByteOrder {
	if m.randbool() {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// mutate returns a mutated copy of data. corpus supplies splice donors.
func (m *Mutator) mutate(data []byte, corpus []*Testcase) []byte {
	res := makeCopy(data)
	for n := 1 << uint(1+m.rand(maxStackPow)); n > 0; n-- {
		res = m.mutateOnce(res, corpus)
	}
	if len(res) > m.maxSize {
		res = res[:m.maxSize]
	}
	return res
}

func (m *Mutator) mutateOnce(res []byte, corpus []*Testcase) []byte {
	switch m.rand(12) {
	case 0:
		// Flip a bit.
		if len(res) == 0 {
			return m.insertRandom(res)
		}
		pos := m.rand(len(res))
		res[pos] ^= 1 << uint(m.rand(8))
	case 1:
		// Flip a byte.
		if len(res) == 0 {
			return m.insertRandom(res)
		}
		res[m.rand(len(res))] ^= 0xff
	case 2:
		// Add or subtract a small value.
		if len(res) == 0 {
			return m.insertRandom(res)
		}
		pos := m.rand(len(res))
		v := byte(m.rand(35) + 1)
		if m.randbool() {
			res[pos] += v
		} else {
			res[pos] -= v
		}
	case 3:
		// Set a random byte.
		if len(res) == 0 {
			return m.insertRandom(res)
		}
		res[m.rand(len(res))] = byte(m.rand(256))
	case 4:
		// Replace a byte with an interesting value.
		if len(res) == 0 {
			return m.insertRandom(res)
		}
		res[m.rand(len(res))] = byte(interesting8[m.rand(len(interesting8))])
	case 5:
		// Replace a uint16 with an interesting value.
		if len(res) < 2 {
			return m.insertRandom(res)
		}
		pos := m.rand(len(res) - 1)
		m.randByteOrder().PutUint16(res[pos:], uint16(interesting16[m.rand(len(interesting16))]))
	case 6:
		// Replace a uint32 with an interesting value.
		if len(res) < 4 {
			return m.insertRandom(res)
		}
		pos := m.rand(len(res) - 3)
		m.randByteOrder().PutUint32(res[pos:], uint32(interesting32[m.rand(len(interesting32))]))
	case 7:
		// Remove a range of bytes.
		if len(res) <= 1 {
			return m.insertRandom(res)
		}
		pos0 := m.rand(len(res))
		pos1 := pos0 + m.chooseLen(len(res)-pos0)
		copy(res[pos0:], res[pos1:])
		res = res[:len(res)-(pos1-pos0)]
	case 8:
		return m.insertRandom(res)
	case 9:
		// Duplicate a range of bytes.
		if len(res) == 0 {
			return m.insertRandom(res)
		}
		src := m.rand(len(res))
		n := m.chooseLen(len(res) - src)
		dst := m.rand(len(res) + 1)
		chunk := makeCopy(res[src : src+n])
		res = append(res[:dst], append(chunk, res[dst:]...)...)
	case 10:
		// Copy a range of bytes over another.
		if len(res) <= 1 {
			return m.insertRandom(res)
		}
		src := m.rand(len(res))
		dst := m.rand(len(res))
		n := m.chooseLen(len(res) - max(src, dst))
		copy(res[dst:dst+n], res[src:src+n])
	case 11:
		// Splice in part of another corpus entry.
		if len(corpus) == 0 {
			return m.insertRandom(res)
		}
		other := corpus[m.rand(len(corpus))].Data
		if len(other) == 0 {
			return m.insertRandom(res)
		}
		src := m.rand(len(other))
		n := m.chooseLen(len(other) - src)
		if m.randbool() || len(res) == 0 {
			dst := m.rand(len(res) + 1)
			chunk := makeCopy(other[src : src+n])
			res = append(res[:dst], append(chunk, res[dst:]...)...)
		} else {
			dst := m.rand(len(res))
			copy(res[dst:], other[src:src+n])
		}
	}
	return res
}

func (m *Mutator) insertRandom(res []byte) []byte {
	n := m.chooseLen(16)
	pos := m.rand(len(res) + 1)
	chunk := make([]byte, n)
	m.r.Read(chunk)
	return append(res[:pos], append(chunk, res[pos:]...)...)
}

// chooseLen picks a length in [1, n], preferring short ones.
func (m *Mutator) chooseLen(n int) int {
	if n <= 1 {
		return 1
	}
	switch x := m.rand(100); {
	case x < 90:
		return m.rand(min(8, n)) + 1
	case x < 99:
		return m.rand(min(32, n)) + 1
	default:
		return m.rand(n) + 1
	}
}

// generate returns n random bytes with n in [1, maxLen].
func (m *Mutator) generate(maxLen int) []byte {
	data := make([]byte, m.rand(maxLen)+1)
	m.r.Read(data)
	return data
}
