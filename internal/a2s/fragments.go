package a2s

import (
	"bytes"
	"fmt"
)

// fragmentBuffer collects the payloads of one multi-packet response by index.
type fragmentBuffer struct {
	parts map[byte][]byte
	group uint16
	total byte
}

func newFragmentBuffer(first fragment) *fragmentBuffer {
	b := &fragmentBuffer{
		group: first.group,
		total: first.total,
		parts: make(map[byte][]byte, first.total),
	}
	b.parts[first.index] = bytes.Clone(first.payload)

	return b
}

// add stores the fragment payload unless its index is already filled.
// It returns false for fragments of another group, which are left out.
func (b *fragmentBuffer) add(f fragment) (bool, error) {
	if f.group != b.group {
		return false, nil
	}
	if f.total != b.total {
		return false, newError(OpReassemble, ErrMalformedResponse,
			fmt.Errorf("fragment count changed from %d to %d", b.total, f.total))
	}

	if _, ok := b.parts[f.index]; !ok {
		b.parts[f.index] = bytes.Clone(f.payload)
	}

	return true, nil
}

func (b *fragmentBuffer) complete() bool {
	return len(b.parts) == int(b.total)
}

// assemble concatenates payloads in ascending index order.
func (b *fragmentBuffer) assemble() []byte {
	size := 0
	for _, p := range b.parts {
		size += len(p)
	}

	out := make([]byte, 0, size)
	for i := 0; i < int(b.total); i++ {
		out = append(out, b.parts[byte(i)]...)
	}

	return out
}
