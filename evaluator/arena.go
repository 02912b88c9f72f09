package evaluator

import "fmt"

// MemoryArena is a growable byte buffer plus a map from base offset to
// allocated length. It backs the four host primitives a contract sees:
// allocate, write_byte, read_byte, pointer_length. A fresh arena is
// allocated per contract invocation and discarded afterward — never shared
// across executions, so nothing a prior invocation wrote can leak into the
// next one and break determinism.
type MemoryArena struct {
	buf     []byte
	lengths map[uint32]uint32
}

func NewMemoryArena() *MemoryArena {
	return &MemoryArena{lengths: map[uint32]uint32{}}
}

// Allocate appends length zero bytes and returns the base pointer (the
// buffer's previous length).
func (a *MemoryArena) Allocate(length uint32) uint32 {
	ptr := uint32(len(a.buf))
	a.buf = append(a.buf, make([]byte, length)...)
	a.lengths[ptr] = length
	return ptr
}

// WriteByte stores a single byte at ptr+offset. ptr must be a known base.
func (a *MemoryArena) WriteByte(ptr, offset uint32, b byte) error {
	length, ok := a.lengths[ptr]
	if !ok {
		return fmt.Errorf("evaluator: write to unknown pointer %d", ptr)
	}
	if offset >= length {
		return fmt.Errorf("evaluator: write offset %d out of bounds for pointer %d (len %d)", offset, ptr, length)
	}
	a.buf[ptr+offset] = b
	return nil
}

// ReadByte reads the single byte at address ptr. Rejects any address that
// does not fall inside a recorded allocation [base, base+length).
func (a *MemoryArena) ReadByte(ptr uint32) (byte, error) {
	for base, length := range a.lengths {
		if ptr >= base && ptr-base < length {
			return a.buf[ptr], nil
		}
	}
	return 0, fmt.Errorf("evaluator: read from unallocated address %d", ptr)
}

// PointerLength returns the allocation size recorded for ptr, or an error
// if ptr is not a known base.
func (a *MemoryArena) PointerLength(ptr uint32) (uint32, error) {
	length, ok := a.lengths[ptr]
	if !ok {
		return 0, fmt.Errorf("evaluator: unknown pointer %d", ptr)
	}
	return length, nil
}

// WriteBytes allocates len(data) bytes and copies data in, returning the
// base pointer. A convenience used to seed state/event data into the arena
// before invoking the contract.
func (a *MemoryArena) WriteBytes(data []byte) uint32 {
	ptr := a.Allocate(uint32(len(data)))
	copy(a.buf[ptr:ptr+uint32(len(data))], data)
	return ptr
}

// ReadBytes copies out length bytes starting at ptr without requiring ptr
// itself to be a recorded base (used to read back a result whose pointer
// was returned directly by the contract, which IS a recorded base).
func (a *MemoryArena) ReadBytes(ptr, length uint32) ([]byte, error) {
	if int(ptr)+int(length) > len(a.buf) {
		return nil, fmt.Errorf("evaluator: read range [%d,%d) out of bounds", ptr, ptr+length)
	}
	out := make([]byte, length)
	copy(out, a.buf[ptr:ptr+length])
	return out, nil
}
