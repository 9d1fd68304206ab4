// Package buffer provides the growable byte sequence that every emitted
// section, symbol table, relocation table, and stub blob accumulates into.
package buffer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"
)

// Buffer is a growable byte sequence. The zero value is ready to use.
type Buffer struct {
	buf bytes.Buffer
}

// Append appends raw bytes.
func (b *Buffer) Append(p []byte) {
	b.buf.Write(p)
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(v byte) {
	b.buf.WriteByte(v)
}

// AppendStruct packs a struct using little-endian field encoding and
// appends the result. It is fatal (panics) on a packing error, since a
// packing failure here always indicates a mis-tagged record type, not a
// recoverable runtime condition.
func (b *Buffer) AppendStruct(v interface{}) {
	if err := struc.PackWithOptions(&b.buf, v, &struc.Options{Order: binary.LittleEndian}); err != nil {
		panic(fmt.Sprintf("buffer: failed to pack %T: %v", v, err))
	}
}

// Len returns the number of bytes appended so far.
func (b *Buffer) Len() int {
	return b.buf.Len()
}

// Bytes returns the accumulated bytes. The returned slice aliases the
// buffer's internal storage and must not be retained across further
// appends.
func (b *Buffer) Bytes() []byte {
	return b.buf.Bytes()
}
