package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	A uint32
	B uint16
}

func TestBufferAppend(t *testing.T) {
	var b Buffer

	b.Append([]byte{1, 2, 3})
	b.AppendByte(4)

	assert.Equal(t, 4, b.Len())
	assert.Equal(t, []byte{1, 2, 3, 4}, b.Bytes())
}

func TestBufferAppendStruct(t *testing.T) {
	var b Buffer

	b.AppendStruct(&testRecord{A: 0x01020304, B: 0x0506})

	require.Equal(t, 6, b.Len())
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01, 0x06, 0x05}, b.Bytes())
}

func TestBufferGrowsAcrossManyAppends(t *testing.T) {
	var b Buffer

	for i := 0; i < 10000; i++ {
		b.AppendByte(byte(i))
	}

	assert.Equal(t, 10000, b.Len())
}
