package convert

import (
	"log/slog"

	"github.com/abibridge/abibridge/internal/elfschema"
	"github.com/abibridge/abibridge/internal/sig"
	"github.com/abibridge/abibridge/internal/stub"
)

// ctx carries every piece of state a conversion accumulates as it walks
// the input section-header graph: the section-index and symbol-index
// renumbering tables, and the output section-header table and
// concatenated section-data blob being built up. A single ctx is created
// per call to Convert and never shared across conversions.
type ctx struct {
	in        *input
	sigs      *sig.Table
	log       *slog.Logger
	selectors stub.Selectors

	visited    []bool
	newShdrIdx []uint32

	copiedSymIdx []uint32
	newSymIdxOff uint32

	outShdrs []elfschema.Shdr64
	outData  []byte
}

func newCtx(in *input, sigs *sig.Table, log *slog.Logger, selectors stub.Selectors) *ctx {
	return &ctx{
		in:         in,
		sigs:       sigs,
		log:        log,
		selectors:  selectors,
		visited:    make([]bool, len(in.shdrs)),
		newShdrIdx: make([]uint32, len(in.shdrs)),
	}
}

// currentOffset returns the file offset the next byte appended to
// outData will land at, measuring from the start of the output file
// (i.e. including the 64-bit header that precedes the section-data blob).
func (c *ctx) currentOffset() uint64 {
	return uint64(elfschema.SizeofEhdr64) + uint64(len(c.outData))
}

func (c *ctx) appendData(p []byte) {
	c.outData = append(c.outData, p...)
}
