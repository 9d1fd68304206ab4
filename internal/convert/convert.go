// Package convert implements the object-file rewrite: it walks an input
// 32-bit ET_REL object's section-header graph, widens every record to its
// 64-bit equivalent, and synthesizes ABI-bridging stubs for every function
// named in a function-list file.
package convert

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/abibridge/abibridge/internal/iometa"
	"github.com/abibridge/abibridge/internal/sig"
)

// Convert reads a 32-bit ET_REL object from obj and a function-list file
// from flist, and writes the converted 64-bit ET_REL object to out. log
// receives debug and warning diagnostics for individual decisions made
// along the way (dropped sections, duplicated symbols); a nil log
// disables them via slog's default discard handler. A nil opts uses
// stub.DefaultSelectors and sig.MaxFunctions.
func Convert(obj io.Reader, flist io.Reader, out io.Writer, log *slog.Logger, opts *Options) (int, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	o := opts.orDefaults()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return 0, fmt.Errorf("convert: failed to read input object: %w", err)
	}

	in, err := readInput(raw)
	if err != nil {
		return 0, err
	}

	sigs, err := sig.ParseFileWithLimit(flist, o.MaxFunctions)
	if err != nil {
		return 0, err
	}

	log.Debug("parsed function list", "count", sigs.Len())

	c := newCtx(in, sigs, log, o.Selectors)
	if err := c.convertAll(); err != nil {
		return 0, err
	}

	result := c.assemble()

	cw := &iometa.CountingWriter{Writer: out}
	if _, err := cw.Write(result); err != nil {
		return 0, fmt.Errorf("convert: failed to write output object: %w", err)
	}

	log.Debug("wrote converted object", "bytes", cw.BytesWritten())

	return cw.BytesWritten(), nil
}
