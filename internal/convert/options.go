package convert

import (
	"github.com/abibridge/abibridge/internal/sig"
	"github.com/abibridge/abibridge/internal/stub"
)

// Options tunes conversion parameters that never change output semantics
// for a well-formed input under the defaults: the protected-mode and
// long-mode segment selectors the stub generator targets, and the
// maximum number of entries a function-list file may declare.
type Options struct {
	Selectors    stub.Selectors
	MaxFunctions int
}

func (o *Options) orDefaults() Options {
	if o == nil {
		return Options{Selectors: stub.DefaultSelectors, MaxFunctions: sig.MaxFunctions}
	}

	out := *o

	if out.Selectors == (stub.Selectors{}) {
		out.Selectors = stub.DefaultSelectors
	}

	if out.MaxFunctions == 0 {
		out.MaxFunctions = sig.MaxFunctions
	}

	return out
}
