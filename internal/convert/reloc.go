package convert

import (
	"fmt"

	"github.com/abibridge/abibridge/internal/elfschema"
)

// convertRel translates a SHT_REL section into its SHT_RELA equivalent:
// every Rel32 entry becomes a Rela64 entry with the implicit addend made
// explicit as 0 (the instruction stream already carries whatever addend
// the i386 relocation convention implied), the symbol index remapped
// through remapSymbol, and the relocation type widened.
func (c *ctx) convertRel(idx int, shdr elfschema.Shdr32) (elfschema.Shdr64, error) {
	data := c.in.data[idx]
	count := len(data) / elfschema.SizeofRel32

	var relaTbl []byte

	for i := 0; i < count; i++ {
		var rel elfschema.Rel32
		if err := elfschema.Decode(data[i*elfschema.SizeofRel32:(i+1)*elfschema.SizeofRel32], &rel); err != nil {
			return elfschema.Shdr64{}, fmt.Errorf("relocation %d: %w", i, err)
		}

		info, err := c.remapRelInfo(rel.Info)
		if err != nil {
			return elfschema.Shdr64{}, fmt.Errorf("relocation %d: %w", i, err)
		}

		rela := elfschema.Rela64{
			Offset: uint64(rel.Offset),
			Info:   info,
			Addend: 0,
		}

		relaTbl = append(relaTbl, elfschema.Encode(&rela)...)
	}

	out := elfschema.Shdr64{
		Name:      shdr.Name,
		Type:      elfschema.SHTRela,
		Flags:     uint64(shdr.Flags),
		Addr:      0,
		Off:       c.currentOffset(),
		Size:      uint64(len(relaTbl)),
		Link:      c.newShdrIdx[shdr.Link],
		Info:      c.newShdrIdx[shdr.Info],
		Addralign: 8,
		Entsize:   elfschema.SizeofRela64,
	}

	c.appendData(relaTbl)

	return out, nil
}

// remapRelInfo packs a Rela64 Info field from a Rel32 one: the symbol
// index is remapped through copiedSymIdx (for a symbol a stub duplicated)
// or newSymIdxOff (for everything else), and the i386 relocation type is
// widened to its x86-64 equivalent.
func (c *ctx) remapRelInfo(info uint32) (uint64, error) {
	symIdx := elfschema.R32Sym(info)
	if int(symIdx) >= len(c.copiedSymIdx) {
		return 0, fmt.Errorf("%w: %d", ErrBadSymbolIndex, symIdx)
	}

	var newSym uint64
	if c.copiedSymIdx[symIdx] != 0 {
		newSym = uint64(c.copiedSymIdx[symIdx])
	} else {
		newSym = uint64(symIdx) + uint64(c.newSymIdxOff)
	}

	var newType uint64

	switch elfschema.R32Type(info) {
	case elfschema.R386_32:
		newType = elfschema.RX86_64_32
	case elfschema.R386_PC32, elfschema.R386_PLT32:
		newType = elfschema.RX86_64_PC32
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedRelocation, elfschema.R32Type(info))
	}

	return elfschema.R64Info(newSym, newType), nil
}
