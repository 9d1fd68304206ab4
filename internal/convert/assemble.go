package convert

import "github.com/abibridge/abibridge/internal/elfschema"

// assemble builds the complete output file: the 64-bit header, followed
// by the concatenated section-data blob, followed by the section-header
// table. Every offset in the header and in each Shdr64 was already fixed
// relative to this same layout while the section graph was walked, so
// assembling is just concatenation.
func (c *ctx) assemble() []byte {
	ehdr := c.buildEhdr()

	out := make([]byte, 0, elfschema.SizeofEhdr64+len(c.outData)+len(c.outShdrs)*elfschema.SizeofShdr64)
	out = append(out, elfschema.Encode(&ehdr)...)
	out = append(out, c.outData...)

	for i := range c.outShdrs {
		out = append(out, elfschema.Encode(&c.outShdrs[i])...)
	}

	return out
}

func (c *ctx) buildEhdr() elfschema.Ehdr64 {
	ident := make([]byte, 16)
	copy(ident, elfschema.Magic[:])
	ident[elfschema.EIClass] = elfschema.Class64
	ident[elfschema.EIData] = elfschema.DataLittleEndian
	ident[elfschema.EIVersion] = 1

	return elfschema.Ehdr64{
		Ident:     ident,
		Type:      elfschema.ETRel,
		Machine:   elfschema.EMX86_64,
		Version:   1,
		Entry:     0,
		Phoff:     0,
		Shoff:     uint64(elfschema.SizeofEhdr64) + uint64(len(c.outData)),
		Flags:     0,
		Ehsize:    elfschema.SizeofEhdr64,
		Phentsize: 0,
		Phnum:     0,
		Shentsize: elfschema.SizeofShdr64,
		Shnum:     uint16(len(c.outShdrs)),
		Shstrndx:  uint16(c.newShdrIdx[c.in.ehdr.Shstrndx]),
	}
}
