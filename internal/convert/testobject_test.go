package convert

import (
	"github.com/abibridge/abibridge/internal/elfschema"
)

// strTable is a minimal ELF string table builder: offset 0 is always the
// empty string, as every real string table's is.
type strTable struct {
	buf []byte
}

func newStrTable() *strTable {
	return &strTable{buf: []byte{0}}
}

func (s *strTable) add(name string) uint32 {
	off := uint32(len(s.buf))
	s.buf = append(s.buf, []byte(name)...)
	s.buf = append(s.buf, 0)

	return off
}

// objBuilder assembles a minimal, well-formed 32-bit ET_REL object file
// byte for byte, for use as test fixtures: sections are laid out
// contiguously after the header, in the order they were added, with the
// section-header table last.
type objBuilder struct {
	shdrs []elfschema.Shdr32
	data  [][]byte

	shstrtab *strTable
	shstrndx int
}

func newObjBuilder() *objBuilder {
	b := &objBuilder{shstrtab: newStrTable()}
	b.add("", elfschema.SHTNull, 0, 0, 0, nil)

	return b
}

func (b *objBuilder) add(name string, typ, flags, link, info uint32, data []byte) int {
	idx := len(b.shdrs)
	b.shdrs = append(b.shdrs, elfschema.Shdr32{
		Name:  b.shstrtab.add(name),
		Type:  typ,
		Flags: flags,
		Link:  link,
		Info:  info,
	})
	b.data = append(b.data, data)

	return idx
}

// addShstrtab finalizes and appends the section-header string table
// itself, and records its own index as Shstrndx.
func (b *objBuilder) addShstrtab() {
	idx := len(b.shdrs)
	b.shstrndx = idx
	b.shdrs = append(b.shdrs, elfschema.Shdr32{Type: elfschema.SHTStrtab})
	b.data = append(b.data, nil) // filled in by build, once no more names are added
}

func (b *objBuilder) build() []byte {
	b.data[b.shstrndx] = b.shstrtab.buf
	b.shdrs[b.shstrndx].Size = uint32(len(b.shstrtab.buf))

	cur := uint32(elfschema.SizeofEhdr32)

	var blob []byte

	for i := range b.shdrs {
		b.shdrs[i].Off = cur
		b.shdrs[i].Size = uint32(len(b.data[i]))
		blob = append(blob, b.data[i]...)
		cur += uint32(len(b.data[i]))
	}

	shoff := cur

	ident := make([]byte, 16)
	copy(ident, elfschema.Magic[:])
	ident[elfschema.EIClass] = elfschema.Class32
	ident[elfschema.EIData] = elfschema.DataLittleEndian
	ident[elfschema.EIVersion] = 1

	ehdr := elfschema.Ehdr32{
		Ident:     ident,
		Type:      elfschema.ETRel,
		Machine:   elfschema.EM386,
		Version:   1,
		Shoff:     shoff,
		Ehsize:    elfschema.SizeofEhdr32,
		Shentsize: elfschema.SizeofShdr32,
		Shnum:     uint16(len(b.shdrs)),
		Shstrndx:  uint16(b.shstrndx),
	}

	out := elfschema.Encode(&ehdr)
	out = append(out, blob...)

	for i := range b.shdrs {
		out = append(out, elfschema.Encode(&b.shdrs[i])...)
	}

	return out
}

func encodeSym32(s elfschema.Sym32) []byte { return elfschema.Encode(&s) }
func encodeRel32(r elfschema.Rel32) []byte { return elfschema.Encode(&r) }
