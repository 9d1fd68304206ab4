package convert

import (
	"fmt"

	"github.com/abibridge/abibridge/internal/buffer"
	"github.com/abibridge/abibridge/internal/elfschema"
	"github.com/abibridge/abibridge/internal/sig"
	"github.com/abibridge/abibridge/internal/stub"
)

// convertSymtab translates the one symbol table a conversion may carry. It
// runs in two passes: the first decides which symbols need a duplicated
// local copy (a defined global function's stub relocation targets its
// duplicate, and the object's own relocations against an extern are
// repointed at its duplicate, which points at the extern stub; the name
// keeps its global symbol, and at most one definition of a given name may
// be global), assigning each one the next slot in ctx.newSymIdxOff's
// numbering; the second pass emits the final Sym64 records, and for every
// duplicated symbol, a stub and its patching relocation.
//
// It also appends the synthesized stub (SHT_PROGBITS) and relocation
// (SHT_RELA) sections directly to ctx.outShdrs, matching the original's
// ordering: both are appended before the caller appends the symbol
// table's own header, so their section indices are always exactly "the
// symbol table's eventual index minus 2" and "minus 1".
func (c *ctx) convertSymtab(idx int, shdr elfschema.Shdr32) (elfschema.Shdr64, error) {
	if c.copiedSymIdx != nil {
		return elfschema.Shdr64{}, fmt.Errorf("convert: %w", errMultipleSymtabs)
	}

	data := c.in.data[idx]
	count := len(data) / elfschema.SizeofSym32
	c.copiedSymIdx = make([]uint32, count)

	if int(shdr.Link) >= len(c.in.data) {
		return elfschema.Shdr64{}, fmt.Errorf("convert: symbol table: %w", ErrOutOfRange)
	}

	strtab := c.in.data[shdr.Link]

	inSyms := make([]elfschema.Sym32, count)
	names := make([]string, count)

	for i := range inSyms {
		if err := elfschema.Decode(data[i*elfschema.SizeofSym32:(i+1)*elfschema.SizeofSym32], &inSyms[i]); err != nil {
			return elfschema.Shdr64{}, fmt.Errorf("convert: symbol %d: %w", i, err)
		}

		names[i] = cString(strtab, inSyms[i].Name)
	}

	var locSymTbl buffer.Buffer
	locSymTbl.AppendStruct(&elfschema.Sym64{})
	c.newSymIdxOff = 1

	for i, s := range inSyms {
		if _, ok := c.sigs.Lookup(names[i]); !ok {
			continue
		}

		if s.Shndx == elfschema.SHNUndef ||
			(s.Info == elfschema.SymInfo(elfschema.STBGlobal, elfschema.STTFunc) && elfschema.IsRealSectionIndex(uint32(s.Shndx))) {
			c.copiedSymIdx[i] = c.newSymIdxOff
			c.newSymIdxOff++
		}
	}

	var (
		stubs   buffer.Buffer
		symTbl  buffer.Buffer
		relaTbl buffer.Buffer
	)

	for i, s := range inSyms {
		sigRec, ok := c.sigs.Lookup(names[i])

		var outSym elfschema.Sym64

		switch {
		case ok && s.Info == elfschema.SymInfo(elfschema.STBGlobal, elfschema.STTFunc) && elfschema.IsRealSectionIndex(uint32(s.Shndx)):
			outLocSym, outRela := c.convSymGlobal(s, i, sigRec, &stubs, &outSym)
			locSymTbl.AppendStruct(&outLocSym)
			relaTbl.AppendStruct(&outRela)
			c.log.Debug("duplicated global symbol for stub", "name", names[i])
		case ok && s.Shndx == elfschema.SHNUndef:
			outLocSym, outRela := c.convSymExtern(s, i, sigRec, &stubs, &outSym)
			locSymTbl.AppendStruct(&outLocSym)
			relaTbl.AppendStruct(&outRela)
			c.log.Debug("duplicated extern symbol for stub", "name", names[i])
		default:
			outSym = c.convSymOther(s)
		}

		symTbl.AppendStruct(&outSym)
	}

	out := elfschema.Shdr64{
		Name:      shdr.Name,
		Type:      elfschema.SHTSymtab,
		Flags:     uint64(shdr.Flags),
		Addr:      0,
		Off:       c.currentOffset(),
		Size:      uint64(locSymTbl.Len() + symTbl.Len()),
		Link:      c.newShdrIdx[shdr.Link],
		Info:      shdr.Info + c.newSymIdxOff,
		Addralign: 8,
		Entsize:   elfschema.SizeofSym64,
	}

	c.appendData(locSymTbl.Bytes())
	c.appendData(symTbl.Bytes())

	stubShdr := elfschema.Shdr64{
		Type:  elfschema.SHTProgbits,
		Flags: elfschema.SHFAlloc | elfschema.SHFExecInstr,
		Off:   c.currentOffset(),
		Size:  uint64(stubs.Len()),
	}
	c.outShdrs = append(c.outShdrs, stubShdr)
	c.appendData(stubs.Bytes())

	relaShdr := elfschema.Shdr64{
		Type:      elfschema.SHTRela,
		Off:       c.currentOffset(),
		Size:      uint64(relaTbl.Len()),
		Link:      uint32(len(c.outShdrs)) + 1,
		Info:      uint32(len(c.outShdrs)) - 1,
		Addralign: 8,
		Entsize:   elfschema.SizeofRela64,
	}
	c.outShdrs = append(c.outShdrs, relaShdr)
	c.appendData(relaTbl.Bytes())

	return out, nil
}

// convSymGlobal handles a symbol that is STB_GLOBAL/STT_FUNC, defined in a
// real section, and named in the function list: calls made through it
// from 64-bit code must first drop to 32-bit mode, so the symbol's
// definition is replaced by a global stub, and the original definition is
// kept alive (renamed local) for the stub's relocation to target.
func (c *ctx) convSymGlobal(
	in elfschema.Sym32, idx int, s sig.Signature, stubs *buffer.Buffer, outSym *elfschema.Sym64,
) (elfschema.Sym64, elfschema.Rela64) {
	stubOffset := stubs.Len()

	code, patchOffset := stub.EmitGlobalStubSel(s, c.selectors)
	stubs.Append(code)

	outLocSym := elfschema.Sym64{
		Name:  in.Name,
		Info:  elfschema.SymInfo(elfschema.STBLocal, elfschema.STTFunc),
		Shndx: uint16(c.newShdrIdx[in.Shndx]),
		Value: uint64(in.Value),
		Size:  uint64(in.Size),
	}

	outRela := elfschema.Rela64{
		Offset: uint64(stubOffset + patchOffset),
		Info:   elfschema.R64Info(uint64(c.copiedSymIdx[idx]), elfschema.RX86_64_PC32),
		Addend: -4,
	}

	*outSym = elfschema.Sym64{
		Name:  in.Name,
		Info:  elfschema.SymInfo(elfschema.STBGlobal, elfschema.STTFunc),
		Shndx: uint16(len(c.outShdrs)),
		Value: uint64(stubOffset),
		Size:  uint64(stubs.Len() - stubOffset),
	}

	return outLocSym, outRela
}

// convSymExtern handles an undefined symbol named in the function list:
// it is a 64-bit routine the converted object expects to be linked
// against, so calls into it from the object's own 32-bit code must go
// through an extern stub, reached via the local duplicate, whose call the
// linker's relocation then resolves against the (still undefined)
// original symbol.
func (c *ctx) convSymExtern(
	in elfschema.Sym32, idx int, s sig.Signature, stubs *buffer.Buffer, outSym *elfschema.Sym64,
) (elfschema.Sym64, elfschema.Rela64) {
	stubOffset := stubs.Len()

	code, patchOffset := stub.EmitExternStubSel(s, c.selectors)
	stubs.Append(code)

	outLocSym := elfschema.Sym64{
		Name:  in.Name,
		Info:  elfschema.SymInfo(elfschema.STBLocal, elfschema.STTFunc),
		Shndx: uint16(len(c.outShdrs)),
		Value: uint64(stubOffset),
		Size:  uint64(stubs.Len() - stubOffset),
	}

	outRela := elfschema.Rela64{
		Offset: uint64(stubOffset + patchOffset),
		Info:   elfschema.R64Info(uint64(idx)+uint64(c.newSymIdxOff), elfschema.RX86_64_PC32),
		Addend: -4,
	}

	*outSym = elfschema.Sym64{
		Name: in.Name,
		Info: elfschema.SymInfo(elfschema.STBGlobal, elfschema.STTFunc),
	}

	return outLocSym, outRela
}

// convSymOther carries a symbol through unchanged, widening its section
// index unless it is SHN_UNDEF or one of the reserved pseudo-indices.
func (c *ctx) convSymOther(in elfschema.Sym32) elfschema.Sym64 {
	shndx := uint32(in.Shndx)
	if elfschema.IsRealSectionIndex(shndx) {
		shndx = c.newShdrIdx[shndx]
	}

	return elfschema.Sym64{
		Name:  in.Name,
		Info:  in.Info,
		Other: in.Other,
		Shndx: uint16(shndx),
		Value: uint64(in.Value),
		Size:  uint64(in.Size),
	}
}
