package convert

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abibridge/abibridge/internal/elfschema"
)

// buildTestObject assembles a 32-bit object with a global function
// (helper, defined in .text), an extern function (ext_fn, undefined), a
// plain data symbol (gvar), an unreferenced local symbol, a note section
// that must be dropped, and a relocation section exercising all three
// symbol-remapping paths (duplicated-global, duplicated-extern, plain
// offset).
func buildTestObject(t *testing.T) (obj []byte, textIdx, dataIdx int) {
	t.Helper()

	b := newObjBuilder()

	textData := make([]byte, 16)
	textIdx = b.add(".text", elfschema.SHTProgbits, elfschema.SHFAlloc|elfschema.SHFExecInstr, 0, 0, textData)

	dataData := []byte{1, 2, 3, 4}
	dataIdx = b.add(".data", elfschema.SHTProgbits, elfschema.SHFAlloc|elfschema.SHFWrite, 0, 0, dataData)

	b.add(".note.x", elfschema.SHTNote, 0, 0, 0, []byte{0, 0, 0, 0, 0, 0, 0, 0})

	symStr := newStrTable()
	nameHelper := symStr.add("helper")
	nameExtFn := symStr.add("ext_fn")
	nameGvar := symStr.add("gvar")
	nameLocal := symStr.add("local_thing")

	var symData []byte
	symData = append(symData, encodeSym32(elfschema.Sym32{})...)
	symData = append(symData, encodeSym32(elfschema.Sym32{
		Name: nameHelper, Value: 0x10, Size: 8,
		Info: elfschema.SymInfo(elfschema.STBGlobal, elfschema.STTFunc), Shndx: uint16(textIdx),
	})...)
	symData = append(symData, encodeSym32(elfschema.Sym32{
		Name: nameExtFn,
		Info: elfschema.SymInfo(elfschema.STBGlobal, elfschema.STTFunc), Shndx: elfschema.SHNUndef,
	})...)
	symData = append(symData, encodeSym32(elfschema.Sym32{
		Name: nameGvar, Size: 4,
		Info: elfschema.SymInfo(elfschema.STBGlobal, elfschema.STTObject), Shndx: uint16(dataIdx),
	})...)
	symData = append(symData, encodeSym32(elfschema.Sym32{
		Name: nameLocal,
		Info: elfschema.SymInfo(elfschema.STBLocal, elfschema.STTNotype), Shndx: uint16(textIdx),
	})...)

	var relData []byte
	relData = append(relData, encodeRel32(elfschema.Rel32{Offset: 4, Info: 1<<8 | elfschema.R386_PC32})...)
	relData = append(relData, encodeRel32(elfschema.Rel32{Offset: 8, Info: 2<<8 | elfschema.R386_PC32})...)
	relData = append(relData, encodeRel32(elfschema.Rel32{Offset: 12, Info: 3<<8 | elfschema.R386_32})...)

	strtabIdx := len(b.shdrs) + 2 // .rel.text, .symtab, then .strtab
	relTextIdx := len(b.shdrs)
	symtabIdx := relTextIdx + 1

	b.add(".rel.text", elfschema.SHTRel, 0, uint32(symtabIdx), uint32(textIdx), relData)
	b.add(".symtab", elfschema.SHTSymtab, 0, uint32(strtabIdx), 1, symData)
	b.add(".strtab", elfschema.SHTStrtab, 0, 0, 0, symStr.buf)
	b.addShstrtab()

	return b.build(), textIdx, dataIdx
}

func TestConvertEndToEnd(t *testing.T) {
	obj, _, _ := buildTestObject(t)

	flist := strings.NewReader("helper int int\next_fn void int\n")

	var out bytes.Buffer

	n, err := Convert(bytes.NewReader(obj), flist, &out, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, out.Len(), n)

	var ehdr elfschema.Ehdr64
	require.NoError(t, elfschema.Decode(out.Bytes()[:elfschema.SizeofEhdr64], &ehdr))
	assert.Equal(t, uint16(elfschema.ETRel), ehdr.Type)
	assert.Equal(t, uint16(elfschema.EMX86_64), ehdr.Machine)
	assert.Equal(t, uint16(9), ehdr.Shnum, "null, text, data, strtab, stub, stubrela, symtab, reltext-rela, shstrtab")

	shdrs := decodeShdrs(t, out.Bytes(), &ehdr)

	symtabIdx := -1

	for i, sh := range shdrs {
		if sh.Type == elfschema.SHTSymtab {
			symtabIdx = i
		}
	}

	require.NotEqual(t, -1, symtabIdx)
	require.GreaterOrEqual(t, symtabIdx, 2)

	stubShdr := shdrs[symtabIdx-2]
	stubRelaShdr := shdrs[symtabIdx-1]

	assert.Equal(t, uint32(elfschema.SHTProgbits), stubShdr.Type)
	assert.Equal(t, uint64(elfschema.SHFAlloc|elfschema.SHFExecInstr), stubShdr.Flags)

	assert.Equal(t, uint32(elfschema.SHTRela), stubRelaShdr.Type)
	assert.Equal(t, uint32(symtabIdx), stubRelaShdr.Link)
	assert.Equal(t, uint32(symtabIdx-2), stubRelaShdr.Info)

	syms := decodeSyms(t, out.Bytes(), shdrs[symtabIdx])
	strtab := sectionBytes(out.Bytes(), shdrs[shdrs[symtabIdx].Link])

	var helperSym, extFnSym *elfschema.Sym64

	for i := range syms {
		switch cString(strtab, syms[i].Name) {
		case "helper":
			helperSym = &syms[i]
		case "ext_fn":
			extFnSym = &syms[i]
		}
	}

	require.NotNil(t, helperSym)
	require.NotNil(t, extFnSym)

	assert.Equal(t, uint16(symtabIdx-2), helperSym.Shndx, "helper's stub lives in the synthesized stub section")
	assert.Equal(t, uint64(0), helperSym.Value, "helper is the first stub emitted")

	assert.Equal(t, uint16(0), extFnSym.Shndx, "an extern symbol stays undefined")
	assert.Equal(t, uint64(0), extFnSym.Value)
	assert.Equal(t, uint64(0), extFnSym.Size)

	var reltextRela *elfschema.Shdr64

	for i := range shdrs {
		if shdrs[i].Type == elfschema.SHTRela && i != symtabIdx-1 {
			reltextRela = &shdrs[i]
		}
	}

	require.NotNil(t, reltextRela)

	relas := decodeRelas(t, out.Bytes(), *reltextRela)
	require.Len(t, relas, 3)

	sym0, typ0 := relas[0].Info>>32, relas[0].Info&0xffffffff
	assert.Equal(t, uint64(1), sym0, "helper was duplicated to symbol index 1")
	assert.Equal(t, uint64(elfschema.RX86_64_PC32), typ0)

	sym1, typ1 := relas[1].Info>>32, relas[1].Info&0xffffffff
	assert.Equal(t, uint64(2), sym1, "ext_fn was duplicated to symbol index 2")
	assert.Equal(t, uint64(elfschema.RX86_64_PC32), typ1)

	sym2, typ2 := relas[2].Info>>32, relas[2].Info&0xffffffff
	assert.Equal(t, uint64(3+3), sym2, "gvar (symbol 3) is offset by the final newSymIdxOff of 3")
	assert.Equal(t, uint64(elfschema.RX86_64_32), typ2)

	for _, r := range relas {
		assert.Equal(t, int64(0), r.Addend, "rewritten (non-stub) relocations always carry addend 0")
	}
}

func TestConvertRejectsBadMagic(t *testing.T) {
	var out bytes.Buffer

	notElf := bytes.Repeat([]byte("x"), 64)

	_, err := Convert(bytes.NewReader(notElf), strings.NewReader(""), &out, nil, nil)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestConvertRejectsUnknownRelocationType(t *testing.T) {
	b := newObjBuilder()
	textIdx := b.add(".text", elfschema.SHTProgbits, elfschema.SHFAlloc, 0, 0, make([]byte, 8))

	symStr := newStrTable()

	var symData []byte
	symData = append(symData, encodeSym32(elfschema.Sym32{})...)

	var relData []byte
	relData = append(relData, encodeRel32(elfschema.Rel32{Offset: 0, Info: 0<<8 | 99})...)

	strtabIdx := len(b.shdrs) + 2
	relTextIdx := len(b.shdrs)
	symtabIdx := relTextIdx + 1

	b.add(".rel.text", elfschema.SHTRel, 0, uint32(symtabIdx), uint32(textIdx), relData)
	b.add(".symtab", elfschema.SHTSymtab, 0, uint32(strtabIdx), 1, symData)
	b.add(".strtab", elfschema.SHTStrtab, 0, 0, 0, symStr.buf)
	b.addShstrtab()

	obj := b.build()

	var out bytes.Buffer

	_, err := Convert(bytes.NewReader(obj), strings.NewReader(""), &out, nil, nil)
	assert.ErrorIs(t, err, ErrUnsupportedRelocation)
}

func decodeShdrs(t *testing.T, raw []byte, ehdr *elfschema.Ehdr64) []elfschema.Shdr64 {
	t.Helper()

	shdrs := make([]elfschema.Shdr64, ehdr.Shnum)

	for i := range shdrs {
		off := ehdr.Shoff + uint64(i)*elfschema.SizeofShdr64
		require.NoError(t, elfschema.Decode(raw[off:off+elfschema.SizeofShdr64], &shdrs[i]))
	}

	return shdrs
}

func sectionBytes(raw []byte, sh elfschema.Shdr64) []byte {
	return raw[sh.Off : sh.Off+sh.Size]
}

func decodeSyms(t *testing.T, raw []byte, sh elfschema.Shdr64) []elfschema.Sym64 {
	t.Helper()

	data := sectionBytes(raw, sh)
	count := len(data) / elfschema.SizeofSym64
	syms := make([]elfschema.Sym64, count)

	for i := range syms {
		require.NoError(t, elfschema.Decode(data[i*elfschema.SizeofSym64:(i+1)*elfschema.SizeofSym64], &syms[i]))
	}

	return syms
}

func decodeRelas(t *testing.T, raw []byte, sh elfschema.Shdr64) []elfschema.Rela64 {
	t.Helper()

	data := sectionBytes(raw, sh)
	count := len(data) / elfschema.SizeofRela64
	relas := make([]elfschema.Rela64, count)

	for i := range relas {
		require.NoError(t, elfschema.Decode(data[i*elfschema.SizeofRela64:(i+1)*elfschema.SizeofRela64], &relas[i]))
	}

	return relas
}
