// Package elfschema declares the packed, little-endian ELF record layouts
// and constants used by both the 32-bit input and the 64-bit output, and
// the explicit byte-level codecs for them. Field widths and orderings are
// never left to native Go struct layout: every record is encoded and
// decoded through github.com/lunixbochs/struc with an explicit byte order,
// mirroring how internal/efipe packs DOS/PE headers in the teacher repo.
package elfschema

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"
)

// File identification.
const (
	EIClass   = 4
	EIData    = 5
	EIVersion = 6
)

var Magic = [4]byte{0x7f, 'E', 'L', 'F'}

const (
	ClassNone = 0
	Class32   = 1
	Class64   = 2
)

const (
	DataNone         = 0
	DataLittleEndian = 1
	DataBigEndian    = 2
)

// Object file types.
const (
	ETNone = 0
	ETRel  = 1
	ETExec = 2
	ETDyn  = 3
	ETCore = 4
)

// Machine types.
const (
	EM386    = 3
	EMX86_64 = 62
)

// Section types.
const (
	SHTNull     = 0
	SHTProgbits = 1
	SHTSymtab   = 2
	SHTStrtab   = 3
	SHTRela     = 4
	SHTHash     = 5
	SHTDynamic  = 6
	SHTNote     = 7
	SHTNobits   = 8
	SHTRel      = 9
)

// Section flags.
const (
	SHFWrite     = 0x1
	SHFAlloc     = 0x2
	SHFExecInstr = 0x4
)

// Reserved section indices. SHNLoreserve is the first index in the
// reserved range; indices at or beyond it (including SHNAbs) are never
// real sections and are carried through untranslated.
const (
	SHNUndef     = 0
	SHNLoreserve = 0xff00
	SHNAbs       = 0xfff1
)

// IsRealSectionIndex reports whether idx names an actual section header,
// as opposed to SHN_UNDEF or one of the reserved pseudo-indices.
func IsRealSectionIndex(idx uint32) bool {
	return idx != SHNUndef && idx < SHNLoreserve
}

// Symbol binding and type, packed into the single-byte Sym.Info field.
const (
	STBLocal  = 0
	STBGlobal = 1
	STBWeak   = 2

	STTNotype  = 0
	STTObject  = 1
	STTFunc    = 2
	STTSection = 3
)

// SymInfo packs a bind/type pair into the byte stored in Sym32.Info /
// Sym64.Info.
func SymInfo(bind, typ uint8) uint8 {
	return bind<<4 | (typ & 0xf)
}

// SymBind and SymType unpack a Sym.Info byte.
func SymBind(info uint8) uint8 { return info >> 4 }
func SymType(info uint8) uint8 { return info & 0xf }

// 386 relocation types (SHT_REL, no addend).
const (
	R386_32    = 1
	R386_PC32  = 2
	R386_PLT32 = 4
)

// x86-64 relocation types (SHT_RELA, with addend).
const (
	RX86_64_32   = 10
	RX86_64_PC32 = 2
)

// Ehdr32 is the 32-bit ELF file header.
type Ehdr32 struct {
	Ident     []byte `struc:"[16]byte"`
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// Ehdr64 is the 64-bit ELF file header.
type Ehdr64 struct {
	Ident     []byte `struc:"[16]byte"`
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

const (
	SizeofEhdr32 = 52
	SizeofEhdr64 = 64
)

// Shdr32 is a 32-bit section header entry.
type Shdr32 struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Off       uint32
	Size      uint32
	Link      uint32
	Info      uint32
	Addralign uint32
	Entsize   uint32
}

// Shdr64 is a 64-bit section header entry.
type Shdr64 struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Off       uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

const (
	SizeofShdr32 = 40
	SizeofShdr64 = 64
)

// Sym32 is a 32-bit symbol table entry. Note the field order differs from
// Sym64: the 32-bit layout places Value/Size before Info/Other/Shndx.
type Sym32 struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

// Sym64 is a 64-bit symbol table entry, with Info/Other/Shndx reordered
// ahead of Value/Size relative to Sym32.
type Sym64 struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

const (
	SizeofSym32 = 16
	SizeofSym64 = 24
)

// Rel32 is a 32-bit relocation entry without an explicit addend.
type Rel32 struct {
	Offset uint32
	Info   uint32
}

const SizeofRel32 = 8

// R32Sym and R32Type unpack a Rel32.Info field.
func R32Sym(info uint32) uint32  { return info >> 8 }
func R32Type(info uint32) uint32 { return info & 0xff }

// Rela64 is a 64-bit relocation entry with an explicit addend.
type Rela64 struct {
	Offset uint64
	Info   uint64
	Addend int64
}

const SizeofRela64 = 24

// R64Info packs a symbol index and relocation type into a Rela64.Info
// field.
func R64Info(sym uint64, typ uint64) uint64 {
	return sym<<32 | typ
}

var packOpts = &struc.Options{Order: binary.LittleEndian}

// Encode packs v (one of the record types above) into its little-endian
// wire representation.
func Encode(v interface{}) []byte {
	var buf bytes.Buffer
	if err := struc.PackWithOptions(&buf, v, packOpts); err != nil {
		panic(fmt.Sprintf("elfschema: failed to encode %T: %v", v, err))
	}

	return buf.Bytes()
}

// Decode unpacks p into v, which must be a pointer to one of the record
// types above.
func Decode(p []byte, v interface{}) error {
	if err := struc.UnpackWithOptions(bytes.NewReader(p), v, packOpts); err != nil {
		return fmt.Errorf("elfschema: failed to decode %T: %w", v, err)
	}

	return nil
}
