package convert

import (
	"fmt"

	"github.com/abibridge/abibridge/internal/elfschema"
)

// input is the fully-decoded 32-bit object file: headers and raw section
// bytes, read once and kept in memory for the rest of the conversion.
type input struct {
	ehdr  elfschema.Ehdr32
	shdrs []elfschema.Shdr32
	// data holds each section's raw bytes, indexed the same as shdrs.
	// SHT_NOBITS sections are read like any other: their entry holds the
	// file bytes their header's (off, size) range covers.
	data [][]byte
}

// readInput parses and validates raw, matching copy_and_check_ehdr's
// checks: magic, class, data encoding, object type, machine, and the
// range of every header and section before any section content is read.
func readInput(raw []byte) (*input, error) {
	if len(raw) < elfschema.SizeofEhdr32 {
		return nil, fmt.Errorf("%w: file too small for an ELF header", ErrOutOfRange)
	}

	var ehdr elfschema.Ehdr32
	if err := elfschema.Decode(raw[:elfschema.SizeofEhdr32], &ehdr); err != nil {
		return nil, fmt.Errorf("convert: failed to decode ELF header: %w", err)
	}

	if err := checkIdent(ehdr.Ident); err != nil {
		return nil, err
	}

	if ehdr.Type != elfschema.ETRel {
		return nil, ErrUnsupportedType
	}

	if ehdr.Machine != elfschema.EM386 {
		return nil, ErrUnsupportedMachine
	}

	shdrs, err := readShdrs(raw, &ehdr)
	if err != nil {
		return nil, err
	}

	if int(ehdr.Shstrndx) >= len(shdrs) {
		return nil, fmt.Errorf("%w: section header string table index out of range", ErrOutOfRange)
	}

	data := make([][]byte, len(shdrs))

	// Every section's (off, size) is range-checked up front, before any
	// section is read, including SHT_NOBITS sections: their content is
	// meaningless but their header fields are still validated and their
	// would-be bytes are still carried through convertOther unmodified.
	for i, sh := range shdrs {
		if err := checkRange(raw, sh.Off, sh.Size); err != nil {
			return nil, fmt.Errorf("convert: section %d: %w", i, err)
		}

		data[i] = raw[sh.Off : sh.Off+sh.Size]
	}

	return &input{ehdr: ehdr, shdrs: shdrs, data: data}, nil
}

func checkIdent(ident []byte) error {
	if len(ident) < 7 || ident[0] != elfschema.Magic[0] || ident[1] != elfschema.Magic[1] ||
		ident[2] != elfschema.Magic[2] || ident[3] != elfschema.Magic[3] {
		return ErrBadMagic
	}

	if ident[elfschema.EIClass] != elfschema.Class32 {
		return ErrUnsupportedClass
	}

	if ident[elfschema.EIData] != elfschema.DataLittleEndian {
		return ErrUnsupportedData
	}

	return nil
}

func readShdrs(raw []byte, ehdr *elfschema.Ehdr32) ([]elfschema.Shdr32, error) {
	tableSize := uint32(ehdr.Shnum) * elfschema.SizeofShdr32
	if err := checkRange(raw, ehdr.Shoff, tableSize); err != nil {
		return nil, fmt.Errorf("convert: section header table: %w", err)
	}

	shdrs := make([]elfschema.Shdr32, ehdr.Shnum)

	for i := range shdrs {
		off := ehdr.Shoff + uint32(i)*elfschema.SizeofShdr32
		if err := elfschema.Decode(raw[off:off+elfschema.SizeofShdr32], &shdrs[i]); err != nil {
			return nil, fmt.Errorf("convert: section header %d: %w", i, err)
		}
	}

	return shdrs, nil
}

// checkRange reports whether the half-open byte range [off, off+size)
// fits within raw, catching the unsigned overflow of off+size as well as
// a range that simply runs past the end of the file.
func checkRange(raw []byte, off, size uint32) error {
	end := uint64(off) + uint64(size)
	if end > uint64(len(raw)) {
		return ErrOutOfRange
	}

	return nil
}

// sectionName resolves a section's Name offset against the section
// header string table, identified by ehdr.Shstrndx.
func (in *input) sectionName(idx int) string {
	if in.ehdr.Shstrndx >= uint16(len(in.data)) {
		return ""
	}

	strtab := in.data[in.ehdr.Shstrndx]

	return cString(strtab, in.shdrs[idx].Name)
}

func cString(buf []byte, off uint32) string {
	if off >= uint32(len(buf)) {
		return ""
	}

	end := off
	for end < uint32(len(buf)) && buf[end] != 0 {
		end++
	}

	return string(buf[off:end])
}
