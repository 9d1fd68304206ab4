package convert

import "errors"

// Errors returned while reading or validating the input object.
var (
	ErrBadMagic           = errors.New("convert: not an ELF file")
	ErrUnsupportedClass   = errors.New("convert: input is not a 32-bit ELF file")
	ErrUnsupportedData    = errors.New("convert: input is not little-endian")
	ErrUnsupportedType    = errors.New("convert: input is not a relocatable object (ET_REL)")
	ErrUnsupportedMachine = errors.New("convert: input is not an i386 object (EM_386)")
	ErrOutOfRange         = errors.New("convert: section or header offset out of file range")
)

// Errors returned while translating the section/symbol/relocation graph.
var (
	ErrBadSymbolIndex        = errors.New("convert: symbol index out of range")
	ErrUnsupportedRelocation = errors.New("convert: unsupported relocation type")
	errMultipleSymtabs       = errors.New("multiple symbol tables in one object are not supported")
)
