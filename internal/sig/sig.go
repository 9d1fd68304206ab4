// Package sig parses the function-list file and holds the resulting
// name-to-signature table that drives stub generation.
package sig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Type is one of the eight recognized argument/return types.
type Type int

const (
	Void Type = iota
	Int
	Uint
	Long
	Ulong
	LongLong
	ULongLong
	Ptr
)

var typeNames = map[string]Type{
	"void":      Void,
	"int":       Int,
	"uint":      Uint,
	"long":      Long,
	"ulong":     Ulong,
	"longlong":  LongLong,
	"ulonglong": ULongLong,
	"ptr":       Ptr,
}

func (t Type) String() string {
	for name, typ := range typeNames {
		if typ == t {
			return name
		}
	}

	return "unknown"
}

// IsWide reports whether the type occupies a full 64-bit slot/register on
// both sides of the ABI boundary (longlong/ulonglong).
func (t Type) IsWide() bool {
	return t == LongLong || t == ULongLong
}

// MaxArgs is the largest argument count a signature may carry; it matches
// the number of SysV integer argument registers the stub generator knows
// how to marshal through.
const MaxArgs = 6

// MaxFunctions is the largest number of entries a function-list file may
// declare.
const MaxFunctions = 1023

var (
	ErrTooManyFunctions = errors.New("function list: too many functions")
	ErrTooManyArgs      = errors.New("function list: too many arguments")
	ErrExpectedType     = errors.New("function list: expected type")
	ErrInvalidType      = errors.New("function list: invalid type")
	ErrMissingName      = errors.New("function list: missing function name")
)

// Signature is a function's return type and ordered argument types.
type Signature struct {
	ReturnType Type
	ArgTypes   []Type
}

// Table is an insertion-ordered name-to-signature mapping, looked up by
// exact byte-wise name equality.
type Table struct {
	names        []string
	sigs         []Signature
	index        map[string]int
	maxFunctions int
}

// NewTable returns an empty table that rejects more than MaxFunctions
// entries.
func NewTable() *Table {
	return NewTableWithLimit(MaxFunctions)
}

// NewTableWithLimit returns an empty table that rejects more than
// maxFunctions entries, for callers that have narrowed the default via
// configuration.
func NewTableWithLimit(maxFunctions int) *Table {
	return &Table{index: make(map[string]int), maxFunctions: maxFunctions}
}

// Lookup returns the signature registered for name, or false if name is
// not listed.
func (t *Table) Lookup(name string) (Signature, bool) {
	i, ok := t.index[name]
	if !ok {
		return Signature{}, false
	}

	return t.sigs[i], true
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return len(t.names)
}

func (t *Table) add(name string, s Signature) error {
	if len(t.names) >= t.maxFunctions {
		return ErrTooManyFunctions
	}

	if _, exists := t.index[name]; exists {
		// A linear scan in insertion order always finds the first match;
		// a re-declared name is silently shadowed rather than an error.
		return nil
	}

	t.index[name] = len(t.names)
	t.names = append(t.names, name)
	t.sigs = append(t.sigs, s)

	return nil
}

// ParseFile reads a function-list file: one entry per line, blank lines
// ignored, tokens `name return_type [arg_type ...]` separated by
// whitespace. void is legal only as the return type; at most MaxArgs
// argument types; at most MaxFunctions entries.
func ParseFile(r io.Reader) (*Table, error) {
	return ParseFileWithLimit(r, MaxFunctions)
}

// ParseFileWithLimit is ParseFile with a caller-supplied entry limit, for
// a narrower-than-default configuration.
func ParseFileWithLimit(r io.Reader, maxFunctions int) (*Table, error) {
	table := NewTableWithLimit(maxFunctions)

	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		name, sigRecord, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("function list: line %d: %w", lineNo, err)
		}

		if err := table.add(name, sigRecord); err != nil {
			return nil, fmt.Errorf("function list: line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("function list: failed to read: %w", err)
	}

	return table, nil
}

func parseLine(line string) (string, Signature, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", Signature{}, ErrMissingName
	}

	name := fields[0]
	rest := fields[1:]

	if len(rest) == 0 {
		return "", Signature{}, ErrExpectedType
	}

	retType, ok := typeNames[rest[0]]
	if !ok {
		return "", Signature{}, fmt.Errorf("%w: %q", ErrInvalidType, rest[0])
	}

	argTokens := rest[1:]
	if len(argTokens) > MaxArgs {
		return "", Signature{}, ErrTooManyArgs
	}

	argTypes := make([]Type, 0, len(argTokens))
	for _, tok := range argTokens {
		argType, ok := typeNames[tok]
		if !ok {
			return "", Signature{}, fmt.Errorf("%w: %q", ErrInvalidType, tok)
		}

		if argType == Void {
			return "", Signature{}, fmt.Errorf("%w: void is not a legal argument type", ErrInvalidType)
		}

		argTypes = append(argTypes, argType)
	}

	return name, Signature{ReturnType: retType, ArgTypes: argTypes}, nil
}
