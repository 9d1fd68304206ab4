package convert

import (
	"fmt"

	"github.com/abibridge/abibridge/internal/elfschema"
)

// convertShdr converts section idx if it has not already been converted,
// first converting any section it depends on (a SHT_SYMTAB's string
// table and every section any of its symbols are defined relative to, or
// a SHT_REL's target and link sections). SHT_NOTE sections are dropped:
// they are never given an output index, and any symbol or relocation that
// still refers to one is left pointing at index 0.
//
// The null section (index 0) is handled outside this recursion: it is
// always converted first, directly by convertAll. Whether a section has
// been visited is tracked in c.visited, not inferred from a zero
// newShdrIdx entry (which a dropped note section also keeps).
func (c *ctx) convertShdr(idx int) error {
	if c.visited[idx] {
		return nil
	}

	if idx >= len(c.in.shdrs) {
		return fmt.Errorf("convert: section %d: %w", idx, ErrBadSymbolIndex)
	}

	shdr := c.in.shdrs[idx]

	var (
		out elfschema.Shdr64
		err error
	)

	switch shdr.Type {
	case elfschema.SHTSymtab:
		if err := c.checkShdrIdx(shdr.Link); err != nil {
			return err
		}

		if shdr.Link != 0 {
			if err := c.convertShdr(int(shdr.Link)); err != nil {
				return err
			}
		}

		if err := c.convertSymtabRefs(idx, shdr); err != nil {
			return err
		}

		out, err = c.convertSymtab(idx, shdr)
	case elfschema.SHTNote:
		c.log.Warn("dropping SHT_NOTE section", "index", idx, "name", c.in.sectionName(idx))
		c.visited[idx] = true

		return nil
	case elfschema.SHTRel:
		if err := c.checkShdrIdx(shdr.Link); err != nil {
			return err
		}

		if err := c.checkShdrIdx(shdr.Info); err != nil {
			return err
		}

		if shdr.Link != 0 {
			if err := c.convertShdr(int(shdr.Link)); err != nil {
				return err
			}
		}

		if shdr.Info != 0 {
			if err := c.convertShdr(int(shdr.Info)); err != nil {
				return err
			}
		}

		out, err = c.convertRel(idx, shdr)
	default:
		out, err = c.convertOther(idx, shdr)
	}

	if err != nil {
		return fmt.Errorf("convert: section %d (%s): %w", idx, c.in.sectionName(idx), err)
	}

	c.newShdrIdx[idx] = uint32(len(c.outShdrs))
	c.visited[idx] = true
	c.outShdrs = append(c.outShdrs, out)

	return nil
}

// convertSymtabRefs pre-converts every section any symbol in the table at
// idx is defined relative to, so that by the time convertSymtab runs,
// newShdrIdx already has an entry for every section it needs to look up.
func (c *ctx) convertSymtabRefs(idx int, shdr elfschema.Shdr32) error {
	data := c.in.data[idx]
	count := len(data) / elfschema.SizeofSym32

	for i := 0; i < count; i++ {
		var s elfschema.Sym32
		if err := elfschema.Decode(data[i*elfschema.SizeofSym32:(i+1)*elfschema.SizeofSym32], &s); err != nil {
			return fmt.Errorf("symbol %d: %w", i, err)
		}

		if !elfschema.IsRealSectionIndex(uint32(s.Shndx)) {
			continue
		}

		if err := c.checkShdrIdx(uint32(s.Shndx)); err != nil {
			return err
		}

		if err := c.convertShdr(int(s.Shndx)); err != nil {
			return err
		}
	}

	return nil
}

func (c *ctx) convertOther(idx int, shdr elfschema.Shdr32) (elfschema.Shdr64, error) {
	out := elfschema.Shdr64{
		Name:      shdr.Name,
		Type:      shdr.Type,
		Flags:     uint64(shdr.Flags),
		Addr:      0,
		Off:       c.currentOffset(),
		Size:      uint64(shdr.Size),
		Link:      0,
		Info:      shdr.Info,
		Addralign: uint64(shdr.Addralign),
		Entsize:   uint64(shdr.Entsize),
	}

	c.appendData(c.in.data[idx])

	return out, nil
}

func (c *ctx) checkShdrIdx(idx uint32) error {
	if idx >= uint32(len(c.in.shdrs)) {
		return fmt.Errorf("%w: section index %d", ErrBadSymbolIndex, idx)
	}

	return nil
}

// convertAll runs convertShdr over every input section in order, having
// first converted the null section on its own so that index 0 is never
// mistaken for "not yet visited".
func (c *ctx) convertAll() error {
	c.newShdrIdx[0] = 0
	c.visited[0] = true
	c.outShdrs = append(c.outShdrs, elfschema.Shdr64{})

	for i := 1; i < len(c.in.shdrs); i++ {
		if err := c.convertShdr(i); err != nil {
			return err
		}
	}

	return nil
}
