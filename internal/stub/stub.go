// Package stub generates the machine-code trampolines that let a 64-bit
// SysV caller invoke a 32-bit cdecl callee ("global" stubs) and a 32-bit
// cdecl caller invoke a 64-bit SysV callee ("extern" stubs), crossing the
// protected-mode/long-mode boundary with a pair of far jumps.
//
// Every stub is built by appending fixed instruction blocks and per-argument
// move instructions to an internal/buffer.Buffer; the only value that
// varies per function is the argument count and widths carried in a
// sig.Signature.
package stub

import (
	"github.com/abibridge/abibridge/internal/align"
	"github.com/abibridge/abibridge/internal/buffer"
	"github.com/abibridge/abibridge/internal/sig"
)

// Selector32 and Selector64 are the default code-segment selectors the
// generated far jumps switch to; they must match the GDT layout of the
// process that ultimately loads the converted object.
const (
	Selector32 uint16 = 0x23
	Selector64 uint16 = 0x33

	// SelectorData32 is the default flat data-segment selector reloaded
	// into ds and es after returning to 32-bit mode; it is a distinct GDT
	// entry from Selector32 and is never used as a CS value.
	SelectorData32 uint16 = 0x2b
)

// Selectors names the three GDT entries a stub's far jumps and segment
// reload target. DefaultSelectors matches the layout assumed by the
// Selector32/Selector64/SelectorData32 constants above; a caller wiring a
// non-default GDT layout builds its own Selectors and passes it to the
// *Sel variant of each Emit function.
type Selectors struct {
	Protected     uint16
	ProtectedData uint16
	Long          uint16
}

// DefaultSelectors is the Selectors value EmitGlobalStub and
// EmitExternStub use.
var DefaultSelectors = Selectors{Protected: Selector32, ProtectedData: SelectorData32, Long: Selector64}

var (
	calleeSaved32 = []int{regDI, regSI}
	calleeSaved64 = []int{regBX, regBP, regR12, regR13, regR14, regR15}
)

// argSlotSize returns the stack slot width, in bytes, a single argument of
// the given type occupies when spilled: 8 for the 64-bit integer types, 4
// for everything else.
func argSlotSize(t sig.Type) int {
	if t.IsWide() {
		return 8
	}

	return 4
}

// argsSize returns the total size of the argument spill area, rounded so
// that the area together with the 8 bytes of saved call/return-address
// state lands on a 16-byte boundary.
func argsSize(args []sig.Type) int {
	size := 0
	for _, t := range args {
		size += argSlotSize(t)
	}

	return int(align.Address(uint32(size+8), 16)) - 8
}

// marshalArgs spills each SysV argument register into the stack slots at
// offset, offset+slotWidth, ... (toSysV false), or loads each stack slot
// back into its SysV argument register (toSysV true). A plain Long
// argument being loaded into a 64-bit register is sign-extended with
// movsxd rather than zero-extended with a plain mov.
func marshalArgs(buf *buffer.Buffer, args []sig.Type, offset int, toSysV bool) {
	for i, t := range args {
		wide := t.IsWide()

		var opcode byte

		switch {
		case !toSysV:
			opcode = 0x89 // mov [mem], reg
		case t == sig.Long:
			opcode = 0x63 // movsxd reg, [mem]
			wide = true
		default:
			opcode = 0x8b // mov reg, [mem]
		}

		emitArgMove(buf, sysvArgRegs[i], int8(offset), opcode, wide)
		offset += argSlotSize(t)
	}
}

// emitRetSplit splits a 64-bit return value in RAX into the EDX:EAX pair a
// cdecl caller expects for a long long return.
func emitRetSplit(buf *buffer.Buffer) {
	buf.Append([]byte{0x48, 0x89, 0xc2})       // mov rdx, rax
	buf.Append([]byte{0x48, 0xc1, 0xea, 0x20}) // shr rdx, 32
}

// emitRetJoin reassembles an EDX:EAX pair produced by a cdecl callee into a
// single 64-bit value in RAX.
func emitRetJoin(buf *buffer.Buffer) {
	buf.Append([]byte{0x48, 0xc1, 0xe2, 0x20}) // shl rdx, 32
	buf.Append([]byte{0x48, 0x09, 0xd0})       // or rax, rdx
}

// emitMovECXfromEAX and emitMovEAXfromECX stash and restore the 32-bit
// return value across a mode switch, which clobbers no registers the ABI
// doesn't already treat as call-clobbered except that the switch itself
// must not touch EAX/ECX while in flight.
func emitMovECXfromEAX(buf *buffer.Buffer) { buf.Append([]byte{0x89, 0xc1}) }
func emitMovEAXfromECX(buf *buffer.Buffer) { buf.Append([]byte{0x89, 0xc8}) }

// EmitGlobalStub builds the trampoline body for a global stub: entered
// with SysV arguments in registers, it spills them, drops into 32-bit
// mode, calls the converted function with a cdecl stack frame, returns to
// 64-bit mode, and reassembles the return value.
//
// The returned patchOffset is the byte offset, within the returned slice,
// of the call instruction's 32-bit relative displacement operand; the
// caller must patch it with the offset of the target symbol relative to
// the byte immediately after the call.
func EmitGlobalStub(s sig.Signature) (code []byte, patchOffset int) {
	return EmitGlobalStubSel(s, DefaultSelectors)
}

// EmitGlobalStubSel is EmitGlobalStub with an explicit Selectors, for a
// GDT layout other than DefaultSelectors.
func EmitGlobalStubSel(s sig.Signature, sel Selectors) (code []byte, patchOffset int) {
	var buf buffer.Buffer

	size := argsSize(s.ArgTypes)

	pushAll(&buf, calleeSaved64)
	emitSubSP(&buf, byte(size+8))
	marshalArgs(&buf, s.ArgTypes, 8, false)
	emitSwitchTo32(&buf, sel.Protected)
	emitAddSP(&buf, 8)
	emitSegmentReset(&buf, byte(sel.ProtectedData))

	buf.Append([]byte{0xe8, 0, 0, 0, 0})
	patchOffset = buf.Len() - 4

	if s.ReturnType != sig.Void {
		emitMovECXfromEAX(&buf)
	}

	emitSwitchTo64(&buf, sel.Long)

	if s.ReturnType != sig.Void {
		emitMovEAXfromECX(&buf)
	}

	switch {
	case s.ReturnType.IsWide():
		emitRetJoin(&buf)
	case s.ReturnType == sig.Long:
		buf.Append([]byte{0x48, 0x63, 0xc0}) // movsxd rax, eax
	}

	emitAddSP(&buf, byte(size+4))
	popAll(&buf, calleeSaved64)
	buf.AppendByte(0xc3)

	return buf.Bytes(), patchOffset
}

// EmitExternStub builds the trampoline body for an extern stub: entered
// with a cdecl stack frame, it switches to 64-bit mode, loads the spilled
// arguments into SysV registers, calls the 64-bit function, returns to
// 32-bit mode, and leaves the return value in the register pair a cdecl
// caller expects.
//
// patchOffset has the same meaning as in EmitGlobalStub.
func EmitExternStub(s sig.Signature) (code []byte, patchOffset int) {
	return EmitExternStubSel(s, DefaultSelectors)
}

// EmitExternStubSel is EmitExternStub with an explicit Selectors, for a
// GDT layout other than DefaultSelectors.
func EmitExternStubSel(s sig.Signature, sel Selectors) (code []byte, patchOffset int) {
	var buf buffer.Buffer

	pushAll(&buf, calleeSaved32)
	emitSubSP(&buf, 4)
	emitSwitchTo64(&buf, sel.Long)
	emitAddSP(&buf, 4)
	marshalArgs(&buf, s.ArgTypes, 16, true)

	buf.Append([]byte{0xe8, 0, 0, 0, 0})
	patchOffset = buf.Len() - 4

	if s.ReturnType.IsWide() {
		emitRetSplit(&buf)
	}

	emitSubSP(&buf, 4)
	emitSwitchTo32(&buf, sel.Protected)
	emitAddSP(&buf, 8)
	popAll(&buf, calleeSaved32)
	buf.AppendByte(0xc3)

	return buf.Bytes(), patchOffset
}
