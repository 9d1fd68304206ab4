package stub

import (
	"encoding/binary"

	"github.com/abibridge/abibridge/internal/buffer"
)

// General-purpose register numbers, shared by the 32-bit and 64-bit views
// of the same encoding (registers 8-15 require a REX prefix to reach).
const (
	regAX  = 0
	regCX  = 1
	regDX  = 2
	regBX  = 3
	regSP  = 4
	regBP  = 5
	regSI  = 6
	regDI  = 7
	regR12 = 12
	regR13 = 13
	regR14 = 14
	regR15 = 15
)

// sysvArgRegs lists the SysV integer argument registers in calling-
// convention order.
var sysvArgRegs = [6]int{regDI, regSI, regDX, regCX, 8, 9}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)

	return b
}

// pushReg emits `push reg`, using REX.B for r8-r15.
func pushReg(buf *buffer.Buffer, reg int) {
	if reg >= 8 {
		buf.AppendByte(0x41)
		buf.AppendByte(byte(0x50 + reg&7))

		return
	}

	buf.AppendByte(byte(0x50 + reg))
}

// popReg emits `pop reg`, using REX.B for r8-r15.
func popReg(buf *buffer.Buffer, reg int) {
	if reg >= 8 {
		buf.AppendByte(0x41)
		buf.AppendByte(byte(0x58 + reg&7))

		return
	}

	buf.AppendByte(byte(0x58 + reg))
}

// pushAll emits push instructions for regs in order.
func pushAll(buf *buffer.Buffer, regs []int) {
	for _, r := range regs {
		pushReg(buf, r)
	}
}

// popAll emits pop instructions for regs in reverse order.
func popAll(buf *buffer.Buffer, regs []int) {
	for i := len(regs) - 1; i >= 0; i-- {
		popReg(buf, regs[i])
	}
}

// emitArgMove emits a mov (or movsxd) between register reg and the memory
// operand [rsp/esp + offset], mirroring make_stub_conv_args: the ModRM
// reg field always carries the general-purpose register, REX.W is set for
// a 64-bit-wide move, and REX.R (plus the prefix byte itself) is only
// emitted when either REX.W or an extended register (r8/r9) is needed.
func emitArgMove(buf *buffer.Buffer, reg int, offset int8, opcode byte, wide bool) {
	rex := byte(0x40)
	needRex := false

	if wide {
		rex |= 0x08 // REX.W
		needRex = true
	}

	if reg >= 8 {
		rex |= 0x04 // REX.R
		needRex = true
	}

	if needRex {
		buf.AppendByte(rex)
	}

	modrm := byte(1<<6) | byte(reg&7)<<3 | byte(regSP&7)
	buf.AppendByte(opcode)
	buf.AppendByte(modrm)
	buf.AppendByte(0x24) // SIB: base=SP, no index
	buf.AppendByte(byte(offset))
}

// emitAddSP emits `add esp/rsp, imm8`.
func emitAddSP(buf *buffer.Buffer, imm8 byte) {
	buf.Append([]byte{0x83, 0xc4, imm8})
}

// emitSubSP emits `sub esp/rsp, imm8`.
func emitSubSP(buf *buffer.Buffer, imm8 byte) {
	buf.Append([]byte{0x83, 0xec, imm8})
}

// emitSegmentReset reloads ds and es with selector, by pushing the
// selector and popping it into each segment register in turn.
func emitSegmentReset(buf *buffer.Buffer, selector byte) {
	buf.Append([]byte{0x6a, selector, 0x1f}) // push selector; pop ds
	buf.Append([]byte{0x6a, selector, 0x07}) // push selector; pop es
}

// emitSwitchTo32 emits the 64→32 mode-switch block: it computes the
// address of the instruction immediately following this block via a
// rip-relative lea, stores that address and the 32-bit code-segment
// selector into the two stack slots at [rsp]/[rsp+4], and performs a far
// jump indirect through those slots.
func emitSwitchTo32(buf *buffer.Buffer, selector uint16) {
	const (
		storeBytes  = 3
		selBytes    = 8
		jmpFarBytes = 3
	)

	disp := uint32(storeBytes + selBytes + jmpFarBytes)

	buf.Append([]byte{0x8d, 0x0d})
	buf.Append(le32(disp))
	buf.Append([]byte{0x89, 0x0c, 0x24})       // mov [rsp], ecx
	buf.Append([]byte{0xc7, 0x44, 0x24, 0x04}) // mov dword [rsp+4], <selector>
	buf.Append(le32(uint32(selector)))
	buf.Append([]byte{0xff, 0x2c, 0x24}) // jmp far [rsp]
}

// emitSwitchTo64 emits the 32→64 mode-switch block: a near call to the
// following instruction pushes its own return address onto the (32-bit)
// stack, which is then adjusted forward past the rest of this block and
// paired with the 64-bit code-segment selector for a far jump indirect.
func emitSwitchTo64(buf *buffer.Buffer, selector uint16) {
	const (
		addBytes    = 4
		selBytes    = 8
		jmpFarBytes = 3
	)

	delta := byte(addBytes + selBytes + jmpFarBytes)

	buf.Append([]byte{0xe8, 0, 0, 0, 0})        // call <next instruction>
	buf.Append([]byte{0x83, 0x04, 0x24, delta}) // add dword [esp], delta
	buf.Append([]byte{0xc7, 0x44, 0x24, 0x04})  // mov dword [esp+4], <selector>
	buf.Append(le32(uint32(selector)))
	buf.Append([]byte{0xff, 0x2c, 0x24}) // jmp far [esp]
}
