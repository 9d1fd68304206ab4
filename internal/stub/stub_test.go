package stub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/abibridge/abibridge/internal/sig"
)

// disassembleAll decodes code end to end in the given bit mode and fails
// the test at the first instruction the decoder rejects, returning the
// decoded instructions in order for the caller to inspect.
func disassembleAll(t *testing.T, code []byte, bitMode int) []x86asm.Inst {
	t.Helper()

	var insts []x86asm.Inst

	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], bitMode)
		require.NoErrorf(t, err, "decode failed at offset %d (% x)", off, code[off:])
		require.Greater(t, inst.Len, 0)

		insts = append(insts, inst)
		off += inst.Len
	}

	return insts
}

func TestEmitGlobalStubPatchSiteIsCallOperand(t *testing.T) {
	code, patchOffset := EmitGlobalStub(sig.Signature{ReturnType: sig.Int, ArgTypes: []sig.Type{sig.Int, sig.Ptr}})

	require.Greater(t, patchOffset, 0)
	assert.Equal(t, byte(0xe8), code[patchOffset-1])
	require.GreaterOrEqual(t, len(code), patchOffset+4)
}

func TestEmitExternStubPatchSiteIsCallOperand(t *testing.T) {
	code, patchOffset := EmitExternStub(sig.Signature{ReturnType: sig.ULongLong, ArgTypes: []sig.Type{sig.Long}})

	require.Greater(t, patchOffset, 0)
	assert.Equal(t, byte(0xe8), code[patchOffset-1])
	require.GreaterOrEqual(t, len(code), patchOffset+4)
}

func TestEmitGlobalStubDisassemblesCleanly(t *testing.T) {
	sigs := []sig.Signature{
		{ReturnType: sig.Void, ArgTypes: nil},
		{ReturnType: sig.Int, ArgTypes: []sig.Type{sig.Int, sig.Uint, sig.Ptr}},
		{ReturnType: sig.ULongLong, ArgTypes: []sig.Type{sig.LongLong, sig.Long, sig.Int, sig.Int, sig.Int, sig.Int}},
		{ReturnType: sig.Long, ArgTypes: []sig.Type{sig.Long}},
	}

	for _, s := range sigs {
		code, _ := EmitGlobalStub(s)
		// The body is entered in 64-bit mode, but the mid-stream mode
		// switch means the 32-bit portion will not round-trip through a
		// 64-bit decode without desyncing, so only the leading
		// push/sub/arg-move prologue is decoded here.
		insts := disassembleAll(t, code[:prologueLen(s)], 64)
		assert.NotEmpty(t, insts)
	}
}

func TestEmitExternStubArgMarshalUsesMovsxdForLong(t *testing.T) {
	code, _ := EmitExternStub(sig.Signature{ReturnType: sig.Void, ArgTypes: []sig.Type{sig.Long}})

	// push edi, push esi, sub esp,4 = 1+1+3 = 5 bytes of 32-bit prologue,
	// followed by the 20-byte switch-to-64 block and a 3-byte add esp,4.
	argsStart := 5 + 20 + 3
	insts := disassembleAll(t, code[argsStart:argsStart+5], 64)

	require.Len(t, insts, 1)
	assert.Equal(t, x86asm.MOVSXD, insts[0].Op)
}

func TestEmitGlobalStubArgMarshalUsesExtendedRegisterForSixthArg(t *testing.T) {
	s := sig.Signature{
		ReturnType: sig.Void,
		ArgTypes:   []sig.Type{sig.Int, sig.Int, sig.Int, sig.Int, sig.Int, sig.Int},
	}

	code, _ := EmitGlobalStub(s)

	// push_regs_64 (10 bytes) + sub esp,N (3 bytes) precede the arg moves.
	// The first four args (di/si/dx/cx) are plain 4-byte moves; the fifth
	// (r8) already needs REX.R and is 5 bytes, bringing the sixth (r9) to
	// offset 13+4*4+5.
	argsStart := 10 + 3
	sixthArgOffset := argsStart + 4*4 + 5
	insts := disassembleAll(t, code[sixthArgOffset:sixthArgOffset+5], 64)

	require.Len(t, insts, 1)
	assert.Equal(t, x86asm.MOV, insts[0].Op)
	assert.Equal(t, 5, insts[0].Len)
}

// prologueLen returns the number of leading bytes of a global stub that
// precede the 64->32 mode switch: the push_regs_64 block, the stack
// allocation, and the per-argument spill moves.
func prologueLen(s sig.Signature) int {
	n := 10 + 3 // push_regs_64 + sub esp, imm8

	for i, t := range s.ArgTypes {
		if t.IsWide() || sysvArgRegs[i] >= 8 {
			n += 5
		} else {
			n += 4
		}
	}

	return n
}
