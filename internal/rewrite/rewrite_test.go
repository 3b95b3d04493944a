package rewrite

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// e8Call encodes "call rel32" targeting target from an instruction
// starting at addr.
func e8Call(addr, target uint64) []byte {
	disp := int32(int64(target) - int64(addr) - 5)
	b := make([]byte, 5)
	b[0] = 0xE8
	b[1] = byte(disp)
	b[2] = byte(disp >> 8)
	b[3] = byte(disp >> 16)
	b[4] = byte(disp >> 24)
	return b
}

func TestRewriteSection_RedirectsCallIntoOtherLibrary(t *testing.T) {
	// Addresses render as 8-character literals ("0x150010"): a non-RIP
	// operand with a shorter literal is never redirected.
	own := sectionWindow{Name: ".text.libfoo", Address: 0x130000, Size: 0x100}
	ind := sectionWindow{Name: ".ind.libfoo", Address: 0x140000, Size: 0x100}
	other := sectionWindow{Name: ".text.libbar", Address: 0x150000, Size: 0x100}

	content := e8Call(own.Address, other.Address+0x10)

	r := New(discardLogger())
	lib, err := r.RewriteSection(own.Name, own, ind, content, []sectionWindow{own, other, ind})
	require.NoError(t, err)

	require.Len(t, lib.Text, 5)
	assert.Equal(t, byte(0xE9), lib.Text[0])
	assert.NotEmpty(t, lib.Indirection)
	assert.Equal(t, uint64(len(lib.Indirection)), lib.IndirectionSize)
}

func TestRewriteSection_LeavesSameLibraryCallUntouched(t *testing.T) {
	own := sectionWindow{Name: ".text.libfoo", Address: 0x1000, Size: 0x100}
	ind := sectionWindow{Name: ".ind.libfoo", Address: 0x2000, Size: 0x100}

	content := e8Call(own.Address, own.Address+0x40)

	r := New(discardLogger())
	lib, err := r.RewriteSection(own.Name, own, ind, content, []sectionWindow{own, ind})
	require.NoError(t, err)

	assert.Equal(t, content, lib.Text)
	assert.Empty(t, lib.Indirection)
}

func TestRewriteSection_NonAddressInstructionPassesThrough(t *testing.T) {
	own := sectionWindow{Name: ".text.libfoo", Address: 0x1000, Size: 0x100}
	ind := sectionWindow{Name: ".ind.libfoo", Address: 0x2000, Size: 0x100}

	// push rbp; ret
	content := []byte{0x55, 0xC3}

	r := New(discardLogger())
	lib, err := r.RewriteSection(own.Name, own, ind, content, []sectionWindow{own, ind})
	require.NoError(t, err)

	assert.Equal(t, content, lib.Text)
	assert.Empty(t, lib.Indirection)
}

func TestUseAbsoluteValue_FindsEmbeddedTarget(t *testing.T) {
	// mov edi, 0x500010: the absolute address is the trailing imm32.
	insBytes := []byte{0xBF, 0x10, 0x00, 0x50, 0x00}
	assert.True(t, useAbsoluteValue(0x500010, insBytes))
	assert.False(t, useAbsoluteValue(0xdeadbeef, insBytes))
}

func TestRequiresRedirect_OwnSectionIsFalse(t *testing.T) {
	own := sectionWindow{Name: ".text.libfoo", Address: 0x1000, Size: 0x100}
	insBytes := []byte{0x90, 0x90, 0x90, 0x90, 0x90}
	assert.False(t, requiresRedirect(0x1050, insBytes, own, []sectionWindow{own}))
}

func TestRequiresRedirect_OtherSectionBoundaryIsInclusive(t *testing.T) {
	own := sectionWindow{Name: ".text.libfoo", Address: 0x1000, Size: 0x100}
	other := sectionWindow{Name: ".text.libbar", Address: 0x2000, Size: 0x100}
	insBytes := []byte{0x90, 0x90, 0x90, 0x90, 0x90}
	assert.True(t, requiresRedirect(other.End(), insBytes, own, []sectionWindow{own, other}))
}

func TestIndirectionSection_OptimizeAddrsRetractsLastBackJump(t *testing.T) {
	s := newIndirectionSection(0x2000)
	s.addInsBytes(opNearJmp, 0x3000, 0)
	sizeBefore := s.Size()
	s.optimizeAddrs()
	assert.Equal(t, sizeBefore-5, s.Size())
}

func TestAddIndBytes_UnhandledOpcodeLeavesPriorBackJumpIntact(t *testing.T) {
	s := newIndirectionSection(0x2000)

	ok := s.addIndBytes(0x1010, 0x1000, e8Call(0x1000, 0x5000), 0)
	require.True(t, ok)
	sizeAfterFirst := s.Size()

	// mov eax, imm32 is not a handled opcode. Simulated here as if it
	// directly follows another redirected instruction (optimizedSuit > 0):
	// the skip must not retract the previous redirect's back-jump.
	movEax := []byte{0xB8, 0x10, 0x00, 0x50, 0x00}
	ok = s.addIndBytes(0x1020, 0x1015, movEax, 1)
	assert.False(t, ok)
	assert.Equal(t, sizeAfterFirst, s.Size())
}

func TestAddIndBytesBiggerRip_RewritesDisplacement(t *testing.T) {
	s := newIndirectionSection(0x9000)

	// lea rax, [rip+0x10] at address 0x1000, instruction is 7 bytes long.
	addr := uint64(0x1000)
	insLen := 7
	disp := int32(0x10)
	insBytes := make([]byte, insLen)
	insBytes[0], insBytes[1] = 0x48, 0x8D
	insBytes[2] = 0x05
	insBytes[3] = byte(disp)
	insBytes[4] = byte(disp >> 8)
	insBytes[5] = byte(disp >> 16)
	insBytes[6] = byte(disp >> 24)

	target := addr + uint64(insLen) + uint64(disp)

	err := s.addIndBytesBiggerRip(addr, insBytes, target, 0)
	require.NoError(t, err)

	rewritten := s.Bytes()[:insLen]
	newDisp := int32(target) - int32(0x9000) - int32(insLen)
	assert.Equal(t, byte(newDisp), rewritten[3])
}
