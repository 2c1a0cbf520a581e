package debugger

import (
	"errors"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestParseBreakpointAddress(t *testing.T) {
	tests := []struct {
		text    string
		want    BreakpointAddress
		wantErr bool
	}{
		{text: "kernel32.dll!0x50", want: NewBreakpointAddress("kernel32.dll", 0x50)},
		{text: "m!80", want: NewBreakpointAddress("m", 80)},
		{text: "0x401000", want: NewBreakpointAddress("", 0x401000)},
		{text: " libc.so.6!0x1f ", want: NewBreakpointAddress("libc.so.6", 0x1f)},
		{text: "!0x50", wantErr: true},
		{text: "m!zz", wantErr: true},
		{text: "", wantErr: true},
	}
	for _, test := range tests {
		got, err := ParseBreakpointAddress(test.text)
		if test.wantErr {
			assert.True(t, errors.Is(err, e.ErrInvalidAddress), test.text)
			continue
		}
		assert.Nil(t, err, test.text)
		assert.Equal(t, test.want, got)
		// 字符串形式可以再次解析
		again, err := ParseBreakpointAddress(got.String())
		assert.Nil(t, err)
		assert.Equal(t, got, again)
	}
}

func TestBreakpointAddressIdentity(t *testing.T) {
	// 不同模块的相同偏移不相等
	assert.NotEqual(t, NewBreakpointAddress("a", 0x10), NewBreakpointAddress("b", 0x10))
	assert.Equal(t, NewBreakpointAddress("a", 0x10), NewBreakpointAddress("a", 0x10))
	set := map[BreakpointAddress]bool{NewBreakpointAddress("a", 0x10): true}
	assert.False(t, set[NewBreakpointAddress("b", 0x10)])
}

func TestMemoryModuleContains(t *testing.T) {
	module := MemoryModule{Name: "Kernel32.dll", BaseAddress: 0x1000, Size: 0x1000}
	assert.True(t, module.Contains(0x1000))
	assert.True(t, module.Contains(0x1050))
	// 两端都包含
	assert.True(t, module.Contains(0x2000))
	assert.False(t, module.Contains(0x2001))
	assert.False(t, module.Contains(0xfff))
	assert.True(t, module.IsNamed("kernel32.DLL"))
	assert.False(t, module.IsNamed("user32.dll"))
}

func TestProgramCounter(t *testing.T) {
	registers := []ThreadRegisters{
		{ThreadID: 1, Registers: []RegisterValue{{Name: "rax", Value: 1}, {Name: "rip", Value: 0x1050, IsPC: true}}},
		{ThreadID: 2, Registers: []RegisterValue{{Name: "rax", Value: 2}}},
	}
	first, ok := FindThreadRegisters(registers, 1)
	assert.True(t, ok)
	pc, ok := first.ProgramCounter()
	assert.True(t, ok)
	assert.Equal(t, RelocatedAddress(0x1050), pc)

	second, ok := FindThreadRegisters(registers, 2)
	assert.True(t, ok)
	_, ok = second.ProgramCounter()
	assert.False(t, ok)

	_, ok = FindThreadRegisters(registers, 3)
	assert.False(t, ok)
}
