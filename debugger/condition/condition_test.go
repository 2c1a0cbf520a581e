package condition

import (
	"errors"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text      string
		registers []string
		wantErr   bool
	}{
		{text: "rax == 5", registers: []string{"rax"}},
		{text: "  EAX > 0x10 and ebx != 0 ", registers: []string{"eax", "ebx"}},
		{text: "mem[rsp+8] == 0", registers: []string{"rsp"}},
		{text: "(rcx & 0xff) == 1 or not rdx", registers: []string{"rcx", "rdx"}},
		{text: "-1 < 0", registers: nil},
		{text: "", wantErr: true},
		{text: "rax ==", wantErr: true},
		{text: "foo(rax)", wantErr: true},
		{text: "rax == \"a\"", wantErr: true},
		{text: "regs[0] == 1", wantErr: true},
		{text: "[x for x in rax]", wantErr: true},
		{text: "lambda: 1", wantErr: true},
	}
	for _, test := range tests {
		c, err := Parse(test.text)
		if test.wantErr {
			assert.True(t, errors.Is(err, e.ErrInvalidCondition), test.text)
			continue
		}
		if assert.Nil(t, err, test.text) {
			assert.Equal(t, test.registers, c.Registers(), test.text)
		}
	}
}

func TestCheckRegisters(t *testing.T) {
	c, err := Parse("rax == rbx")
	assert.Nil(t, err)
	assert.Nil(t, c.CheckRegisters([]string{"RAX", "RBX", "RIP"}))
	err = c.CheckRegisters([]string{"rax"})
	assert.True(t, errors.Is(err, e.ErrInvalidCondition))
}
