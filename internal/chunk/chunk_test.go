package chunk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noxy-vm/internal/value"
)

func TestWriteKeepsCodeAndLinesInLockstep(t *testing.T) {
	c := New("test")
	c.WriteOp(OpNil, 1)
	c.WriteOp(OpReturn, 2)
	require.Len(t, c.Code, len(c.Lines))
	assert.Equal(t, []int{1, 2}, c.Lines)
}

func TestAddConstantReturnsIndex(t *testing.T) {
	c := New("test")
	idx := c.AddConstant(value.NewNumber(42))
	assert.Equal(t, 0, idx)
	idx = c.AddConstant(value.NewNumber(43))
	assert.Equal(t, 1, idx)
}

func TestInstructionCountMatchesWrittenOpcodes(t *testing.T) {
	c := New("test")
	c.WriteOp(OpNil, 1)
	c.WriteOp(OpReturn, 1)
	assert.Equal(t, 2, c.InstructionCount())
}

func TestInstructionCountWithOperands(t *testing.T) {
	c := New("test")
	idx := c.AddConstant(value.NewNumber(1))
	c.WriteOp(OpConstant, 1)
	c.Write(byte(idx), 1)
	c.WriteOp(OpJumpIfFalse, 1)
	c.Write(0, 1)
	c.Write(3, 1)
	c.WriteOp(OpPop, 1)
	c.WriteOp(OpReturn, 1)

	assert.Equal(t, 4, c.InstructionCount())
}

func TestDisassembleEmptyProgram(t *testing.T) {
	c := New("script")
	c.WriteOp(OpNil, 1)
	c.WriteOp(OpReturn, 1)

	var buf bytes.Buffer
	c.Disassemble(&buf, "script")
	out := buf.String()
	assert.Contains(t, out, "OP_NIL")
	assert.Contains(t, out, "OP_RETURN")
}
