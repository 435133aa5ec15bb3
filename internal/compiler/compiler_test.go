package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/value"
)

func compile(t *testing.T, source string) *value.ObjFunction {
	t.Helper()
	fn, err := Compile(source, value.NewHeap(), Config{})
	require.NoError(t, err, "compiling %q", source)
	return fn
}

func TestCompileEmptyProgramIsNilReturn(t *testing.T) {
	fn := compile(t, "")
	c := fn.Chunk.(*chunk.Chunk)
	require.Len(t, c.Code, 2)
	assert.Equal(t, chunk.OpNil, chunk.OpCode(c.Code[0]))
	assert.Equal(t, chunk.OpReturn, chunk.OpCode(c.Code[1]))
}

func TestCompileSmoke(t *testing.T) {
	inputs := []string{
		"1 + 2;",
		`print "hi";`,
		"var a = 1; { var a = 2; print a; } print a;",
		"if (true) { print 1; } else { print 2; }",
		"for (var i = 0; i < 3; i = i + 1) print i;",
		"fun add(a, b) { return a + b; } print add(1, 2);",
		"fun make() { var c = 0; fun inc() { c = c + 1; return c; } return inc; }",
	}
	for _, in := range inputs {
		compile(t, in)
	}
}

func TestCompileErrorTooManyConstants(t *testing.T) {
	src := ""
	for i := 0; i < 257; i++ {
		src += "print 1;\n"
	}
	// AddConstant is append-only and never deduplicates, so each of the 257
	// "1;" expression statements below takes its own constant slot and the
	// 257th overflows the 8-bit constant index.
	src = ""
	for i := 0; i < 257; i++ {
		src += "1;\n"
	}
	_, err := Compile(src, value.NewHeap(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Too many constants in one chunk.")
}

func TestCompileErrorReadLocalInOwnInitializer(t *testing.T) {
	_, err := Compile("{ var a = a; }", value.NewHeap(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Can't read local variable in its own initializer.")
}

func TestCompileErrorDuplicateLocal(t *testing.T) {
	_, err := Compile("{ var a = 1; var a = 2; }", value.NewHeap(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Already a variable with this name in this scope.")
}

func TestCompileErrorInvalidAssignmentTarget(t *testing.T) {
	_, err := Compile("a + b = 3;", value.NewHeap(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid assignment target.")
}

func TestCompileErrorReturnAtTopLevel(t *testing.T) {
	_, err := Compile("return 1;", value.NewHeap(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Can't return from top-level code.")
}

func TestCompileErrorRecoversAndReportsMultiple(t *testing.T) {
	_, err := Compile("1 +; 2 +;", value.NewHeap(), Config{})
	require.Error(t, err)
	count := 0
	for _, line := range splitLines(err.Error()) {
		if line != "" {
			count++
		}
	}
	assert.GreaterOrEqual(t, count, 2)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	fn := compile(t, "fun make() { var c = 0; fun inc() { c = c + 1; return c; } return inc; }")
	c := fn.Chunk.(*chunk.Chunk)

	var makeFn *value.ObjFunction
	for _, constant := range c.Constants {
		if f, ok := constant.Obj.(*value.ObjFunction); ok && f.Name == "make" {
			makeFn = f
		}
	}
	require.NotNil(t, makeFn)

	makeChunk := makeFn.Chunk.(*chunk.Chunk)
	var incFn *value.ObjFunction
	for _, constant := range makeChunk.Constants {
		if f, ok := constant.Obj.(*value.ObjFunction); ok && f.Name == "inc" {
			incFn = f
		}
	}
	require.NotNil(t, incFn)
	assert.Equal(t, 1, incFn.UpvalueCount)
}
