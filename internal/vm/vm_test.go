package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noxy-vm/internal/value"
)

func run(t *testing.T, source string) (string, Result) {
	t.Helper()
	var out bytes.Buffer
	var errOut bytes.Buffer
	machine := New(value.NewHeap(), Config{Stdout: &out, Stderr: &errOut})
	result := machine.Interpret(source)
	if result == ResultRuntimeError {
		t.Logf("runtime error: %s", errOut.String())
	}
	return out.String(), result
}

func TestInterpretArithmetic(t *testing.T) {
	out, result := run(t, `print 1 + 2 * 3;`)
	require.Equal(t, ResultOK, result)
	assert.Equal(t, "7\n", out)
}

func TestInterpretStringConcat(t *testing.T) {
	out, result := run(t, `print "foo" + "bar";`)
	require.Equal(t, ResultOK, result)
	assert.Equal(t, "foobar\n", out)
}

func TestInterpretScopingAndShadowing(t *testing.T) {
	out, result := run(t, `var a = "outer"; { var a = "inner"; print a; } print a;`)
	require.Equal(t, ResultOK, result)
	assert.Equal(t, "inner\nouter\n", out)
}

func TestInterpretClosureCounter(t *testing.T) {
	out, result := run(t, `
		fun makeCounter() {
			var count = 0;
			fun inc() {
				count = count + 1;
				return count;
			}
			return inc;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	require.Equal(t, ResultOK, result)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestInterpretUndefinedVariableIsRuntimeError(t *testing.T) {
	_, result := run(t, `print undefined;`)
	assert.Equal(t, ResultRuntimeError, result)
}

func TestInterpretIfElseAndForLoop(t *testing.T) {
	out, result := run(t, `
		for (var i = 0; i < 5; i = i + 1) {
			if (i < 2) {
				print "small";
			} else {
				print "big";
			}
		}
	`)
	require.Equal(t, ResultOK, result)
	assert.Equal(t, strings.Repeat("small\n", 2)+strings.Repeat("big\n", 3), out)
}

func TestInterpretFunctionCallAndReturn(t *testing.T) {
	out, result := run(t, `
		fun add(a, b) { return a + b; }
		print add(2, 3);
	`)
	require.Equal(t, ResultOK, result)
	assert.Equal(t, "5\n", out)
}

func TestInterpretWrongArityIsRuntimeError(t *testing.T) {
	_, result := run(t, `
		fun add(a, b) { return a + b; }
		add(1);
	`)
	assert.Equal(t, ResultRuntimeError, result)
}

func TestInterpretCallingNonFunctionIsRuntimeError(t *testing.T) {
	_, result := run(t, `var x = 1; x();`)
	assert.Equal(t, ResultRuntimeError, result)
}

func TestInterpretOperandTypeErrors(t *testing.T) {
	_, result := run(t, `print 1 + "two";`)
	assert.Equal(t, ResultRuntimeError, result)

	_, result = run(t, `print -"x";`)
	assert.Equal(t, ResultRuntimeError, result)
}

func TestInterpretCompileErrorDoesNotRun(t *testing.T) {
	out, result := run(t, `var a = ;`)
	assert.Equal(t, ResultCompileError, result)
	assert.Empty(t, out)
}

func TestDefineNativeIsCallableFromScript(t *testing.T) {
	var out bytes.Buffer
	machine := New(value.NewHeap(), Config{Stdout: &out})
	machine.DefineNative("double", 1, func(args []value.Value) (value.Value, error) {
		return value.NewNumber(args[0].Number * 2), nil
	})
	result := machine.Interpret(`print double(21);`)
	require.Equal(t, ResultOK, result)
	assert.Equal(t, "42\n", out.String())
}
