// Package vm implements the stack-based virtual machine that executes
// compiled chunks: a call-frame stack, a value stack, globals, and the
// open/closed upvalue machinery backing closures.
package vm

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/compiler"
	"noxy-vm/internal/value"
)

// FramesMax bounds call depth; StackMax follows it since every frame can
// address up to 256 local slots with its single-byte operands.
const (
	FramesMax = 64
	StackMax  = FramesMax * 256
)

// CallFrame is one active function invocation: its closure, its bytecode
// cursor, and the stack offset where its locals begin (slot 0 holds the
// closure itself).
type CallFrame struct {
	Closure *value.ObjClosure
	IP      int
	Slots   int
}

// Result mirrors the interpreter's coarse top-level outcome.
type Result int

const (
	ResultOK Result = iota
	ResultCompileError
	ResultRuntimeError
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultCompileError:
		return "COMPILE_ERROR"
	case ResultRuntimeError:
		return "RUNTIME_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Config carries the ambient knobs threaded through a run, mirroring
// compiler.Config.
type Config struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *slog.Logger
	Verbose bool
}

func (cfg Config) stdout() io.Writer {
	if cfg.Stdout != nil {
		return cfg.Stdout
	}
	return os.Stdout
}

func (cfg Config) stderr() io.Writer {
	if cfg.Stderr != nil {
		return cfg.Stderr
	}
	return os.Stderr
}

func (cfg Config) logger() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}

// VM holds all state for one interpreter session: its value stack, its
// call-frame stack, its global variable table, the heap it allocates
// closures and strings from, and the list of upvalues still open onto
// that stack.
type VM struct {
	frames     [FramesMax]*CallFrame
	frameCount int

	stack    []value.Value
	stackTop int

	globals map[*value.ObjString]value.Value

	openUpvalues *value.ObjUpvalue

	heap *value.Heap
	cfg  Config
}

// New creates a VM backed by heap. Natives must be installed with
// DefineNative before the first Interpret call that references them.
func New(heap *value.Heap, cfg Config) *VM {
	return &VM{
		stack:   make([]value.Value, StackMax),
		globals: make(map[*value.ObjString]value.Value),
		heap:    heap,
		cfg:     cfg,
	}
}

// DefineNative installs a host function as a global, reachable from
// script code under name. arity -1 marks it variadic.
func (vm *VM) DefineNative(name string, arity int, fn value.NativeFn) {
	key := vm.heap.Intern(name)
	native := vm.heap.NewNative(name, arity, fn)
	vm.globals[key] = value.NewObj(native)
}

// Global reads a global variable by name, for host code inspecting
// interpreter state between runs (mainly useful in tests).
func (vm *VM) Global(name string) (value.Value, bool) {
	v, ok := vm.globals[vm.heap.Intern(name)]
	return v, ok
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	v := vm.stack[vm.stackTop]
	vm.stack[vm.stackTop] = value.Value{}
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

// Interpret is the top-level entry point: it compiles source and, if that
// succeeds, runs the resulting script function to completion.
func (vm *VM) Interpret(source string) Result {
	fn, err := compiler.Compile(source, vm.heap, compiler.Config{
		Verbose: vm.cfg.Verbose,
		Logger:  vm.cfg.Logger,
	})
	if err != nil {
		fmt.Fprintln(vm.cfg.stderr(), err)
		return ResultCompileError
	}
	return vm.RunFunction(fn)
}

// Compile compiles source without running it, for callers (the CLI's
// --disassembly flag) that need the compiled function before deciding
// whether to execute it.
func (vm *VM) Compile(source string) (*value.ObjFunction, error) {
	return compiler.Compile(source, vm.heap, compiler.Config{
		Verbose: vm.cfg.Verbose,
		Logger:  vm.cfg.Logger,
	})
}

// RunFunction executes an already-compiled script function to completion.
func (vm *VM) RunFunction(fn *value.ObjFunction) Result {
	vm.resetStack()
	closure := vm.heap.NewClosure(fn)
	vm.push(value.NewObj(closure))
	if err := vm.call(closure, 0); err != nil {
		fmt.Fprintln(vm.cfg.stderr(), err)
		return ResultRuntimeError
	}

	if err := vm.run(); err != nil {
		fmt.Fprintln(vm.cfg.stderr(), err)
		return ResultRuntimeError
	}
	return ResultOK
}

// runtimeError formats a message and appends a stack trace — one line per
// active call frame, innermost first — then resets the stack, matching
// the reference interpreter's abort-on-runtime-error behavior.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, format, args...)

	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := vm.frames[i]
		fn := frame.Closure.Function
		c := fn.Chunk.(*chunk.Chunk)
		line := c.Line(frame.IP)
		name := "script"
		if fn.Name != "" {
			name = fn.Name + "()"
		}
		fmt.Fprintf(&sb, "\n[line %d] in %s", line, name)
	}

	if vm.cfg.Verbose {
		vm.cfg.logger().Debug("runtime error", "frames", vm.frameCount, "message", sb.String())
	}
	vm.resetStack()
	return fmt.Errorf("%s", sb.String())
}
