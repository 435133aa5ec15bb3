// Package compiler implements a single-pass Pratt compiler: parsing and
// bytecode emission happen in the same walk over the token stream,
// interleaved with scope and upvalue resolution. There is no intermediate
// AST.
package compiler

import (
	"fmt"
	"log/slog"
	"strings"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/scanner"
	"noxy-vm/internal/token"
	"noxy-vm/internal/value"
)

// Config carries the ambient knobs threaded through a compile, mirroring
// the reference interpreter's VMConfig pattern.
type Config struct {
	Verbose bool
	Logger  *slog.Logger
}

func (cfg Config) logger() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.Default()
}

type FunctionKind int

const (
	FuncScript FunctionKind = iota
	FuncFunction
)

type local struct {
	name       string
	depth      int // -1: declared, initializer not yet complete
	isCaptured bool
}

type upvalueRef struct {
	index   uint8
	isLocal bool
}

// parserState is the single-pass parser's shared state: the token cursor
// and error-accumulation flags, held by pointer so every nested
// *Compiler frame sees the same scanner position and error state.
type parserState struct {
	scanner *scanner.Scanner
	current token.Token
	prev    token.Token

	hadError   bool
	panicMode  bool
	errors     []string

	heap *value.Heap
	cfg  Config
}

// Compiler is one frame of the compiler's nested frame stack: one per
// function body being compiled, chained to its lexically enclosing frame.
// It emits directly into its own chunk as parsing proceeds.
type Compiler struct {
	enclosing *Compiler
	ps        *parserState

	function *value.ObjFunction
	chunk    *chunk.Chunk
	kind     FunctionKind

	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
}

// Compile compiles source into a top-level script function, or returns an
// error aggregating every diagnostic produced (the compiler synchronizes
// past each error and keeps parsing, per panic-mode recovery).
func Compile(source string, heap *value.Heap, cfg Config) (*value.ObjFunction, error) {
	ps := &parserState{
		scanner: scanner.New(source),
		heap:    heap,
		cfg:     cfg,
	}
	c := newCompiler(ps, nil, FuncScript, "")

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	c.consume(token.EOF, "Expect end of expression.")

	fn := c.endCompiler()
	if ps.hadError {
		return nil, fmt.Errorf("%s", strings.Join(ps.errors, "\n"))
	}
	return fn, nil
}

func newCompiler(ps *parserState, enclosing *Compiler, kind FunctionKind, name string) *Compiler {
	c := &Compiler{
		enclosing:  enclosing,
		ps:         ps,
		kind:       kind,
		scopeDepth: 0,
	}
	c.chunk = chunk.New(name)
	c.function = ps.heap.NewFunction(name, 0, 0, c.chunk)
	// Slot 0 is reserved for the callee itself (empty name, never resolvable
	// by source identifiers).
	c.locals = append(c.locals, local{name: "", depth: 0})
	return c
}

// --- token stream plumbing -------------------------------------------------

func (c *Compiler) advance() {
	c.ps.prev = c.ps.current
	for {
		c.ps.current = c.ps.scanner.NextToken()
		if c.ps.current.Type != token.ERROR {
			break
		}
		c.errorAtCurrent(c.ps.current.Literal)
	}
}

func (c *Compiler) check(kind token.TokenType) bool {
	return c.ps.current.Type == kind
}

func (c *Compiler) match(kind token.TokenType) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(kind token.TokenType, message string) {
	if c.ps.current.Type == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.ps.current, message) }
func (c *Compiler) errorAtPrevious(message string) { c.errorAt(c.ps.prev, message) }

func (c *Compiler) errorAt(tok token.Token, message string) {
	if c.ps.panicMode {
		return
	}
	c.ps.panicMode = true

	var where string
	switch tok.Type {
	case token.ERROR:
		where = ""
	case token.IDENTIFIER, token.STRING, token.NUMBER:
		// These carry their own source text, which is more useful here
		// than the generic kind name Display() would give.
		where = fmt.Sprintf(" at '%s'", tok.Literal)
	default:
		where = fmt.Sprintf(" at %s", tok.Type.Display())
	}
	c.ps.errors = append(c.ps.errors, fmt.Sprintf("[line %d] Error%s: %s", tok.Line, where, message))
	c.ps.hadError = true
}

// synchronize discards tokens until it reaches a likely statement
// boundary, so one diagnostic doesn't cascade into spurious follow-ons.
func (c *Compiler) synchronize() {
	c.ps.panicMode = false
	for c.ps.current.Type != token.EOF {
		if c.ps.prev.Type == token.SEMICOLON {
			return
		}
		switch c.ps.current.Type {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.advance()
	}
}

// --- emission ---------------------------------------------------------------

func (c *Compiler) currentLine() int {
	if c.ps.prev.Line != 0 {
		return c.ps.prev.Line
	}
	return c.ps.current.Line
}

func (c *Compiler) emitByte(b byte) {
	c.chunk.Write(b, c.currentLine())
}

func (c *Compiler) emitOp(op chunk.OpCode) {
	c.chunk.WriteOp(op, c.currentLine())
}

func (c *Compiler) emitBytes(a, b byte) {
	c.emitByte(a)
	c.emitByte(b)
}

func (c *Compiler) emitOpByte(op chunk.OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitReturn() {
	c.emitOp(chunk.OpNil)
	c.emitOp(chunk.OpReturn)
}

// makeConstant adds v to the current chunk's constant pool, enforcing the
// 8-bit index limit.
func (c *Compiler) makeConstant(v value.Value) byte {
	if len(c.chunk.Constants) >= chunk.MaxConstants {
		c.errorAtPrevious("Too many constants in one chunk.")
		return 0
	}
	return byte(c.chunk.AddConstant(v))
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(chunk.OpConstant, c.makeConstant(v))
}

func (c *Compiler) identifierConstant(name string) byte {
	return c.makeConstant(c.ps.heap.NewString(name))
}

// emitJump emits op followed by a two-byte placeholder offset and returns
// the offset of the placeholder's first byte, to be patched later.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk.Code) - 2
}

// patchJump backpatches the jump placeholder at offset with the distance
// from just past the placeholder to the current code position.
func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk.Code) - offset - 2
	if jump > 0xffff {
		c.errorAtPrevious("Too much code to jump over.")
		return
	}
	c.chunk.Code[offset] = byte((jump >> 8) & 0xff)
	c.chunk.Code[offset+1] = byte(jump & 0xff)
}

// emitLoop emits a backward OP_LOOP jump to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.chunk.Code) - loopStart + 2
	if offset > 0xffff {
		c.errorAtPrevious("Loop body too large.")
		return
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// --- scopes, locals, upvalues ------------------------------------------------

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		last := c.locals[len(c.locals)-1]
		if last.isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

const maxLocals = 256
const maxUpvalues = 256

func (c *Compiler) addLocal(name string) {
	if len(c.locals) >= maxLocals {
		c.errorAtPrevious("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

func (c *Compiler) declareVariable(name string) {
	if c.scopeDepth == 0 {
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.errorAtPrevious("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

// resolveLocal scans c's locals high-to-low for name, in the order
// required so that shadowing in nested scopes resolves to the innermost
// declaration. depth == -1 on a match means the local's own initializer
// is trying to read it.
func resolveLocal(c *Compiler, name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				c.errorAtPrevious("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func addUpvalue(c *Compiler, index uint8, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(c.upvalues) >= maxUpvalues {
		c.errorAtPrevious("Too many closure variables in function.")
		return 0
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	c.function.UpvalueCount = len(c.upvalues)
	return len(c.upvalues) - 1
}

// resolveUpvalue recurses into enclosing frames, marking a captured outer
// local and recording an (index, isLocal) upvalue pair deduplicated per
// frame, per the capture algorithm in the specification.
func resolveUpvalue(c *Compiler, name string) int {
	if c.enclosing == nil {
		return -1
	}
	if local := resolveLocal(c.enclosing, name); local != -1 {
		c.enclosing.locals[local].isCaptured = true
		return addUpvalue(c, uint8(local), true)
	}
	if upvalue := resolveUpvalue(c.enclosing, name); upvalue != -1 {
		return addUpvalue(c, uint8(upvalue), false)
	}
	return -1
}

// endCompiler finalizes the current frame's function (emitting its
// implicit nil return) and returns it; the caller then resumes emitting
// into the enclosing frame (nil at the top-level script frame).
func (c *Compiler) endCompiler() *value.ObjFunction {
	c.emitReturn()
	fn := c.function
	if c.ps.cfg.Verbose {
		c.ps.cfg.logger().Debug("compiled function",
			"name", displayName(fn.Name),
			"arity", fn.Arity,
			"upvalues", fn.UpvalueCount,
			"bytes", len(c.chunk.Code),
		)
	}
	return fn
}

func displayName(name string) string {
	if name == "" {
		return "<script>"
	}
	return name
}
