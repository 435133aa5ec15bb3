package compiler

import (
	"strconv"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/token"
	"noxy-vm/internal/value"
)

type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix  parseFn
	infix   parseFn
	prec    precedence
}

// rules is the per-token-kind table driving the Pratt parser: for each
// token kind, an optional prefix handler, an optional infix handler, and
// the precedence at which the infix handler binds.
var rules map[token.TokenType]parseRule

func init() {
	rules = map[token.TokenType]parseRule{
		token.LEFT_PAREN:    {prefix: grouping, infix: call, prec: precCall},
		token.RIGHT_PAREN:   {},
		token.LEFT_BRACE:    {},
		token.RIGHT_BRACE:   {},
		token.COMMA:         {},
		token.DOT:           {},
		token.MINUS:         {prefix: unary, infix: binary, prec: precTerm},
		token.PLUS:          {infix: binary, prec: precTerm},
		token.SEMICOLON:     {},
		token.SLASH:         {infix: binary, prec: precFactor},
		token.STAR:          {infix: binary, prec: precFactor},
		token.BANG:          {prefix: unary},
		token.BANG_EQUAL:    {infix: binary, prec: precEquality},
		token.EQUAL:         {},
		token.EQUAL_EQUAL:   {infix: binary, prec: precEquality},
		token.GREATER:       {infix: binary, prec: precComparison},
		token.GREATER_EQUAL: {infix: binary, prec: precComparison},
		token.LESS:          {infix: binary, prec: precComparison},
		token.LESS_EQUAL:    {infix: binary, prec: precComparison},
		token.IDENTIFIER:    {prefix: variable},
		token.STRING:        {prefix: stringLiteral},
		token.NUMBER:        {prefix: number},
		token.AND:           {infix: and_, prec: precAnd},
		token.CLASS:         {},
		token.ELSE:          {},
		token.FALSE:         {prefix: literal},
		token.FOR:           {},
		token.FUN:           {},
		token.IF:            {},
		token.NIL:           {prefix: literal},
		token.OR:            {infix: or_, prec: precOr},
		token.PRINT:         {},
		token.RETURN:        {},
		token.SUPER:         {},
		token.THIS:          {},
		token.TRUE:          {prefix: literal},
		token.VAR:           {},
		token.WHILE:         {},
		token.ERROR:         {},
		token.EOF:           {},
	}
}

func getRule(kind token.TokenType) parseRule {
	return rules[kind]
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefixRule := getRule(c.ps.prev.Type).prefix
	if prefixRule == nil {
		c.errorAtPrevious("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefixRule(c, canAssign)

	for prec <= getRule(c.ps.current.Type).prec {
		c.advance()
		infixRule := getRule(c.ps.prev.Type).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.match(token.EQUAL) {
		c.errorAtPrevious("Invalid assignment target.")
	}
}

func number(c *Compiler, _ bool) {
	n, err := strconv.ParseFloat(c.ps.prev.Literal, 64)
	if err != nil {
		c.errorAtPrevious("Invalid number literal.")
		return
	}
	c.emitConstant(value.NewNumber(n))
}

func stringLiteral(c *Compiler, _ bool) {
	c.emitConstant(c.ps.heap.NewString(c.ps.prev.Literal))
}

func literal(c *Compiler, _ bool) {
	switch c.ps.prev.Type {
	case token.FALSE:
		c.emitOp(chunk.OpFalse)
	case token.NIL:
		c.emitOp(chunk.OpNil)
	case token.TRUE:
		c.emitOp(chunk.OpTrue)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(token.RIGHT_PAREN, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	opType := c.ps.prev.Type
	c.parsePrecedence(precUnary)
	switch opType {
	case token.BANG:
		c.emitOp(chunk.OpNot)
	case token.MINUS:
		c.emitOp(chunk.OpNegate)
	}
}

func binary(c *Compiler, _ bool) {
	opType := c.ps.prev.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.prec + 1)

	switch opType {
	case token.BANG_EQUAL:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case token.EQUAL_EQUAL:
		c.emitOp(chunk.OpEqual)
	case token.GREATER:
		c.emitOp(chunk.OpGreater)
	case token.GREATER_EQUAL:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case token.LESS:
		c.emitOp(chunk.OpLess)
	case token.LESS_EQUAL:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	case token.PLUS:
		c.emitOp(chunk.OpAdd)
	case token.MINUS:
		c.emitOp(chunk.OpSubtract)
	case token.STAR:
		c.emitOp(chunk.OpMultiply)
	case token.SLASH:
		c.emitOp(chunk.OpDivide)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.ps.prev, canAssign)
}

func (c *Compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp chunk.OpCode
	var arg int

	if slot := resolveLocal(c, name.Literal); slot != -1 {
		getOp, setOp, arg = chunk.OpGetLocal, chunk.OpSetLocal, slot
	} else if slot := resolveUpvalue(c, name.Literal); slot != -1 {
		getOp, setOp, arg = chunk.OpGetUpvalue, chunk.OpSetUpvalue, slot
	} else {
		arg = int(c.identifierConstant(name.Literal))
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && c.match(token.EQUAL) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOpByte(chunk.OpCall, argCount)
}

func (c *Compiler) argumentList() byte {
	var count int
	if !c.check(token.RIGHT_PAREN) {
		for {
			c.expression()
			if count == 255 {
				c.errorAtPrevious("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RIGHT_PAREN, "Expect ')' after arguments.")
	return byte(count)
}
