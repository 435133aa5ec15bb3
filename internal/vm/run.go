package vm

import (
	"fmt"

	"noxy-vm/internal/chunk"
	"noxy-vm/internal/value"
)

// run executes frames until the outermost call frame returns. It is the
// dispatch loop: decode one opcode, advance the active frame's IP past
// it and any operands, act, repeat.
func (vm *VM) run() error {
	for {
		frame := vm.frames[vm.frameCount-1]
		c := frame.Closure.Function.Chunk.(*chunk.Chunk)

		op := chunk.OpCode(c.Code[frame.IP])
		frame.IP++

		switch op {
		case chunk.OpConstant:
			idx := c.Code[frame.IP]
			frame.IP++
			vm.push(c.Constants[idx])

		case chunk.OpNil:
			vm.push(value.NewNil())
		case chunk.OpTrue:
			vm.push(value.NewBool(true))
		case chunk.OpFalse:
			vm.push(value.NewBool(false))
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := c.Code[frame.IP]
			frame.IP++
			vm.push(vm.stack[frame.Slots+int(slot)])
		case chunk.OpSetLocal:
			slot := c.Code[frame.IP]
			frame.IP++
			vm.stack[frame.Slots+int(slot)] = vm.peek(0)

		case chunk.OpGetUpvalue:
			slot := c.Code[frame.IP]
			frame.IP++
			vm.push(*frame.Closure.Upvalues[slot].Location)
		case chunk.OpSetUpvalue:
			slot := c.Code[frame.IP]
			frame.IP++
			*frame.Closure.Upvalues[slot].Location = vm.peek(0)

		case chunk.OpGetGlobal:
			name := c.Constants[c.Code[frame.IP]].Obj.(*value.ObjString)
			frame.IP++
			v, ok := vm.globals[name]
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case chunk.OpDefineGlobal:
			name := c.Constants[c.Code[frame.IP]].Obj.(*value.ObjString)
			frame.IP++
			vm.globals[name] = vm.peek(0)
			vm.pop()
		case chunk.OpSetGlobal:
			name := c.Constants[c.Code[frame.IP]].Obj.(*value.ObjString)
			frame.IP++
			if _, ok := vm.globals[name]; !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.globals[name] = vm.peek(0)

		case chunk.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.NewBool(value.Equal(a, b)))
		case chunk.OpGreater:
			if err := vm.numericBinary(op); err != nil {
				return err
			}
		case chunk.OpLess:
			if err := vm.numericBinary(op); err != nil {
				return err
			}

		case chunk.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide:
			if err := vm.numericBinary(op); err != nil {
				return err
			}

		case chunk.OpNot:
			vm.push(value.NewBool(value.IsFalsey(vm.pop())))
		case chunk.OpNegate:
			v := vm.peek(0)
			if !v.IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.pop()
			vm.push(value.NewNumber(-v.Number))

		case chunk.OpPrint:
			fmt.Fprintln(vm.cfg.stdout(), vm.pop().String())

		case chunk.OpJump:
			offset := vm.readShort(c, frame)
			frame.IP += offset
		case chunk.OpJumpIfFalse:
			offset := vm.readShort(c, frame)
			if value.IsFalsey(vm.peek(0)) {
				frame.IP += offset
			}
		case chunk.OpLoop:
			offset := vm.readShort(c, frame)
			frame.IP -= offset

		case chunk.OpCall:
			argCount := int(c.Code[frame.IP])
			frame.IP++
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}

		case chunk.OpClosure:
			idx := c.Code[frame.IP]
			frame.IP++
			fn := c.Constants[idx].Obj.(*value.ObjFunction)
			closure := vm.heap.NewClosure(fn)
			vm.push(value.NewObj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := c.Code[frame.IP]
				frame.IP++
				index := c.Code[frame.IP]
				frame.IP++
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(&vm.stack[frame.Slots+int(index)])
				} else {
					closure.Upvalues[i] = frame.Closure.Upvalues[index]
				}
			}

		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(&vm.stack[vm.stackTop-1])
			vm.pop()

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(&vm.stack[frame.Slots])
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = frame.Slots
			vm.push(result)

		default:
			return vm.runtimeError("Unknown opcode %s.", op)
		}
	}
}

func (vm *VM) readShort(c *chunk.Chunk, frame *CallFrame) int {
	hi, lo := c.Code[frame.IP], c.Code[frame.IP+1]
	frame.IP += 2
	return int(hi)<<8 | int(lo)
}

// add implements OP_ADD's two valid operand pairings: number+number and
// string+string. Anything else is a runtime error.
func (vm *VM) add() error {
	b, a := vm.peek(0), vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.NewNumber(a.Number + b.Number))
	case a.IsString() && b.IsString():
		vm.pop()
		vm.pop()
		as := a.Obj.(*value.ObjString).Chars
		bs := b.Obj.(*value.ObjString).Chars
		vm.push(vm.heap.NewString(as + bs))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

// numericBinary implements every binary op besides ADD and EQUAL, all of
// which require two number operands.
func (vm *VM) numericBinary(op chunk.OpCode) error {
	b, a := vm.peek(0), vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	switch op {
	case chunk.OpGreater:
		vm.push(value.NewBool(a.Number > b.Number))
	case chunk.OpLess:
		vm.push(value.NewBool(a.Number < b.Number))
	case chunk.OpSubtract:
		vm.push(value.NewNumber(a.Number - b.Number))
	case chunk.OpMultiply:
		vm.push(value.NewNumber(a.Number * b.Number))
	case chunk.OpDivide:
		vm.push(value.NewNumber(a.Number / b.Number))
	}
	return nil
}
