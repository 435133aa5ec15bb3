package value

import "fmt"

type ObjType int

const (
	ObjTypeString ObjType = iota
	ObjTypeFunction
	ObjTypeClosure
	ObjTypeUpvalue
	ObjTypeNative
)

// Obj is implemented by every heap-allocated object kind. Kind returns the
// type tag; heapNext/setHeapNext give the VM's Heap access to the
// intrusive singly linked list pointer every object carries in its header.
type Obj interface {
	Kind() ObjType
	String() string
	heapNext() Obj
	setHeapNext(Obj)
}

// ObjHeader is the shared header every heap object embeds: a type tag plus
// the intrusive link used by Heap to walk every live allocation.
type ObjHeader struct {
	Type     ObjType
	HeapNext Obj
}

func (h *ObjHeader) Kind() ObjType      { return h.Type }
func (h *ObjHeader) heapNext() Obj      { return h.HeapNext }
func (h *ObjHeader) setHeapNext(o Obj)  { h.HeapNext = o }

// ObjString is an immutable, interned string. Two strings with equal
// content are always the same *ObjString once interned, so string equality
// reduces to pointer identity (see Equal).
type ObjString struct {
	ObjHeader
	Chars string
	Hash  uint32
}

func (s *ObjString) String() string { return s.Chars }

// ObjFunction is the compile-time artifact produced when a function body
// finishes compiling. Chunk is interface{} (holding *chunk.Chunk) to break
// the value<->chunk import cycle: chunk.Chunk.Constants is a []Value.
type ObjFunction struct {
	ObjHeader
	Name         string
	Arity        int
	UpvalueCount int
	Chunk        interface{}
}

func (f *ObjFunction) String() string {
	if f.Name == "" {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name)
}

// ObjUpvalue is either open (Location points into the VM's live stack) or
// closed (Location points at Closed, inside the upvalue itself). NextOpen
// threads the VM's open-upvalue list, ordered by descending stack slot;
// it is unrelated to the heap-wide HeapNext link.
type ObjUpvalue struct {
	ObjHeader
	Location *Value
	Closed   Value
	NextOpen *ObjUpvalue
}

func (u *ObjUpvalue) String() string { return "<upvalue>" }

func (u *ObjUpvalue) IsOpen() bool { return u.Location != &u.Closed }

// ObjClosure binds a compiled function to the upvalues it captured at the
// point the CLOSURE instruction ran. It always carries exactly
// Function.UpvalueCount slots.
type ObjClosure struct {
	ObjHeader
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) String() string { return c.Function.String() }

// NativeFn is a host-provided function body. Returning a non-nil error
// aborts the VM with a runtime error; domain-stack natives that want to
// report a recoverable host failure instead return a Value (typically a
// string) and a nil error.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a host function. Arity -1 marks a variadic native, whose
// argument count the VM does not check against Arity.
type ObjNative struct {
	ObjHeader
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *ObjNative) String() string { return fmt.Sprintf("<native fn %s>", n.Name) }

// Heap is the intrusive singly linked list of every allocated object, plus
// the string interner. Every constructor below that allocates an object
// registers it on Track before returning, so the invariant "every heap
// object is reachable from the list head until freed" holds by
// construction.
type Heap struct {
	head    Obj
	strings *StringTable
}

func NewHeap() *Heap {
	return &Heap{strings: NewStringTable()}
}

// Track pushes o onto the head of the heap-wide linked list. No collector
// or root-marking pass runs here; the list only records every allocation.
func (h *Heap) Track(o Obj) {
	o.setHeapNext(h.head)
	h.head = o
}

// Head returns the first tracked object, for walking/testing reachability.
func (h *Heap) Head() Obj { return h.head }

// Walk calls fn for every object reachable from the heap head, innermost
// (most recently allocated) first.
func (h *Heap) Walk(fn func(Obj)) {
	for o := h.head; o != nil; o = o.heapNext() {
		fn(o)
	}
}

// NewFunction allocates and tracks a new ObjFunction.
func (h *Heap) NewFunction(name string, arity int, upvalueCount int, chunk interface{}) *ObjFunction {
	fn := &ObjFunction{
		ObjHeader:    ObjHeader{Type: ObjTypeFunction},
		Name:         name,
		Arity:        arity,
		UpvalueCount: upvalueCount,
		Chunk:        chunk,
	}
	h.Track(fn)
	return fn
}

// NewClosure allocates and tracks a new ObjClosure with upvalueCount empty
// upvalue slots, to be filled in by the CLOSURE instruction handler.
func (h *Heap) NewClosure(fn *ObjFunction) *ObjClosure {
	cl := &ObjClosure{
		ObjHeader: ObjHeader{Type: ObjTypeClosure},
		Function:  fn,
		Upvalues:  make([]*ObjUpvalue, fn.UpvalueCount),
	}
	h.Track(cl)
	return cl
}

// NewUpvalue allocates and tracks a new open upvalue pointing at location.
func (h *Heap) NewUpvalue(location *Value) *ObjUpvalue {
	uv := &ObjUpvalue{
		ObjHeader: ObjHeader{Type: ObjTypeUpvalue},
		Location:  location,
	}
	h.Track(uv)
	return uv
}

// NewNative allocates and tracks a new native function object.
func (h *Heap) NewNative(name string, arity int, fn NativeFn) *ObjNative {
	nat := &ObjNative{
		ObjHeader: ObjHeader{Type: ObjTypeNative},
		Name:      name,
		Arity:     arity,
		Fn:        fn,
	}
	h.Track(nat)
	return nat
}

// Intern returns the canonical *ObjString for s, allocating and tracking a
// new one on first sight. Equal content always yields the same reference.
func (h *Heap) Intern(s string) *ObjString {
	hash := FNV1A(s)
	if existing := h.strings.Find(s, hash); existing != nil {
		return existing
	}
	str := &ObjString{
		ObjHeader: ObjHeader{Type: ObjTypeString},
		Chars:     s,
		Hash:      hash,
	}
	h.Track(str)
	h.strings.Insert(str)
	return str
}

// NewString interns s and wraps the result in a Value, the usual way
// script-visible string constants and results enter the value model.
func (h *Heap) NewString(s string) Value {
	return NewObj(h.Intern(s))
}
