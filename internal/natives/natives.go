// Package natives installs the domain-stack host functions into a VM:
// small native functions backed by real third-party libraries rather
// than language built-ins, following the reference interpreter's own
// DefineNative seam.
package natives

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"noxy-vm/internal/value"
	"noxy-vm/internal/vm"
)

var errExpected3 = errors.New("expected at least 3 arguments.")

// Registry owns the host-side resources (open sqlite handles, the lazily
// constructed DynamoDB client) that domain natives need across calls.
type Registry struct {
	heap *value.Heap

	stores     map[int]*storeHandle
	nextHandle int

	ddb *dynamodb.Client
}

// Install registers every domain-stack native on machine, using heap to
// allocate any string results. The returned Registry must be closed (via
// Close) when the VM is done, to release any open store handles.
func Install(machine *vm.VM, heap *value.Heap) *Registry {
	r := &Registry{heap: heap, stores: make(map[int]*storeHandle)}

	machine.DefineNative("clock", -1, r.clock)
	machine.DefineNative("uuid", -1, r.uuidFn)
	machine.DefineNative("humanize_bytes", -1, r.humanizeBytes)
	machine.DefineNative("humanize_int", -1, r.humanizeInt)
	machine.DefineNative("is_tty", -1, r.isTTY)

	machine.DefineNative("store_open", -1, r.storeOpen)
	machine.DefineNative("store_set", -1, r.storeSet)
	machine.DefineNative("store_get", -1, r.storeGet)
	machine.DefineNative("store_close", -1, r.storeClose)

	machine.DefineNative("cloud_put", -1, r.cloudPut)
	machine.DefineNative("cloud_get", -1, r.cloudGet)

	return r
}

// Close releases every store handle still open. Scripts that forget
// store_close don't leak past process exit.
func (r *Registry) Close() {
	for id, h := range r.stores {
		h.db.Close()
		delete(r.stores, id)
	}
}

func argString(args []value.Value, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("expected at least %d arguments.", i+1)
	}
	if !args[i].IsString() {
		return "", fmt.Errorf("argument %d must be a string.", i+1)
	}
	return args[i].Obj.(*value.ObjString).Chars, nil
}

func argNumber(args []value.Value, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("expected at least %d arguments.", i+1)
	}
	if !args[i].IsNumber() {
		return 0, fmt.Errorf("argument %d must be a number.", i+1)
	}
	return args[i].Number, nil
}

// clock returns the current Unix time in fractional seconds, grounded in
// the reference interpreter's time_now_ms/time_now natives.
func (r *Registry) clock(args []value.Value) (value.Value, error) {
	return value.NewNumber(float64(time.Now().UnixNano()) / 1e9), nil
}

func (r *Registry) uuidFn(args []value.Value) (value.Value, error) {
	return r.heap.NewString(uuid.NewString()), nil
}

func (r *Registry) humanizeBytes(args []value.Value) (value.Value, error) {
	n, err := argNumber(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	return r.heap.NewString(humanize.Bytes(uint64(n))), nil
}

func (r *Registry) humanizeInt(args []value.Value) (value.Value, error) {
	n, err := argNumber(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	return r.heap.NewString(humanize.Comma(int64(n))), nil
}

// isTTY reports whether the interpreter's stdout is attached to a
// terminal, using the same go-isatty check the CLI applies to stdin for
// its REPL prompt.
func (r *Registry) isTTY(args []value.Value) (value.Value, error) {
	return value.NewBool(isatty.IsTerminal(os.Stdout.Fd())), nil
}
