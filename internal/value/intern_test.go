package value

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringTableFindMissing(t *testing.T) {
	tbl := NewStringTable()
	require.Nil(t, tbl.Find("missing", FNV1A("missing")))
}

func TestStringTableInsertAndFind(t *testing.T) {
	tbl := NewStringTable()
	s := &ObjString{Chars: "hi", Hash: FNV1A("hi")}
	tbl.Insert(s)
	assert.Same(t, s, tbl.Find("hi", s.Hash))
}

func TestStringTableGrowsUnderLoad(t *testing.T) {
	tbl := NewStringTable()
	for i := 0; i < 100; i++ {
		str := fmt.Sprintf("key-%d", i)
		tbl.Insert(&ObjString{Chars: str, Hash: FNV1A(str)})
	}
	for i := 0; i < 100; i++ {
		str := fmt.Sprintf("key-%d", i)
		require.NotNil(t, tbl.Find(str, FNV1A(str)), "key-%d should be found", i)
	}
}

func TestStringTableInsertAfterDelete(t *testing.T) {
	tbl := NewStringTable()
	a := &ObjString{Chars: "a", Hash: FNV1A("a")}
	tbl.Insert(a)
	require.True(t, tbl.Delete(a))
	require.Nil(t, tbl.Find("a", a.Hash))

	b := &ObjString{Chars: "b", Hash: FNV1A("b")}
	tbl.Insert(b)
	assert.Same(t, b, tbl.Find("b", b.Hash))
}
