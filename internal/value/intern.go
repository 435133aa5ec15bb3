package value

// StringTable is an open-addressed hash table mapping string content to
// its canonical *ObjString, used to intern every string that enters the
// VM so that string equality reduces to pointer identity.
type StringTable struct {
	entries []entry
	count   int // live entries + tombstones
}

type entry struct {
	key   *ObjString // nil key + empty value: unused slot
	tomb  bool       // nil key + tomb=true: tombstone, probe-through
}

const (
	fnvOffsetBasis uint32 = 2166136261
	fnvPrime       uint32 = 16777619
	initialCap              = 8
	maxLoad        float64 = 0.75
)

// FNV1A hashes s with 32-bit FNV-1a, the hash every interned string and
// every lookup key is compared under.
func FNV1A(s string) uint32 {
	h := fnvOffsetBasis
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

func NewStringTable() *StringTable {
	return &StringTable{entries: make([]entry, initialCap)}
}

// Find returns the canonical *ObjString for (s, hash) if already interned,
// else nil. Used before allocating a new ObjString to avoid duplicates.
func (t *StringTable) Find(s string, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if !e.tomb {
				return nil // empty slot: probe sequence ends
			}
			// tombstone: probe through
		} else if e.key.Hash == hash && e.key.Chars == s {
			return e.key
		}
		idx = (idx + 1) & mask
	}
}

// Insert adds str to the table, growing first if the load factor would be
// exceeded. Insertion reuses the first tombstone encountered on its probe.
func (t *StringTable) Insert(str *ObjString) {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow()
	}
	mask := uint32(len(t.entries) - 1)
	idx := str.Hash & mask
	var firstTomb = -1
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if !e.tomb {
				if firstTomb != -1 {
					t.entries[firstTomb] = entry{key: str}
				} else {
					t.count++
					*e = entry{key: str}
				}
				return
			}
			if firstTomb == -1 {
				firstTomb = int(idx)
			}
		} else if e.key == str {
			return // already present
		}
		idx = (idx + 1) & mask
	}
}

// Delete tombstones str's slot if present, per the spec's
// key=null,value=true tombstone convention.
func (t *StringTable) Delete(str *ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	mask := uint32(len(t.entries) - 1)
	idx := str.Hash & mask
	for {
		e := &t.entries[idx]
		if e.key == nil && !e.tomb {
			return false
		}
		if e.key == str {
			*e = entry{tomb: true}
			return true
		}
		idx = (idx + 1) & mask
	}
}

func (t *StringTable) grow() {
	newCap := initialCap
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for _, e := range old {
		if e.key == nil {
			continue
		}
		t.insertNoGrow(e.key)
	}
}

func (t *StringTable) insertNoGrow(str *ObjString) {
	mask := uint32(len(t.entries) - 1)
	idx := str.Hash & mask
	for {
		e := &t.entries[idx]
		if e.key == nil {
			t.count++
			*e = entry{key: str}
			return
		}
		idx = (idx + 1) & mask
	}
}
