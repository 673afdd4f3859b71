package index

// sameKeyEntry holds every row pointer sharing one index key. Spec §4.5
// calls for a representation that stays cheap for the overwhelmingly common
// case of zero or one duplicate, and only pays for a hash set once a key
// accumulates a large number of same-key rows:
//
//   - 0-2 pointers: held inline, no allocation beyond the entry itself.
//   - up to smallSetLimit pointers: a plain slice.
//   - beyond smallSetLimit: promoted to a map for O(1) membership tests.
const smallSetLimit = 512

type sameKeyEntry struct {
	inline0, inline1 uint64
	inlineLen        int // 0, 1, or 2 while small is nil and set is nil

	small []uint64
	set   map[uint64]struct{}
}

func newSameKeyEntry(ptr uint64) *sameKeyEntry {
	return &sameKeyEntry{inline0: ptr, inlineLen: 1}
}

func (e *sameKeyEntry) add(ptr uint64) {
	if e.set != nil {
		e.set[ptr] = struct{}{}
		return
	}
	if e.small != nil {
		if len(e.small) >= smallSetLimit {
			e.promoteToSet()
			e.set[ptr] = struct{}{}
			return
		}
		e.small = append(e.small, ptr)
		return
	}
	switch e.inlineLen {
	case 0:
		e.inline0 = ptr
		e.inlineLen = 1
	case 1:
		e.inline1 = ptr
		e.inlineLen = 2
	default:
		e.small = []uint64{e.inline0, e.inline1, ptr}
		e.inlineLen = 0
	}
}

func (e *sameKeyEntry) promoteToSet() {
	e.set = make(map[uint64]struct{}, len(e.small)*2)
	for _, p := range e.small {
		e.set[p] = struct{}{}
	}
	e.small = nil
}

// remove deletes ptr, returning true if the entry is now empty and should
// be dropped from the B-tree.
func (e *sameKeyEntry) remove(ptr uint64) bool {
	if e.set != nil {
		delete(e.set, ptr)
		return len(e.set) == 0
	}
	if e.small != nil {
		for i, p := range e.small {
			if p == ptr {
				e.small = append(e.small[:i], e.small[i+1:]...)
				break
			}
		}
		return len(e.small) == 0
	}
	switch {
	case e.inlineLen == 2 && e.inline1 == ptr:
		e.inlineLen = 1
	case e.inlineLen == 2 && e.inline0 == ptr:
		e.inline0 = e.inline1
		e.inlineLen = 1
	case e.inlineLen == 1 && e.inline0 == ptr:
		e.inlineLen = 0
	}
	return e.inlineLen == 0
}

func (e *sameKeyEntry) contains(ptr uint64) bool {
	if e.set != nil {
		_, ok := e.set[ptr]
		return ok
	}
	if e.small != nil {
		for _, p := range e.small {
			if p == ptr {
				return true
			}
		}
		return false
	}
	return (e.inlineLen >= 1 && e.inline0 == ptr) || (e.inlineLen == 2 && e.inline1 == ptr)
}

func (e *sameKeyEntry) len() int {
	switch {
	case e.set != nil:
		return len(e.set)
	case e.small != nil:
		return len(e.small)
	default:
		return e.inlineLen
	}
}

// forEach visits every pointer in an unspecified order.
func (e *sameKeyEntry) forEach(fn func(uint64)) {
	switch {
	case e.set != nil:
		for p := range e.set {
			fn(p)
		}
	case e.small != nil:
		for _, p := range e.small {
			fn(p)
		}
	default:
		if e.inlineLen >= 1 {
			fn(e.inline0)
		}
		if e.inlineLen == 2 {
			fn(e.inline1)
		}
	}
}
