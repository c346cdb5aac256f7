package diff

// OffsetIndex maps an integer record key to the byte offset of the
// record with that key in the clean document. The diff engine marks
// keys "seen" as it dispatches them and restores every mark before
// returning, success or error (§4.8, §5).
//
// The original implementation reused each offset slot to also carry
// the seen flag, via a sentinel negative encoding. §9 calls that out
// as an internal detail that need not leak; here the seen state is a
// parallel slice instead, so a caller can never observe (or
// accidentally corrupt) the encoding.
type OffsetIndex struct {
	offsets []int64
	seen    []bool
}

// NewOffsetIndex returns an empty index.
func NewOffsetIndex() *OffsetIndex {
	return &OffsetIndex{}
}

// Append records the offset of the next clean-document record,
// assigning it the next consecutive integer key, and returns that key.
func (idx *OffsetIndex) Append(offset int64) int {
	idx.offsets = append(idx.offsets, offset)
	idx.seen = append(idx.seen, false)
	return len(idx.offsets) - 1
}

// Len reports how many keys are indexed.
func (idx *OffsetIndex) Len() int {
	return len(idx.offsets)
}

// Offset returns the byte offset stored at key, and whether key is
// within range.
func (idx *OffsetIndex) Offset(key int) (int64, bool) {
	if key < 0 || key >= len(idx.offsets) {
		return 0, false
	}
	return idx.offsets[key], true
}

// Seen reports whether key has already been dispatched during the
// current Engine.Run call.
func (idx *OffsetIndex) Seen(key int) bool {
	if key < 0 || key >= len(idx.seen) {
		return false
	}
	return idx.seen[key]
}

// MarkSeen marks key as dispatched.
func (idx *OffsetIndex) MarkSeen(key int) {
	if key >= 0 && key < len(idx.seen) {
		idx.seen[key] = true
	}
}

// Unseen returns every key not yet marked, in ascending order - the
// clean records the data document implicitly deleted.
func (idx *OffsetIndex) Unseen() []int {
	var out []int
	for i, s := range idx.seen {
		if !s {
			out = append(out, i)
		}
	}
	return out
}

// Restore clears every seen mark, returning the index to the state it
// held before the current Engine.Run call began.
func (idx *OffsetIndex) Restore() {
	for i := range idx.seen {
		idx.seen[i] = false
	}
}
