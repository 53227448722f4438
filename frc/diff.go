package frc

import "github.com/mxk/litedb"

// ChangeKind classifies one entry of a computed diff (spec §4.9).
type ChangeKind int

const (
	// Insertion is a record present in the new snapshot but not the old.
	Insertion ChangeKind = iota
	// Deletion is a record present in the old snapshot but not the new.
	Deletion
	// Move is an insertion and a deletion that the identity comparator
	// fused because they refer to the same record at a different index.
	Move
	// Update is an insertion and a deletion that the identity comparator
	// fused at the same index, i.e. the row at that position changed.
	Update
)

func (k ChangeKind) String() string {
	switch k {
	case Insertion:
		return "insertion"
	case Deletion:
		return "deletion"
	case Move:
		return "move"
	case Update:
		return "update"
	default:
		return "unknown"
	}
}

// Change is one entry of the event script a Controller delivers to its
// delegate (spec §4.9's "insert/delete/move/update events").
type Change struct {
	Kind ChangeKind

	// NewIndex is the record's position in the new snapshot, valid for
	// Insertion, Move, and Update.
	NewIndex int
	// OldIndex is the record's position in the old snapshot, valid for
	// Deletion, Move, and Update.
	OldIndex int

	// Record is the new row for Insertion/Move/Update, the old row for
	// Deletion.
	Record litedb.Row

	// OldValues holds, for Move and Update only, the prior value of
	// every column whose value changed.
	OldValues map[string]litedb.DatabaseValue
}

// SameRecord reports whether two rows represent the same logical record,
// independent of whether their column values are identical.
// PrimaryKeyIdentity compares primary-key column values and degrades to
// "never equal" when given no columns. A Controller built without
// WithSameRecord uses "never equal", so every update then looks like
// delete+insert (spec §7's open-question guidance).
type SameRecord func(a, b litedb.Row) bool

// PrimaryKeyIdentity builds a SameRecord that compares the named primary
// key columns' values between two rows.
func PrimaryKeyIdentity(pkColumns []string) SameRecord {
	if len(pkColumns) == 0 {
		return func(a, b litedb.Row) bool { return false }
	}
	return func(a, b litedb.Row) bool {
		for _, col := range pkColumns {
			av, aok := a.Value(col)
			bv, bok := b.Value(col)
			if aok != bok || !av.Equal(bv) {
				return false
			}
		}
		return true
	}
}

func rowsEqual(a, b litedb.Row) bool {
	if a.Count() != b.Count() {
		return false
	}
	for _, name := range a.ColumnNames() {
		av, aok := a.Value(name)
		bv, bok := b.Value(name)
		if aok != bok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// editOp is one step of the raw Levenshtein-style edit script, before the
// standardize pass fuses matching insert/delete pairs.
type editOp struct {
	insert bool // true: insertion from new[newIdx]; false: deletion of old[oldIdx]
	oldIdx int
	newIdx int
}

// diffRows computes the minimal insert/delete script turning old into
// new under whole-row equality, using the standard Levenshtein/LCS
// dynamic-programming edit matrix (spec §4.9).
func diffRows(old, new_ []litedb.Row) []editOp {
	m, n := len(old), len(new_)
	// dp[i][j] = length of an LCS of old[i:], new_[j:]
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if rowsEqual(old[i], new_[j]) {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var ops []editOp
	i, j := 0, 0
	for i < m && j < n {
		if rowsEqual(old[i], new_[j]) {
			i++
			j++
			continue
		}
		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, editOp{insert: false, oldIdx: i})
			i++
		} else {
			ops = append(ops, editOp{insert: true, newIdx: j})
			j++
		}
	}
	for ; i < m; i++ {
		ops = append(ops, editOp{insert: false, oldIdx: i})
	}
	for ; j < n; j++ {
		ops = append(ops, editOp{insert: true, newIdx: j})
	}
	return ops
}

// changedColumns returns the columns of newRow whose value differs from
// oldRow's, mapped to oldRow's value.
func changedColumns(oldRow, newRow litedb.Row) map[string]litedb.DatabaseValue {
	out := make(map[string]litedb.DatabaseValue)
	for _, name := range newRow.ColumnNames() {
		nv, _ := newRow.Value(name)
		ov, ok := oldRow.Value(name)
		if !ok || !ov.Equal(nv) {
			out[name] = ov
		}
	}
	return out
}

// standardize implements spec §4.9's fusion pass: scan the raw edit
// script left to right, and whenever an insertion and a deletion refer
// to the same record identity, fuse them into an Update (same index) or
// a Move (different index) carrying the old values of whichever columns
// changed. Updates are emitted after every insert/delete/move, matching
// the delivery order the spec calls for.
func standardize(old, new_ []litedb.Row, ops []editOp, same SameRecord) []Change {
	deletions := make([]editOp, 0)
	insertions := make([]editOp, 0)
	for _, op := range ops {
		if op.insert {
			insertions = append(insertions, op)
		} else {
			deletions = append(deletions, op)
		}
	}

	usedDeletion := make([]bool, len(deletions))
	usedInsertion := make([]bool, len(insertions))

	var fused []Change
	var plainInserts, plainDeletes []Change

	for ii, ins := range insertions {
		matched := -1
		for di, del := range deletions {
			if usedDeletion[di] {
				continue
			}
			if same(old[del.oldIdx], new_[ins.newIdx]) {
				matched = di
				break
			}
		}
		if matched < 0 {
			continue
		}
		usedInsertion[ii] = true
		usedDeletion[matched] = true
		del := deletions[matched]
		kind := Move
		if del.oldIdx == ins.newIdx {
			kind = Update
		}
		fused = append(fused, Change{
			Kind:      kind,
			NewIndex:  ins.newIdx,
			OldIndex:  del.oldIdx,
			Record:    new_[ins.newIdx],
			OldValues: changedColumns(old[del.oldIdx], new_[ins.newIdx]),
		})
	}

	for di, del := range deletions {
		if usedDeletion[di] {
			continue
		}
		plainDeletes = append(plainDeletes, Change{
			Kind:     Deletion,
			OldIndex: del.oldIdx,
			Record:   old[del.oldIdx],
		})
	}
	for ii, ins := range insertions {
		if usedInsertion[ii] {
			continue
		}
		plainInserts = append(plainInserts, Change{
			Kind:     Insertion,
			NewIndex: ins.newIdx,
			Record:   new_[ins.newIdx],
		})
	}

	// Non-update changes first (inserts, deletes, moves), then updates,
	// per spec §4.9 ("Updates are emitted after all inserts/deletes/
	// moves").
	var updates, moves []Change
	for _, c := range fused {
		if c.Kind == Update {
			updates = append(updates, c)
		} else {
			moves = append(moves, c)
		}
	}

	out := make([]Change, 0, len(plainDeletes)+len(plainInserts)+len(moves)+len(updates))
	out = append(out, plainDeletes...)
	out = append(out, plainInserts...)
	out = append(out, moves...)
	out = append(out, updates...)
	return out
}

// Diff computes the full insert/delete/move/update script turning old
// into new, per spec §4.9's diff algorithm.
func Diff(old, new_ []litedb.Row, same SameRecord) []Change {
	ops := diffRows(old, new_)
	return standardize(old, new_, ops, same)
}
