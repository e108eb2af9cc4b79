package diffengine

import (
	"reflect"
	"testing"
)

func checkPartition(t *testing.T, ops []ChangeOp, oldLen, newLen int) {
	t.Helper()
	oldPos, newPos := 0, 0
	for i, op := range ops {
		if op.OldStart != oldPos || op.NewStart != newPos {
			t.Errorf("op %d starts at (%d,%d), want (%d,%d)", i, op.OldStart, op.NewStart, oldPos, newPos)
		}
		if op.OldEnd < op.OldStart || op.NewEnd < op.NewStart {
			t.Errorf("op %d has inverted range: %+v", i, op)
		}
		oldPos, newPos = op.OldEnd, op.NewEnd
	}
	if oldPos != oldLen || newPos != newLen {
		t.Errorf("ops end at (%d,%d), want (%d,%d)", oldPos, newPos, oldLen, newLen)
	}
}

func TestDiffIdentical(t *testing.T) {
	a := []string{"alpha", "beta", "gamma"}
	ops := DiffTexts(a, a)

	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d: %+v", len(ops), ops)
	}
	if ops[0].Kind != OpEqual {
		t.Errorf("expected equal, got %s", ops[0].Kind)
	}
	checkPartition(t, ops, 3, 3)
}

func TestDiffEmptyInputs(t *testing.T) {
	if ops := DiffTexts(nil, nil); ops != nil {
		t.Errorf("expected no ops for two empty inputs, got %+v", ops)
	}

	ops := DiffTexts(nil, []string{"a", "b"})
	if len(ops) != 1 || ops[0].Kind != OpInsert || ops[0].NewLen() != 2 {
		t.Errorf("expected single insert covering new, got %+v", ops)
	}

	ops = DiffTexts([]string{"a", "b"}, nil)
	if len(ops) != 1 || ops[0].Kind != OpDelete || ops[0].OldLen() != 2 {
		t.Errorf("expected single delete covering old, got %+v", ops)
	}
}

func TestDiffInsertMiddle(t *testing.T) {
	old := []string{"a", "b", "c"}
	updated := []string{"a", "x", "b", "c"}

	ops := DiffTexts(old, updated)
	checkPartition(t, ops, 3, 4)

	want := []ChangeOp{
		{Kind: OpEqual, OldStart: 0, OldEnd: 1, NewStart: 0, NewEnd: 1},
		{Kind: OpInsert, OldStart: 1, OldEnd: 1, NewStart: 1, NewEnd: 2},
		{Kind: OpEqual, OldStart: 1, OldEnd: 3, NewStart: 2, NewEnd: 4},
	}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("ops = %+v, want %+v", ops, want)
	}
}

func TestDiffReplace(t *testing.T) {
	old := []string{"a", "b", "c", "d"}
	updated := []string{"a", "x", "y", "d"}

	ops := DiffTexts(old, updated)
	checkPartition(t, ops, 4, 4)

	var replaces int
	for _, op := range ops {
		if op.Kind == OpReplace {
			replaces++
			if op.OldLen() != 2 || op.NewLen() != 2 {
				t.Errorf("replace covers (%d,%d) paragraphs, want (2,2)", op.OldLen(), op.NewLen())
			}
		}
	}
	if replaces != 1 {
		t.Errorf("expected 1 replace, got %d", replaces)
	}
}

func TestDiffDeleteAtEnd(t *testing.T) {
	ops := DiffTexts([]string{"a", "b", "c"}, []string{"a"})
	checkPartition(t, ops, 3, 1)

	last := ops[len(ops)-1]
	if last.Kind != OpDelete || last.OldLen() != 2 {
		t.Errorf("expected trailing delete of 2 paragraphs, got %+v", last)
	}
}

func TestDiffMergesEqualRuns(t *testing.T) {
	old := []string{"a", "b", "c", "d", "e"}
	updated := []string{"a", "b", "c", "d", "e", "f"}

	ops := DiffTexts(old, updated)
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops (one equal run, one insert), got %+v", ops)
	}
	if ops[0].Kind != OpEqual || ops[0].OldLen() != 5 {
		t.Errorf("expected one merged equal op over 5 paragraphs, got %+v", ops[0])
	}
}

func TestDiffDeterministic(t *testing.T) {
	old := []string{"a", "b", "a", "c", "b"}
	updated := []string{"b", "a", "c", "a", "b"}

	first := DiffTexts(old, updated)
	checkPartition(t, first, 5, 5)
	for i := 0; i < 10; i++ {
		again := DiffTexts(old, updated)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestSummarize(t *testing.T) {
	ops := DiffTexts([]string{"a", "b", "c"}, []string{"a", "x", "c", "d"})
	s := Summarize(ops)

	if s.Unchanged != 2 {
		t.Errorf("unchanged = %d, want 2", s.Unchanged)
	}
	if s.Added != 2 || s.Removed != 1 {
		t.Errorf("added/removed = %d/%d, want 2/1", s.Added, s.Removed)
	}
	if s.TotalOps != len(ops) {
		t.Errorf("total ops = %d, want %d", s.TotalOps, len(ops))
	}
}

func TestChanged(t *testing.T) {
	ops := DiffTexts([]string{"a", "b"}, []string{"a", "x"})
	changed := Changed(ops)
	for _, op := range changed {
		if op.Kind == OpEqual {
			t.Errorf("Changed returned an equal op: %+v", op)
		}
	}
	if len(changed) != 1 {
		t.Errorf("expected 1 changed op, got %d", len(changed))
	}
}
