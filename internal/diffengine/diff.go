// Package diffengine computes paragraph-level edit scripts between two
// document versions. Alignment is by exact normalized-text equality; the
// output is a sequence of ops whose ranges partition both inputs exactly.
package diffengine

import "github.com/regdelta/regdelta/internal/document"

// OpKind classifies a change operation.
type OpKind string

const (
	OpEqual   OpKind = "equal"
	OpInsert  OpKind = "insert"
	OpDelete  OpKind = "delete"
	OpReplace OpKind = "replace"
)

// ChangeOp covers a half-open range of the old and new paragraph
// sequences. Consecutive ops are contiguous and together cover both
// sequences exactly once.
type ChangeOp struct {
	Kind     OpKind `json:"kind"`
	OldStart int    `json:"old_start"`
	OldEnd   int    `json:"old_end"`
	NewStart int    `json:"new_start"`
	NewEnd   int    `json:"new_end"`
}

// OldLen returns the number of old-side paragraphs covered by the op.
func (op ChangeOp) OldLen() int { return op.OldEnd - op.OldStart }

// NewLen returns the number of new-side paragraphs covered by the op.
func (op ChangeOp) NewLen() int { return op.NewEnd - op.NewStart }

// Summary aggregates op counts for audit payloads.
type Summary struct {
	TotalOps  int `json:"total_ops"`
	Equal     int `json:"equal"`
	Inserts   int `json:"inserts"`
	Deletes   int `json:"deletes"`
	Replaces  int `json:"replaces"`
	Added     int `json:"paragraphs_added"`
	Removed   int `json:"paragraphs_removed"`
	Unchanged int `json:"paragraphs_unchanged"`
}

// Diff aligns two paragraph sequences and emits the change ops. Maximal
// runs of matching paragraphs become one equal op; a changed run becomes
// replace when both sides are non-empty, otherwise insert or delete.
// Deterministic: identical inputs always yield identical op sequences.
func Diff(oldParas, newParas []document.Paragraph) []ChangeOp {
	a := texts(oldParas)
	b := texts(newParas)
	return DiffTexts(a, b)
}

// DiffTexts is Diff over pre-normalized strings.
func DiffTexts(a, b []string) []ChangeOp {
	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return nil
	}
	if n == 0 {
		return []ChangeOp{{Kind: OpInsert, OldStart: 0, OldEnd: 0, NewStart: 0, NewEnd: m}}
	}
	if m == 0 {
		return []ChangeOp{{Kind: OpDelete, OldStart: 0, OldEnd: n, NewStart: 0, NewEnd: 0}}
	}

	matches := lcsMatches(a, b)

	// Walk the match list, emitting a change op for each gap and an equal
	// op for each maximal run of matches.
	var ops []ChangeOp
	ai, bi := 0, 0
	emitGap := func(aEnd, bEnd int) {
		if ai == aEnd && bi == bEnd {
			return
		}
		kind := OpReplace
		switch {
		case ai == aEnd:
			kind = OpInsert
		case bi == bEnd:
			kind = OpDelete
		}
		ops = append(ops, ChangeOp{Kind: kind, OldStart: ai, OldEnd: aEnd, NewStart: bi, NewEnd: bEnd})
		ai, bi = aEnd, bEnd
	}

	for i := 0; i < len(matches); {
		ma, mb := matches[i].a, matches[i].b
		emitGap(ma, mb)

		// Extend the equal run across consecutive matches.
		j := i
		for j+1 < len(matches) && matches[j+1].a == matches[j].a+1 && matches[j+1].b == matches[j].b+1 {
			j++
		}
		ops = append(ops, ChangeOp{
			Kind:     OpEqual,
			OldStart: ma, OldEnd: matches[j].a + 1,
			NewStart: mb, NewEnd: matches[j].b + 1,
		})
		ai, bi = matches[j].a+1, matches[j].b+1
		i = j + 1
	}
	emitGap(n, m)
	return ops
}

// Changed filters out equal ops, leaving only the ranges extraction needs
// to revisit.
func Changed(ops []ChangeOp) []ChangeOp {
	var out []ChangeOp
	for _, op := range ops {
		if op.Kind != OpEqual {
			out = append(out, op)
		}
	}
	return out
}

// Summarize tallies op and paragraph counts.
func Summarize(ops []ChangeOp) Summary {
	var s Summary
	s.TotalOps = len(ops)
	for _, op := range ops {
		switch op.Kind {
		case OpEqual:
			s.Equal++
			s.Unchanged += op.OldLen()
		case OpInsert:
			s.Inserts++
			s.Added += op.NewLen()
		case OpDelete:
			s.Deletes++
			s.Removed += op.OldLen()
		case OpReplace:
			s.Replaces++
			s.Added += op.NewLen()
			s.Removed += op.OldLen()
		}
	}
	return s
}

type match struct{ a, b int }

// lcsMatches returns the index pairs of a longest common subsequence of
// a and b, in ascending order. Standard dynamic-programming LCS; the
// backtrack prefers advancing the old side on ties, which keeps the result
// a pure function of the inputs.
func lcsMatches(a, b []string) []match {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var out []match
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			out = append(out, match{i, j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return out
}

func texts(paras []document.Paragraph) []string {
	out := make([]string, len(paras))
	for i, p := range paras {
		out[i] = p.NormalizedText
	}
	return out
}
