package selop

import (
	"fmt"

	"github.com/shiv248/quillpad/pkg/ot"
)

// Position identifies a spot in a line-wise document: a row and a byte
// column within that row.
type Position struct {
	Row, Col int
}

// LineSelectionKind discriminates LineSelection's two variants.
type LineSelectionKind int

const (
	LineCursor LineSelectionKind = iota
	LineRange
)

// LineSelection is either a single cursor position or a range, both
// expressed as row/column pairs into the companion LineOp's target lines.
type LineSelection struct {
	Kind  LineSelectionKind
	Start Position // cursor position, or range start
	End   Position // range end; unused for Cursor
}

func NewLineCursor(pos Position) LineSelection {
	return LineSelection{Kind: LineCursor, Start: pos}
}

func NewLineRange(start, end Position) LineSelection {
	return LineSelection{Kind: LineRange, Start: start, End: end}
}

// transformLinePosition rebases pos through op, recursing into the nested
// CharOp when a Modify primitive lands on pos's row. Like transformCharIndex,
// remaining (lines of source still preceding pos.Row) and newRow (the
// accumulating output row) are tracked separately so a primitive occurring
// after pos's row can never shift it.
func transformLinePosition(pos Position, op *ot.LineOp) Position {
	remaining := pos.Row
	newRow := pos.Row
	col := pos.Col
	for _, p := range op.Ops() {
		switch p.Kind() {
		case ot.LineOpRetain:
			remaining -= p.Len()
		case ot.LineOpInsert:
			newRow++
		case ot.LineOpModify:
			if remaining == 0 {
				col = transformCharIndex(col, p.Modify())
			}
			remaining--
		case ot.LineOpDelete:
			d := p.Len()
			if remaining < d {
				if remaining > 0 {
					newRow -= remaining
				}
				col = 0
			} else {
				newRow -= d
			}
			remaining -= d
		}
		if remaining < 0 {
			break
		}
	}
	if newRow < 0 {
		newRow = 0
	}
	return Position{Row: newRow, Col: col}
}

// TransformLineSelection rebases sel through op. Like its char-wise
// sibling, a Range that collapses to a single point is dropped.
func TransformLineSelection(sel LineSelection, op *ot.LineOp) (LineSelection, bool) {
	switch sel.Kind {
	case LineCursor:
		sel.Start = transformLinePosition(sel.Start, op)
		return sel, true
	case LineRange:
		sel.Start = transformLinePosition(sel.Start, op)
		sel.End = transformLinePosition(sel.End, op)
		if sel.Start == sel.End {
			return LineSelection{}, false
		}
		return sel, true
	default:
		return LineSelection{}, false
	}
}

func transformLineSelections(sels []LineSelection, op *ot.LineOp) []LineSelection {
	out := make([]LineSelection, 0, len(sels))
	for _, s := range sels {
		if t, ok := TransformLineSelection(s, op); ok {
			out = append(out, t)
		}
	}
	return out
}

// LineSelTarget is the content a LineSelOp applies to: the underlying
// lines plus, per user, their current selections.
type LineSelTarget[UserID comparable] struct {
	Base       []string
	Selections map[UserID][]LineSelection
}

type lineSelKind int

const (
	lineSelNop lineSelKind = iota
	lineSelOp
)

// LineSelOp is either Nop or Op(selections-by-user, base) — the per-user
// keyed instantiation of C3 over LineOp.
type LineSelOp[UserID comparable] struct {
	kind       lineSelKind
	selections map[UserID][]LineSelection
	base       *ot.LineOp
}

func LineSelOpNop[UserID comparable](target LineSelTarget[UserID]) *LineSelOp[UserID] {
	return &LineSelOp[UserID]{kind: lineSelNop}
}

// NewLineSelOp wraps a base LineOp together with the per-user selections
// that should replace the target's current selections once applied.
func NewLineSelOp[UserID comparable](selections map[UserID][]LineSelection, base *ot.LineOp) *LineSelOp[UserID] {
	return &LineSelOp[UserID]{kind: lineSelOp, selections: selections, base: base}
}

func (op *LineSelOp[UserID]) SourceLen() int {
	if op.kind == lineSelNop {
		return 0
	}
	return op.base.SourceLen()
}

func (op *LineSelOp[UserID]) TargetLen() int {
	if op.kind == lineSelNop {
		return 0
	}
	return op.base.TargetLen()
}

func (op *LineSelOp[UserID]) Base() *ot.LineOp { return op.base }

func (op *LineSelOp[UserID]) Selections() map[UserID][]LineSelection { return op.selections }

func (op *LineSelOp[UserID]) Apply(target LineSelTarget[UserID]) (LineSelTarget[UserID], error) {
	if op.kind == lineSelNop {
		return target, nil
	}
	base, err := op.base.Apply(target.Base)
	if err != nil {
		return LineSelTarget[UserID]{}, err
	}
	return LineSelTarget[UserID]{Base: base, Selections: op.selections}, nil
}

func (op *LineSelOp[UserID]) Compose(other *LineSelOp[UserID]) (*LineSelOp[UserID], error) {
	switch {
	case op.kind == lineSelNop:
		return other, nil
	case other.kind == lineSelNop:
		return op, nil
	default:
		composed, err := op.base.Compose(other.base)
		if err != nil {
			return nil, err
		}
		return NewLineSelOp(other.selections, composed), nil
	}
}

// Transform rebases op and other. Tie-break on identical user keys: right
// (the argument) wins — other's rebased entries are inserted last and
// overwrite the receiver's on a colliding key. See DESIGN.md.
func (op *LineSelOp[UserID]) Transform(other *LineSelOp[UserID]) (*LineSelOp[UserID], *LineSelOp[UserID], error) {
	switch {
	case op.kind == lineSelNop:
		return op, other, nil
	case other.kind == lineSelNop:
		return op, other, nil
	default:
		leftBase, rightBase, err := op.base.Transform(other.base)
		if err != nil {
			return nil, nil, err
		}

		merged := make(map[UserID][]LineSelection, len(op.selections)+len(other.selections))
		for id, sels := range op.selections {
			merged[id] = transformLineSelections(sels, rightBase)
		}
		for id, sels := range other.selections {
			merged[id] = transformLineSelections(sels, leftBase)
		}

		leftCopy := make(map[UserID][]LineSelection, len(merged))
		rightCopy := make(map[UserID][]LineSelection, len(merged))
		for id, sels := range merged {
			leftCopy[id] = sels
			rightCopy[id] = sels
		}

		return NewLineSelOp(leftCopy, leftBase), NewLineSelOp(rightCopy, rightBase), nil
	}
}

func (op *LineSelOp[UserID]) String() string {
	if op.kind == lineSelNop {
		return "LineSelOp(Nop)"
	}
	return fmt.Sprintf("LineSelOp(selections=%v, base=%v)", op.selections, op.base.Ops())
}
