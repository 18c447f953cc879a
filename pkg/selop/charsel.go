// Package selop implements C3, the selection-aware operation wrapper: two
// parallel instantiations of "base operation plus the author's selection"
// over CharOp (an unkeyed list of selections) and LineOp (a per-user keyed
// map of selections).
package selop

import (
	"fmt"

	"github.com/shiv248/quillpad/pkg/ot"
)

// CharSelectionKind discriminates CharSelection's two variants.
type CharSelectionKind int

const (
	CharCursor CharSelectionKind = iota
	CharRange
)

// CharSelection is either a single cursor position or a range, both as
// byte offsets into the companion CharOp's target string.
type CharSelection struct {
	Kind  CharSelectionKind
	Start int // cursor position, or range start
	End   int // range end; unused for Cursor
}

// NewCharCursor builds a cursor selection at pos.
func NewCharCursor(pos int) CharSelection {
	return CharSelection{Kind: CharCursor, Start: pos}
}

// NewCharRange builds a range selection from start to end.
func NewCharRange(start, end int) CharSelection {
	return CharSelection{Kind: CharRange, Start: start, End: end}
}

// transformCharIndex rebases a single byte offset through op. remaining
// tracks how many source bytes still precede the offset being rebased
// (only Retain/Delete, which consume source bytes, advance it); newValue
// accumulates the actual output-side shift (only Insert/Delete touch it).
// Keeping the two separate avoids conflating "bytes of source consumed so
// far" with "the position being computed", which otherwise lets a
// primitive that lands after the rebased offset incorrectly shift it —
// e.g. an Insert/Delete occurring once remaining has gone negative must
// be ignored, which a single merged cursor cannot express once it has
// itself been nudged by an earlier Insert.
func transformCharIndex(value int, op *ot.CharOp) int {
	remaining := value
	newValue := value
	for _, p := range op.Ops() {
		switch p.Kind() {
		case ot.CharOpRetain:
			remaining -= p.Len()
		case ot.CharOpInsert:
			newValue += len(p.Text())
		case ot.CharOpDelete:
			d := p.Len()
			if remaining < d {
				if remaining > 0 {
					newValue -= remaining
				}
			} else {
				newValue -= d
			}
			remaining -= d
		}
		if remaining < 0 {
			break
		}
	}
	if newValue < 0 {
		return 0
	}
	return newValue
}

// TransformCharSelection rebases sel through op. A Range that collapses to
// a single point after rebasing is dropped (returns ok=false) — this is a
// deliberate, documented quirk carried from the algebra this is grounded
// on, not a bug: a selection that has been edited down to nothing no
// longer identifies a meaningful span.
func TransformCharSelection(sel CharSelection, op *ot.CharOp) (CharSelection, bool) {
	switch sel.Kind {
	case CharCursor:
		sel.Start = transformCharIndex(sel.Start, op)
		return sel, true
	case CharRange:
		sel.Start = transformCharIndex(sel.Start, op)
		sel.End = transformCharIndex(sel.End, op)
		if sel.Start == sel.End {
			return CharSelection{}, false
		}
		return sel, true
	default:
		return CharSelection{}, false
	}
}

func transformCharSelections(sels []CharSelection, op *ot.CharOp) []CharSelection {
	out := make([]CharSelection, 0, len(sels))
	for _, s := range sels {
		if t, ok := TransformCharSelection(s, op); ok {
			out = append(out, t)
		}
	}
	return out
}

// CharSelTarget is the content a CharSelOp applies to: the underlying
// string plus the current (unkeyed) list of selections.
type CharSelTarget struct {
	Base       string
	Selections []CharSelection
}

// charSelKind discriminates CharSelOp's two variants.
type charSelKind int

const (
	charSelNop charSelKind = iota
	charSelOp
)

// CharSelOp is either Nop or Op(selections, base): the binary form
// (see the Open Question this resolves) rather than the four-variant
// Select/Operate/Both/Nop form.
type CharSelOp struct {
	kind       charSelKind
	selections []CharSelection
	base       *ot.CharOp
}

// CharSelOpNop is the identity operation over target.
func CharSelOpNop(target CharSelTarget) *CharSelOp {
	return &CharSelOp{kind: charSelNop}
}

// NewCharSelOp wraps a base CharOp together with the selections that
// should replace the target's current selections once applied.
func NewCharSelOp(selections []CharSelection, base *ot.CharOp) *CharSelOp {
	return &CharSelOp{kind: charSelOp, selections: selections, base: base}
}

// NewCharSelectOp carries a pure selection update: no text edit, selections
// simply replace the target's current ones.
func NewCharSelectOp(target CharSelTarget, selections []CharSelection) *CharSelOp {
	nop := ot.CharOpNop(target.Base)
	return NewCharSelOp(selections, nop)
}

func (op *CharSelOp) SourceLen() int {
	if op.kind == charSelNop {
		return 0
	}
	return op.base.SourceLen()
}

func (op *CharSelOp) TargetLen() int {
	if op.kind == charSelNop {
		return 0
	}
	return op.base.TargetLen()
}

// Base exposes the wrapped CharOp, or nil for Nop.
func (op *CharSelOp) Base() *ot.CharOp { return op.base }

// Selections exposes the selections this operation installs, or nil for Nop.
func (op *CharSelOp) Selections() []CharSelection { return op.selections }

// Apply runs op against target.
func (op *CharSelOp) Apply(target CharSelTarget) (CharSelTarget, error) {
	if op.kind == charSelNop {
		return target, nil
	}
	base, err := op.base.Apply(target.Base)
	if err != nil {
		return CharSelTarget{}, err
	}
	return CharSelTarget{Base: base, Selections: op.selections}, nil
}

// Compose merges op (applied first) with other (applied second).
func (op *CharSelOp) Compose(other *CharSelOp) (*CharSelOp, error) {
	switch {
	case op.kind == charSelNop:
		return other, nil
	case other.kind == charSelNop:
		return op, nil
	default:
		composed, err := op.base.Compose(other.base)
		if err != nil {
			return nil, err
		}
		return NewCharSelOp(other.selections, composed), nil
	}
}

// Transform rebases op and other, both derived from the same source. Per
// spec.md §4.3, the returned pair shares one selection list: the union of
// both sides' selections, each rebased through the *other* side's
// transformed base op. Installing different selection sets on the two
// returned ops would let compose(op, other').Apply and compose(other,
// op').Apply converge on the base text but diverge on selection state —
// see DESIGN.md.
func (op *CharSelOp) Transform(other *CharSelOp) (*CharSelOp, *CharSelOp, error) {
	switch {
	case op.kind == charSelNop:
		return op, other, nil
	case other.kind == charSelNop:
		return op, other, nil
	default:
		leftBase, rightBase, err := op.base.Transform(other.base)
		if err != nil {
			return nil, nil, err
		}

		merged := make([]CharSelection, 0, len(op.selections)+len(other.selections))
		merged = append(merged, transformCharSelections(other.selections, leftBase)...)
		merged = append(merged, transformCharSelections(op.selections, rightBase)...)

		leftCopy := append([]CharSelection(nil), merged...)
		rightCopy := append([]CharSelection(nil), merged...)

		return NewCharSelOp(leftCopy, leftBase), NewCharSelOp(rightCopy, rightBase), nil
	}
}

func (op *CharSelOp) String() string {
	if op.kind == charSelNop {
		return "CharSelOp(Nop)"
	}
	return fmt.Sprintf("CharSelOp(selections=%v, base=%v)", op.selections, op.base.Ops())
}
