package selop

import (
	"testing"

	"github.com/shiv248/quillpad/pkg/ot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformLinePositionShiftsRowPastInsert(t *testing.T) {
	op := ot.NewLineOp().Retain(1).Insert("new").Retain(2)
	pos := transformLinePosition(Position{Row: 1, Col: 0}, op)
	assert.Equal(t, Position{Row: 2, Col: 0}, pos)
}

func TestTransformLinePositionRebasesColumnThroughModify(t *testing.T) {
	inner := ot.NewCharOp().Retain(2).Insert("XY").Retain(3)
	op := ot.NewLineOp().Modify(inner)
	pos := transformLinePosition(Position{Row: 0, Col: 4}, op)
	assert.Equal(t, Position{Row: 0, Col: 6}, pos)
}

func TestTransformLinePositionResetsColumnWhenRowDeleted(t *testing.T) {
	op := ot.NewLineOp().Delete(1).Retain(1)
	pos := transformLinePosition(Position{Row: 0, Col: 3}, op)
	assert.Equal(t, 0, pos.Col)
}

func TestLineSelOpTransformTieBreakRightWins(t *testing.T) {
	base := []string{"line0", "line1"}
	target := LineSelTarget[string]{Base: base, Selections: map[string][]LineSelection{}}

	left := NewLineSelOp(
		map[string][]LineSelection{"u": {NewLineCursor(Position{Row: 0, Col: 0})}},
		ot.NewLineOp().Retain(2),
	)
	right := NewLineSelOp(
		map[string][]LineSelection{"u": {NewLineCursor(Position{Row: 1, Col: 0})}},
		ot.NewLineOp().Retain(2),
	)

	leftPrime, _, err := left.Transform(right)
	require.NoError(t, err)

	_ = target
	assert.Equal(t, []LineSelection{NewLineCursor(Position{Row: 1, Col: 0})}, leftPrime.Selections()["u"])
}

func TestLineSelOpApplyReplacesSelections(t *testing.T) {
	target := LineSelTarget[int]{Base: []string{"a", "b"}, Selections: map[int][]LineSelection{}}
	op := NewLineSelOp(map[int][]LineSelection{1: {NewLineCursor(Position{Row: 0, Col: 0})}}, ot.LineOpNop(target.Base))

	out, err := op.Apply(target)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Base)
	assert.Contains(t, out.Selections, 1)
}
