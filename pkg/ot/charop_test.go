package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharOpApply(t *testing.T) {
	op := NewCharOp().Retain(5).Delete(1).Insert(" world").Retain(0)
	out, err := op.Apply("hello!")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestCharOpApplyLengthMismatch(t *testing.T) {
	op := NewCharOp().Retain(3)
	_, err := op.Apply("hi")
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestCharOpCoalescing(t *testing.T) {
	op := NewCharOp().Retain(2).Retain(3).Insert("a").Insert("b").Delete(1).Delete(1)
	require.Len(t, op.Ops(), 3)
	assert.Equal(t, 5, op.Ops()[0].len)
	assert.Equal(t, "ab", op.Ops()[1].text)
	assert.Equal(t, 2, op.Ops()[2].len)
}

func TestCharOpComposeConvergesWithApply(t *testing.T) {
	s := "hello world"
	a := NewCharOp().Retain(5).Delete(1).Insert("_").Retain(5)
	b := NewCharOp().Retain(11).Insert("!")

	viaApply, err := a.Apply(s)
	require.NoError(t, err)
	viaApply, err = b.Apply(viaApply)
	require.NoError(t, err)

	composed, err := a.Compose(b)
	require.NoError(t, err)
	viaCompose, err := composed.Apply(s)
	require.NoError(t, err)

	assert.Equal(t, viaApply, viaCompose)
}

func TestCharOpTransformConvergence(t *testing.T) {
	s := "こんにちは 世界"
	a := NewCharOp().Retain(len("こんにちは")).Insert("!").Retain(len(" 世界"))
	b := NewCharOp().Retain(0).Delete(len("こんにちは")).Retain(len(" 世界"))

	aPrime, bPrime, err := a.Transform(b)
	require.NoError(t, err)

	composedAB, err := a.Compose(bPrime)
	require.NoError(t, err)
	left, err := composedAB.Apply(s)
	require.NoError(t, err)

	composedBA, err := b.Compose(aPrime)
	require.NoError(t, err)
	right, err := composedBA.Apply(s)
	require.NoError(t, err)

	assert.Equal(t, left, right)
}

func TestCharOpTransformInsertInsertLeftWins(t *testing.T) {
	s := "ab"
	a := NewCharOp().Retain(1).Insert("X").Retain(1)
	b := NewCharOp().Retain(1).Insert("Y").Retain(1)

	aPrime, bPrime, err := a.Transform(b)
	require.NoError(t, err)

	composedAB, err := a.Compose(bPrime)
	require.NoError(t, err)
	left, err := composedAB.Apply(s)
	require.NoError(t, err)

	composedBA, err := b.Compose(aPrime)
	require.NoError(t, err)
	right, err := composedBA.Apply(s)
	require.NoError(t, err)

	assert.Equal(t, left, right)
	assert.Equal(t, "aXYb", left)
}

// TestCharOpTransformS3Literal is spec scenario S3, using its exact
// literals: both sides rebased against "こんにちは 世界" must converge on
// "!さようなら 社会" regardless of which side's half is composed first.
func TestCharOpTransformS3Literal(t *testing.T) {
	s := "こんにちは 世界"

	left := NewCharOp().
		Retain(15).
		Insert("!").
		Retain(1).
		Delete(6).
		Insert("社会")

	right := NewCharOp().
		Delete(15).
		Insert("さようなら").
		Retain(7)

	leftPrime, rightPrime, err := left.Transform(right)
	require.NoError(t, err)

	composedLeft, err := left.Compose(rightPrime)
	require.NoError(t, err)
	outLeft, err := composedLeft.Apply(s)
	require.NoError(t, err)

	composedRight, err := right.Compose(leftPrime)
	require.NoError(t, err)
	outRight, err := composedRight.Apply(s)
	require.NoError(t, err)

	assert.Equal(t, outLeft, outRight)
	assert.Equal(t, "!さようなら 社会", outLeft)
}

func TestCharOpNop(t *testing.T) {
	op := CharOpNop("hello")
	out, err := op.Apply("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}
