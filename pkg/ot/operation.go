// Package ot implements the two base operational-transformation algebras
// used throughout quillpad: CharOp (byte-indexed) and LineOp (line-indexed,
// nesting CharOp via Modify).
package ot

import "errors"

// ErrLengthMismatch is returned whenever an operation is applied, composed,
// or transformed against a target or sibling operation whose length does
// not match the length the operation expects. Unlike the original source's
// assert!, callers receive a normal Go error: it is still a programmer
// contract violation, but idiomatic Go surfaces that as an error value
// rather than a panic.
var ErrLengthMismatch = errors.New("ot: length mismatch")

// Operation is the shared contract both CharOp and LineOp satisfy, and the
// shape pkg/server and pkg/client are written generically against. Self is
// the concrete operation type (the curiously-recurring generic pattern);
// T is the target content the operation applies to.
type Operation[Self any, T any] interface {
	Apply(target T) (T, error)
	Compose(other Self) (Self, error)
	Transform(other Self) (Self, Self, error)
	SourceLen() int
	TargetLen() int
}
