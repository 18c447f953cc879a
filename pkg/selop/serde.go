package selop

import (
	"encoding/json"
	"fmt"

	"github.com/shiv248/quillpad/pkg/ot"
)

// wireCharSelOp is the tagged wire shape for CharSelOp: either the bare
// string "nop", or {"tag":"op","sel":[...],"base":...}.
type wireCharSelOp struct {
	Tag  string          `json:"tag"`
	Sel  []CharSelection `json:"sel"`
	Base *ot.CharOp      `json:"base"`
}

// MarshalJSON encodes op per the protocol's SelOp shape.
func (op *CharSelOp) MarshalJSON() ([]byte, error) {
	if op.kind == charSelNop {
		return json.Marshal("nop")
	}
	return json.Marshal(wireCharSelOp{Tag: "op", Sel: op.selections, Base: op.base})
}

// UnmarshalJSON decodes either the bare "nop" string or a tagged op object.
func (op *CharSelOp) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != "nop" {
			return fmt.Errorf("selop: unknown CharSelOp tag %q", tag)
		}
		*op = CharSelOp{kind: charSelNop}
		return nil
	}

	var w wireCharSelOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Tag != "op" {
		return fmt.Errorf("selop: unknown CharSelOp tag %q", w.Tag)
	}
	*op = CharSelOp{kind: charSelOp, selections: w.Sel, base: w.Base}
	return nil
}

// wireLineSelOp mirrors wireCharSelOp for the per-user keyed instantiation.
type wireLineSelOp[UserID comparable] struct {
	Tag  string                        `json:"tag"`
	Sel  map[UserID][]LineSelection    `json:"sel"`
	Base *ot.LineOp                    `json:"base"`
}

// MarshalJSON encodes op per the protocol's SelOp shape.
func (op *LineSelOp[UserID]) MarshalJSON() ([]byte, error) {
	if op.kind == lineSelNop {
		return json.Marshal("nop")
	}
	return json.Marshal(wireLineSelOp[UserID]{Tag: "op", Sel: op.selections, Base: op.base})
}

// UnmarshalJSON decodes either the bare "nop" string or a tagged op object.
func (op *LineSelOp[UserID]) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != "nop" {
			return fmt.Errorf("selop: unknown LineSelOp tag %q", tag)
		}
		*op = LineSelOp[UserID]{kind: lineSelNop}
		return nil
	}

	var w wireLineSelOp[UserID]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Tag != "op" {
		return fmt.Errorf("selop: unknown LineSelOp tag %q", w.Tag)
	}
	*op = LineSelOp[UserID]{kind: lineSelOp, selections: w.Sel, base: w.Base}
	return nil
}
