package ot

import (
	"encoding/json"
	"fmt"
)

// wirePrimitive is the tagged-object shape each primitive takes on the
// wire, per the protocol's operation encoding: a "kind" discriminator plus
// whichever of value/text/modify applies.
type wirePrimitive struct {
	Kind   string          `json:"kind"`
	Value  int             `json:"value,omitempty"`
	Text   string          `json:"text,omitempty"`
	Modify json.RawMessage `json:"modify,omitempty"`
}

type wireOp struct {
	Ops        []wirePrimitive `json:"ops"`
	SourceLen  int             `json:"source_len"`
	TargetLen  int             `json:"target_len"`
}

// MarshalJSON encodes op as an ordered primitive list plus source/target
// length witnesses, recomputed on Unmarshal as an integrity check.
func (op *CharOp) MarshalJSON() ([]byte, error) {
	w := wireOp{SourceLen: op.sourceLen, TargetLen: op.targetLen}
	for _, p := range op.ops {
		switch p.kind {
		case charRetain:
			w.Ops = append(w.Ops, wirePrimitive{Kind: "retain", Value: p.len})
		case charInsert:
			w.Ops = append(w.Ops, wirePrimitive{Kind: "insert", Text: p.text})
		case charDelete:
			w.Ops = append(w.Ops, wirePrimitive{Kind: "delete", Value: p.len})
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a wire-format CharOp and validates the source/
// target length witnesses against the rebuilt operation.
func (op *CharOp) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	built := NewCharOp()
	for _, p := range w.Ops {
		switch p.Kind {
		case "retain":
			built.Retain(p.Value)
		case "insert":
			built.Insert(p.Text)
		case "delete":
			built.Delete(p.Value)
		default:
			return fmt.Errorf("ot: unknown CharOp primitive kind %q", p.Kind)
		}
	}
	if built.sourceLen != w.SourceLen || built.targetLen != w.TargetLen {
		return fmt.Errorf("ot: CharOp length witness mismatch: got source=%d target=%d, declared source=%d target=%d",
			built.sourceLen, built.targetLen, w.SourceLen, w.TargetLen)
	}
	*op = *built
	return nil
}

// MarshalJSON encodes op as an ordered primitive list, with Modify
// primitives carrying their nested CharOp under "modify".
func (op *LineOp) MarshalJSON() ([]byte, error) {
	w := wireOp{SourceLen: op.sourceLen, TargetLen: op.targetLen}
	for _, p := range op.ops {
		switch p.kind {
		case lineRetain:
			w.Ops = append(w.Ops, wirePrimitive{Kind: "retain", Value: p.len})
		case lineInsert:
			w.Ops = append(w.Ops, wirePrimitive{Kind: "insert", Text: p.line})
		case lineDelete:
			w.Ops = append(w.Ops, wirePrimitive{Kind: "delete", Value: p.len})
		case lineModify:
			raw, err := json.Marshal(p.mod)
			if err != nil {
				return nil, err
			}
			w.Ops = append(w.Ops, wirePrimitive{Kind: "modify", Modify: raw})
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a wire-format LineOp and validates the source/
// target length witnesses.
func (op *LineOp) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	built := NewLineOp()
	for _, p := range w.Ops {
		switch p.Kind {
		case "retain":
			built.Retain(p.Value)
		case "insert":
			built.Insert(p.Text)
		case "delete":
			built.Delete(p.Value)
		case "modify":
			inner := NewCharOp()
			if err := json.Unmarshal(p.Modify, inner); err != nil {
				return err
			}
			built.Modify(inner)
		default:
			return fmt.Errorf("ot: unknown LineOp primitive kind %q", p.Kind)
		}
	}
	if built.sourceLen != w.SourceLen || built.targetLen != w.TargetLen {
		return fmt.Errorf("ot: LineOp length witness mismatch: got source=%d target=%d, declared source=%d target=%d",
			built.sourceLen, built.targetLen, w.SourceLen, w.TargetLen)
	}
	*op = *built
	return nil
}
