package ot

import (
	"fmt"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/graphemes"
)

// ValidateUTF8Boundaries reports an error if any Retain/Delete primitive in
// op would split a multi-byte UTF-8 codepoint in target. This is the cheap
// check: it costs one scan of target's rune boundaries and is what
// pkg/room runs on every incoming edit.
func ValidateUTF8Boundaries(target string, op *CharOp) error {
	boundaries := make(map[int]bool, len(target)+1)
	for i := range target {
		boundaries[i] = true
	}
	boundaries[len(target)] = true

	idx := 0
	for _, p := range op.Ops() {
		switch p.kind {
		case charRetain:
			if !boundaries[idx] || !boundaries[idx+p.len] {
				return fmt.Errorf("ot: retain at byte %d (len %d) splits a UTF-8 codepoint", idx, p.len)
			}
			idx += p.len
		case charInsert:
			if !utf8.ValidString(p.text) {
				return fmt.Errorf("ot: insert at byte %d is not valid UTF-8", idx)
			}
		case charDelete:
			if !boundaries[idx] || !boundaries[idx+p.len] {
				return fmt.Errorf("ot: delete at byte %d (len %d) splits a UTF-8 codepoint", idx, p.len)
			}
			idx += p.len
		}
	}
	return nil
}

// ValidateGraphemeBoundaries reports an error if any Retain/Delete
// primitive in op lands in the middle of a user-perceived character
// (grapheme cluster) of target, e.g. splitting a flag emoji or a
// combining-accent sequence in two. This resolves the open question of
// what CharOp should guarantee about non-codepoint Unicode boundaries:
// CharOp itself stays byte-indexed and permissive (callers may legitimately
// want to operate below grapheme granularity), but callers that want the
// stricter guarantee can opt in here.
func ValidateGraphemeBoundaries(target string, op *CharOp) error {
	boundaries := make(map[int]bool)
	boundaries[0] = true
	pos := 0
	for _, seg := range graphemes.SegmentAllString(target) {
		pos += len(seg)
		boundaries[pos] = true
	}

	idx := 0
	for _, p := range op.Ops() {
		switch p.kind {
		case charRetain:
			if !boundaries[idx] || !boundaries[idx+p.len] {
				return fmt.Errorf("ot: retain at byte %d (len %d) splits a grapheme cluster", idx, p.len)
			}
			idx += p.len
		case charDelete:
			if !boundaries[idx] || !boundaries[idx+p.len] {
				return fmt.Errorf("ot: delete at byte %d (len %d) splits a grapheme cluster", idx, p.len)
			}
			idx += p.len
		}
	}
	return nil
}
