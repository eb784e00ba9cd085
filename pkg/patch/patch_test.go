package patch

import (
	"testing"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "single terminated", input: "a\n", expected: []string{"a\n"}},
		{name: "missing final newline", input: "a\nb", expected: []string{"a\n", "b"}},
		{name: "blank lines", input: "\n\n", expected: []string{"\n", "\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitLines([]byte(tt.input)))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		parents []string
	}{
		{name: "no parents", text: "one\ntwo\n"},
		{name: "identical to parent", text: "one\ntwo\nthree\n", parents: []string{"one\ntwo\nthree\n"}},
		{name: "edit in the middle", text: "one\nTWO\nthree\n", parents: []string{"one\ntwo\nthree\n"}},
		{name: "no trailing newline", text: "one\ntwo", parents: []string{"one\n"}},
		{name: "empty text", text: "", parents: []string{"one\n"}},
		{name: "two parents", text: "a\nb\nx\ny\n", parents: []string{"a\nb\n", "x\ny\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parents := make([][]byte, len(tt.parents))
			for i, p := range tt.parents {
				parents[i] = []byte(p)
			}
			encoded := EncodeBytes([]byte(tt.text), parents...)
			decoded, err := DecodeBytes(encoded, parents...)
			require.NoError(t, err)
			assert.Equal(t, tt.text, string(decoded))
		})
	}
}

func TestDiffPrefersParentRuns(t *testing.T) {
	parent := []string{"a\n", "b\n", "c\n"}
	hunks := Diff([]string{"a\n", "b\n", "c\n", "d\n"}, [][]string{parent})
	require.Len(t, hunks, 2)
	assert.Equal(t, ParentText{Parent: 0, ParentPos: 0, ChildPos: 0, Count: 3}, hunks[0])
	assert.Equal(t, NewText{Lines: []string{"d\n"}}, hunks[1])

	assert.Equal(t, "c 0 0 0 3\ni 1\nd\n", string(Encode([]string{"a\n", "b\n", "c\n", "d\n"}, [][]string{parent})))
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		patch string
	}{
		{name: "unknown hunk", patch: "x 1\n"},
		{name: "bad number", patch: "i one\n"},
		{name: "truncated insert", patch: "i 2\nonly\n"},
		{name: "missing parent", patch: "c 1 0 0 1\n"},
		{name: "range outside parent", patch: "c 0 0 0 5\n"},
		{name: "child position mismatch", patch: "c 0 0 3 1\n"},
		{name: "negative insert count", patch: "i -1\n"},
		{name: "huge insert count", patch: "i 9223372036854775807\nonly\n"},
		{name: "negative copy field", patch: "c 0 -1 0 1\n"},
		{name: "copy range overflow", patch: "c 0 1 0 9223372036854775807\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(tt.patch), []byte("p\n"))
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrSerialize))
		})
	}
}
