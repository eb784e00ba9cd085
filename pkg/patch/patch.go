// Package patch implements a multi-parent line patch format.
//
// A patch describes a text as a sequence of hunks. An insert hunk carries
// literal lines; a copy hunk refers to a run of lines in one of the parent
// texts. Encoding a text against parents it shares most lines with yields a
// patch much smaller than the text itself.
//
// The wire format is line oriented:
//
//	i <n>
//	<n literal lines>
//	c <parent> <parent_pos> <child_pos> <n>
package patch

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
)

// Hunk is one element of a patch.
type Hunk interface {
	write(w *bytes.Buffer)
}

// NewText inserts literal lines.
type NewText struct {
	Lines []string
}

func (h NewText) write(w *bytes.Buffer) {
	fmt.Fprintf(w, "i %d\n", len(h.Lines))
	for _, line := range h.Lines {
		w.WriteString(line)
	}
}

// ParentText copies Count lines from Parent starting at ParentPos. ChildPos is
// where they land in the reconstructed text.
type ParentText struct {
	Parent    int
	ParentPos int
	ChildPos  int
	Count     int
}

func (h ParentText) write(w *bytes.Buffer) {
	fmt.Fprintf(w, "c %d %d %d %d\n", h.Parent, h.ParentPos, h.ChildPos, h.Count)
}

// SplitLines splits text into lines, keeping line terminators. A final line
// without a terminator is kept as is.
func SplitLines(text []byte) []string {
	if len(text) == 0 {
		return nil
	}
	var lines []string
	for len(text) > 0 {
		i := bytes.IndexByte(text, '\n')
		if i < 0 {
			lines = append(lines, string(text))
			break
		}
		lines = append(lines, string(text[:i+1]))
		text = text[i+1:]
	}
	return lines
}

// Diff computes the hunks that rebuild lines from parents. At every position
// the longest run available from any parent wins; lines no parent provides
// become literal inserts.
func Diff(lines []string, parents [][]string) []Hunk {
	blocks := make([][]difflib.Match, len(parents))
	for i, parent := range parents {
		blocks[i] = difflib.NewMatcher(parent, lines).GetMatchingBlocks()
	}

	var hunks []Hunk
	var pending []string
	flush := func() {
		if len(pending) > 0 {
			hunks = append(hunks, NewText{Lines: pending})
			pending = nil
		}
	}

	for pos := 0; pos < len(lines); {
		best := ParentText{Parent: -1}
		for p, matches := range blocks {
			for _, m := range matches {
				if m.Size == 0 || m.B > pos || m.B+m.Size <= pos {
					continue
				}
				offset := pos - m.B
				if n := m.Size - offset; n > best.Count {
					best = ParentText{Parent: p, ParentPos: m.A + offset, ChildPos: pos, Count: n}
				}
			}
		}
		if best.Parent < 0 {
			pending = append(pending, lines[pos])
			pos++
			continue
		}
		flush()
		hunks = append(hunks, best)
		pos += best.Count
	}
	flush()
	return hunks
}

// Encode serializes the hunks that rebuild lines from parents.
func Encode(lines []string, parents [][]string) []byte {
	var buf bytes.Buffer
	for _, h := range Diff(lines, parents) {
		h.write(&buf)
	}
	return buf.Bytes()
}

// EncodeBytes is Encode over raw texts.
func EncodeBytes(text []byte, parents ...[]byte) []byte {
	parentLines := make([][]string, len(parents))
	for i, p := range parents {
		parentLines[i] = SplitLines(p)
	}
	return Encode(SplitLines(text), parentLines)
}

// Parse reads the hunks of an encoded patch.
func Parse(data []byte) ([]Hunk, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	var hunks []Hunk
	for {
		header, err := r.ReadString('\n')
		if err == io.EOF && header == "" {
			return hunks, nil
		}
		if err != nil && err != io.EOF {
			return nil, errors.Wrap(err, errors.ErrSerialize, "failed to read patch")
		}
		fields := strings.Fields(header)
		if len(fields) == 0 {
			return nil, errors.New(errors.ErrSerialize, "empty patch header")
		}
		nums, convErr := atois(fields[1:])
		if convErr != nil {
			return nil, errors.Wrapf(convErr, errors.ErrSerialize, "bad patch header %q", header)
		}
		for _, n := range nums {
			if n < 0 {
				return nil, errors.Newf(errors.ErrSerialize, "negative count in patch header %q", strings.TrimSpace(header))
			}
		}

		switch {
		case fields[0] == "i" && len(nums) == 1:
			// Lines grow as they are read, so a lying count cannot force a huge allocation.
			var h NewText
			for i := 0; i < nums[0]; i++ {
				line, err := r.ReadString('\n')
				if err == io.EOF && line != "" && i == nums[0]-1 {
					err = nil
				}
				if err != nil {
					return nil, errors.Wrap(err, errors.ErrSerialize, "truncated insert hunk")
				}
				h.Lines = append(h.Lines, line)
			}
			hunks = append(hunks, h)
		case fields[0] == "c" && len(nums) == 4:
			hunks = append(hunks, ParentText{Parent: nums[0], ParentPos: nums[1], ChildPos: nums[2], Count: nums[3]})
		default:
			return nil, errors.Newf(errors.ErrSerialize, "unknown patch hunk %q", strings.TrimSpace(header))
		}
	}
}

// Decode rebuilds the lines described by data against parents.
func Decode(data []byte, parents [][]string) ([]string, error) {
	hunks, err := Parse(data)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, h := range hunks {
		switch h := h.(type) {
		case NewText:
			lines = append(lines, h.Lines...)
		case ParentText:
			if h.Parent < 0 || h.Parent >= len(parents) {
				return nil, errors.Newf(errors.ErrSerialize, "patch refers to missing parent %d", h.Parent)
			}
			parent := parents[h.Parent]
			if h.ParentPos < 0 || h.Count < 0 || h.ParentPos > len(parent) || h.Count > len(parent)-h.ParentPos {
				return nil, errors.Newf(errors.ErrSerialize, "patch range %d+%d outside parent %d", h.ParentPos, h.Count, h.Parent)
			}
			if h.ChildPos != len(lines) {
				return nil, errors.Newf(errors.ErrSerialize, "patch hunk expects child position %d, at %d", h.ChildPos, len(lines))
			}
			lines = append(lines, parent[h.ParentPos:h.ParentPos+h.Count]...)
		}
	}
	return lines, nil
}

// DecodeBytes is Decode over raw texts.
func DecodeBytes(data []byte, parents ...[]byte) ([]byte, error) {
	parentLines := make([][]string, len(parents))
	for i, p := range parents {
		parentLines[i] = SplitLines(p)
	}
	lines, err := Decode(data, parentLines)
	if err != nil {
		return nil, err
	}
	return []byte(strings.Join(lines, "")), nil
}

func atois(fields []string) ([]int, error) {
	nums := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		nums[i] = n
	}
	return nums, nil
}
