// Package patch renders a ChangeSet as a single unified-diff text artifact.
//
// Rendering is deterministic: the same ChangeSet always produces
// byte-identical output (no timestamps, fixed lexicographic ordering), so
// downstream consumers may hash or compare patches. Files whose content is
// not decodable as text are represented by a binary-change marker line
// instead of hunks; rendering never fails.
package patch

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/morphlabs/morphd/internal/snapshot"
)

// contextLines is the number of unchanged lines shown around each hunk.
const contextLines = 3

// devNull is the conventional path for the missing side of an add or delete.
const devNull = "/dev/null"

// Render produces the unified diff for cs. Paths are emitted in
// lexicographic order within the added, then modified, then deleted groups.
// An empty ChangeSet renders as the empty string.
func Render(cs snapshot.ChangeSet) string {
	var b strings.Builder
	for _, path := range snapshot.SortedKeys(cs.Added) {
		writeFileDiff(&b, devNull, "b/"+path, nil, cs.Added[path])
	}
	for _, path := range snapshot.SortedKeys(cs.Modified) {
		edit := cs.Modified[path]
		writeFileDiff(&b, "a/"+path, "b/"+path, edit.Before, edit.After)
	}
	for _, path := range snapshot.SortedKeys(cs.Deleted) {
		writeFileDiff(&b, "a/"+path, devNull, cs.Deleted[path], nil)
	}
	return b.String()
}

// writeFileDiff appends one file's headers and hunks to b. Headers are
// always emitted so every path in the change set appears in the patch,
// even when both sides are empty and no hunk follows. Binary content on
// either side degrades to a single marker line.
func writeFileDiff(b *strings.Builder, aName, bName string, old, cur []byte) {
	if IsBinary(old) || IsBinary(cur) {
		fmt.Fprintf(b, "Binary files %s and %s differ\n", aName, bName)
		return
	}
	fmt.Fprintf(b, "--- %s\n+++ %s\n", aName, bName)
	a := splitLines(old)
	c := splitLines(cur)
	m := difflib.NewMatcher(a, c)
	for _, group := range m.GetGroupedOpCodes(contextLines) {
		first, last := group[0], group[len(group)-1]
		fmt.Fprintf(b, "@@ -%s +%s @@\n", formatRange(first.I1, last.I2), formatRange(first.J1, last.J2))
		for _, op := range group {
			if op.Tag == 'e' {
				for _, line := range a[op.I1:op.I2] {
					writeLine(b, ' ', line)
				}
				continue
			}
			if op.Tag == 'r' || op.Tag == 'd' {
				for _, line := range a[op.I1:op.I2] {
					writeLine(b, '-', line)
				}
			}
			if op.Tag == 'r' || op.Tag == 'i' {
				for _, line := range c[op.J1:op.J2] {
					writeLine(b, '+', line)
				}
			}
		}
	}
}

// writeLine emits one hunk line. Only a file's last line can lack a
// trailing newline; it is terminated and followed by the standard
// no-newline marker so the output stays valid unified diff.
func writeLine(b *strings.Builder, prefix byte, line string) {
	b.WriteByte(prefix)
	b.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		b.WriteString("\n\\ No newline at end of file\n")
	}
}

// formatRange renders one side of a hunk header: 1-based start with the
// count omitted for single-line ranges, matching the unified-diff format.
func formatRange(start, stop int) string {
	beginning := start + 1
	length := stop - start
	if length == 1 {
		return strconv.Itoa(beginning)
	}
	if length == 0 {
		beginning--
	}
	return fmt.Sprintf("%d,%d", beginning, length)
}

// splitLines splits content into lines, keeping each line's trailing
// newline. The final element lacks one when the content does not end with
// a newline.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := strings.SplitAfter(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// IsBinary reports whether data cannot be treated as text: it contains a NUL
// byte or is not valid UTF-8. Empty content is text.
func IsBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return true
	}
	return !utf8.Valid(data)
}
