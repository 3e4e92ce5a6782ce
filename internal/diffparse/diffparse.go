// Package diffparse extracts commentable line positions from unified diffs.
// GitHub only accepts inline review comments on lines present on the right
// side of the diff, so findings are classified against that set before
// posting.
package diffparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/grippy/grippy/internal/schema"
)

// CommentableLines maps a file path to the set of right-side line numbers
// an inline comment can attach to.
type CommentableLines map[string]map[int]bool

var (
	fileHeaderRe = regexp.MustCompile(`^diff --git a/.+ b/(.+)$`)
	hunkHeaderRe = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)
)

// ParseDiffLines walks a unified diff and collects, per file, every line
// number that exists on the new side. Added and context lines count;
// removed lines and headers do not. The "\ No newline at end of file"
// marker never moves the counter.
func ParseDiffLines(diff string) CommentableLines {
	out := CommentableLines{}
	var file string
	line := 0
	inHunk := false

	for _, l := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(l, "diff --git "):
			file = ""
			inHunk = false
			if m := fileHeaderRe.FindStringSubmatch(l); m != nil {
				file = m[1]
			}
		case strings.HasPrefix(l, "@@"):
			if m := hunkHeaderRe.FindStringSubmatch(l); m != nil {
				line, _ = strconv.Atoi(m[1])
				inHunk = true
			}
		case strings.HasPrefix(l, "+++"),
			strings.HasPrefix(l, "---"),
			strings.HasPrefix(l, "index "),
			strings.HasPrefix(l, "new file"),
			strings.HasPrefix(l, "deleted file"),
			strings.HasPrefix(l, "similarity index"),
			strings.HasPrefix(l, "rename "),
			strings.HasPrefix(l, `\`):
			// header lines and the no-newline marker
		case !inHunk || file == "":
		case strings.HasPrefix(l, "+"):
			mark(out, file, line)
			line++
		case strings.HasPrefix(l, "-"):
		case strings.HasPrefix(l, " "):
			mark(out, file, line)
			line++
		}
	}
	return out
}

func mark(c CommentableLines, file string, line int) {
	set, ok := c[file]
	if !ok {
		set = map[int]bool{}
		c[file] = set
	}
	set[line] = true
}

// Contains reports whether file:line can carry an inline comment.
func (c CommentableLines) Contains(file string, line int) bool {
	return c[file][line]
}

// Classify splits findings into those postable inline and those that must
// go into the summary's off-diff section. Order is preserved.
func Classify(findings []schema.Finding, lines CommentableLines) (inline, offDiff []schema.Finding) {
	for _, f := range findings {
		if lines.Contains(f.File, f.LineStart) {
			inline = append(inline, f)
		} else {
			offDiff = append(offDiff, f)
		}
	}
	return inline, offDiff
}

// TruncateDiff bounds a diff to maxChars by dropping whole per-file blocks
// from the end, never cutting mid-file. A notice naming the dropped file
// count is appended when anything was removed.
func TruncateDiff(diff string, maxChars int) string {
	if len(diff) <= maxChars {
		return diff
	}

	parts := strings.Split(diff, "diff --git ")
	kept := parts[0]
	blocks := 0
	dropped := 0
	for _, p := range parts[1:] {
		block := "diff --git " + p
		// the first block is kept even when it alone exceeds the cap
		if dropped == 0 && (blocks == 0 || len(kept)+len(block) <= maxChars) {
			kept += block
			blocks++
		} else {
			dropped++
		}
	}

	if dropped == 0 {
		return kept
	}
	return kept + fmt.Sprintf(
		"\n\n... %d file(s) truncated (diff exceeded %d chars) (truncated)",
		dropped, maxChars,
	)
}
