package tool

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// editSummary is the patch and line counts an edit attaches to its
// result metadata.
type editSummary struct {
	Patch     string
	Additions int
	Deletions int
}

// summarizeEdit diffs before against after line-wise. The patch carries
// workspace-relative file headers when a path is given.
func summarizeEdit(path, before, after, baseDir string) editSummary {
	if before == after {
		return editSummary{}
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var summary editSummary
	for _, d := range diffs {
		n := lineCount(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			summary.Additions += n
		case diffmatchpatch.DiffDelete:
			summary.Deletions += n
		}
	}

	patch := dmp.PatchToText(dmp.PatchMake(before, diffs))
	if patch == "" {
		return summary
	}

	header := ""
	if path != "" {
		rel := path
		if baseDir != "" {
			if r, err := filepath.Rel(baseDir, path); err == nil {
				rel = r
			}
		}
		header = fmt.Sprintf("--- %s\n+++ %s\n", rel, rel)
	}
	summary.Patch = header + patch
	return summary
}

func lineCount(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
