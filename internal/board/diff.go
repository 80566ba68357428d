package board

import (
	"fmt"
	"slices"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/infinitech/infinitask/internal/task"
)

// statusDiff renders a unified diff of "id status" lines between the local
// and the server lists. It is empty when both agree.
func statusDiff(local, remote []task.Task) string {
	a, b := statusLines(local), statusLines(remote)
	if slices.Equal(a, b) {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: "local",
		ToFile:   "server",
		Context:  0,
	})
	if err != nil {
		return ""
	}
	return diff
}

func statusLines(tasks []task.Task) []string {
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, fmt.Sprintf("%s %s\n", t.ID, t.Status))
	}
	sort.Strings(lines)
	return lines
}
