package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SnapshotView is a labelled snapshot as rendered for text diffs.
type SnapshotView struct {
	EntityType string
	EntityID   int64
	Branch     string
	Version    int64
	Fields     Snapshot
}

// NewSnapshotView builds a view of a stored version.
func NewSnapshotView(version Version) SnapshotView {
	return SnapshotView{
		EntityType: version.EntityType,
		EntityID:   version.EntityID,
		Branch:     version.Branch,
		Version:    version.VersionNumber,
		Fields:     version.Snapshot.Clone(),
	}
}

// CanonicalText renders the view as deterministic, sorted lines.
func (s SnapshotView) CanonicalText() []string {
	lines := []string{
		fmt.Sprintf("Entity: %s#%d", s.EntityType, s.EntityID),
		fmt.Sprintf("Branch: %s", s.Branch),
		fmt.Sprintf("Version: %d", s.Version),
		"Fields:",
	}
	if len(s.Fields) == 0 {
		return append(lines, "  (empty)")
	}
	for _, key := range s.Fields.Keys() {
		lines = append(lines, fmt.Sprintf("  %s: %s", key, canonicalValue(s.Fields[key])))
	}
	return lines
}

// DiffSnapshots produces a unified diff between two views using the provided labels.
// A nil side renders as empty.
func DiffSnapshots(baseLabel string, base *SnapshotView, targetLabel string, target *SnapshotView) string {
	return buildUnifiedDiff(baseLabel, targetLabel, canonicalString(base), canonicalString(target))
}

func canonicalString(view *SnapshotView) string {
	if view == nil {
		return ""
	}
	return strings.Join(view.CanonicalText(), "\n") + "\n"
}

func canonicalValue(value any) string {
	if value == nil {
		return "null"
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(encoded)
}

type diffOp struct {
	prefix string
	line   string
}

func buildUnifiedDiff(baseLabel, targetLabel, baseContent, targetContent string) string {
	baseLines := splitLines(baseContent)
	targetLines := splitLines(targetContent)

	ops := diffLines(baseLines, targetLines)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", baseLabel))
	builder.WriteString(fmt.Sprintf("+++ %s\n", targetLabel))
	builder.WriteString("@@ -0,0 +0,0 @@\n")
	for _, operation := range ops {
		builder.WriteString(operation.prefix)
		builder.WriteString(operation.line)
		builder.WriteString("\n")
	}

	return builder.String()
}

func splitLines(input string) []string {
	lines := strings.Split(input, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		if base[i] == target[j] {
			ops = append(ops, diffOp{prefix: " ", line: base[i]})
			i++
			j++
			continue
		}

		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, diffOp{prefix: "-", line: base[i]})
			i++
		} else {
			ops = append(ops, diffOp{prefix: "+", line: target[j]})
			j++
		}
	}

	for i < m {
		ops = append(ops, diffOp{prefix: "-", line: base[i]})
		i++
	}

	for j < n {
		ops = append(ops, diffOp{prefix: "+", line: target[j]})
		j++
	}

	return ops
}
