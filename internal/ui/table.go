package ui

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/rowmesh/rowmesh/internal/types"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent).
			Align(lipgloss.Center)

	borderStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	tombstoneStyle = lipgloss.NewStyle().
			Foreground(ColorWarn)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

// renderValue keeps binary and oversized payloads out of the terminal.
func renderValue(value []byte) string {
	if types.IsTombstoneValue(value) {
		return tombstoneStyle.Render("(deleted)")
	}
	if !utf8.Valid(value) {
		return fmt.Sprintf("0x%x", value)
	}
	s := string(value)
	if len(s) > 48 {
		s = s[:45] + "..."
	}
	return s
}

// RowTable renders one row as column/value/version lines.
func RowTable(pk string, cols []string, value func(string) []byte, version func(string) uint64) string {
	t := newTable("COLUMN", "VALUE", "VERSION")
	for _, col := range cols {
		t.Row(col, renderValue(value(col)), strconv.FormatUint(version(col), 10))
	}
	return fmt.Sprintf("%s\n%s", pk, t.Render())
}

// HistoryTable renders a column's DAG history, version-ascending.
func HistoryTable(col string, nodes []types.DagNode) string {
	t := newTable("VERSION", "VALUE", "PARENTS", "TIME", "TOMBSTONE")
	for _, n := range nodes {
		parents := "-"
		if n.ParentVersion != 0 {
			parents = strconv.FormatUint(n.ParentVersion, 10)
			if n.Parent2Version != 0 {
				parents += "," + strconv.FormatUint(n.Parent2Version, 10)
			}
		}
		tombstone := ""
		if n.IsTombstone {
			tombstone = "yes"
		}
		t.Row(
			strconv.FormatUint(n.Version, 10),
			renderValue(n.Value),
			parents,
			time.UnixMilli(n.Timestamp).Format(time.TimeOnly),
			tombstone,
		)
	}
	return fmt.Sprintf("%s\n%s", col, t.Render())
}

// MergeReportLine renders a merge report as a one-line summary.
func MergeReportLine(report types.MergeReport) string {
	return fmt.Sprintf("inserted=%d updated=%d skipped=%d conflicts=%d",
		report.Inserted, report.Updated, report.Skipped, report.Conflicts)
}
