package probe

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/rodaine/table"
)

const detailLimit = 60

func Render(w io.Writer, method string, results []Result) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(w, "\n%s %s\n\n", bold("Probe:"), method)

	headerFmt := color.New(color.FgCyan, color.Underline).SprintfFunc()
	tbl := table.New("Endpoint", "Status", "Latency", "Result")
	tbl.WithHeaderFormatter(headerFmt)
	tbl.WithWriter(w)

	for _, r := range results {
		tbl.AddRow(r.Name, formatStatus(r.Status), fmt.Sprintf("%dms", r.Latency.Milliseconds()), shorten(r.Detail))
	}

	tbl.Print()
	fmt.Fprintln(w)
}

func formatStatus(s Status) string {
	switch s {
	case StatusOK:
		return color.GreenString("✓ %s", s)
	case StatusRpcError, StatusRateLimited:
		return color.YellowString("⚠ %s", s)
	default:
		return color.RedString("✗ %s", s)
	}
}

func shorten(s string) string {
	if len(s) > detailLimit {
		return s[:detailLimit] + "..."
	}
	return s
}
