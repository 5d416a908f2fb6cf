package observability

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/sortbench/sortbench/internal/partition"
)

var reportHeaders = []string{"Table", "Status", "Batches", "Rows", "Failed", "Rows/s", "Sortkey", "Shipdate", "Elapsed"}

// RenderReport writes a markdown table with one line per loaded table.
func (s *LoadStats) RenderReport(w io.Writer) error {
	tables := s.Snapshot()
	if len(tables) == 0 {
		_, err := fmt.Fprintln(w, "_No tables loaded_")
		return err
	}

	alignment := make([]tw.Align, len(reportHeaders))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(reportHeaders)

	var total int64
	for _, ts := range tables {
		total += ts.Rows
		table.Append([]string{
			ts.Table,
			statusString(ts.Status),
			fmt.Sprintf("%d", ts.Batches),
			fmt.Sprintf("%d", ts.Rows),
			fmt.Sprintf("%d", ts.FailedBatches),
			fmt.Sprintf("%.0f", ts.RowsPerSecond()),
			rangeString(ts.SortKey),
			rangeString(ts.ShipDate),
			ts.Elapsed.Round(time.Millisecond).String(),
		})
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("observability: failed to render report: %w", err)
	}

	_, err := fmt.Fprintf(w, "\n_%d rows in %d tables_\n", total, len(tables))
	return err
}

func statusString(status string) string {
	switch status {
	case StatusComplete:
		return color.GreenString(status)
	case StatusFailed:
		return color.RedString(status)
	case StatusLoading:
		return color.YellowString(status)
	default:
		return status
	}
}

func rangeString(mm *partition.MinMax) string {
	if mm == nil {
		return "-"
	}
	return fmt.Sprintf("[%d, %d]", mm.Min, mm.Max)
}
