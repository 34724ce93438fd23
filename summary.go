package runcore

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/glubean/runcore/types"
)

// printSummary prints the batch results to the console.
func (o *Orchestrator) printSummary(reports []RunReport) {
	o.log.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)

	var totalDuration time.Duration
	totals := types.ArtifactSummary{}
	overall := types.StatePassed
	for _, r := range reports {
		totalDuration += r.Duration
		totals.Total += r.Summary.Total
		totals.Passed += r.Summary.Passed
		totals.Failed += r.Summary.Failed
		totals.Skipped += r.Summary.Skipped
		overall = worseState(overall, r.State)
	}
	t.SetTitle(fmt.Sprintf("Task Run Results (%s)", formatDuration(totalDuration)))

	t.AppendHeader(table.Row{
		"Task", "Duration", "Tests", "Passed", "Failed", "Skipped", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Task", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, r := range reports {
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
		t.AppendRow(table.Row{
			r.Task,
			formatDuration(r.Duration),
			r.Summary.Total,
			r.Summary.Passed,
			r.Summary.Failed,
			r.Summary.Skipped,
			getResultString(r.State),
			errMsg,
		})
	}

	switch overall {
	case types.StatePassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.StateSkipped:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		formatDuration(totalDuration),
		totals.Total,
		totals.Passed,
		totals.Failed,
		totals.Skipped,
		getResultString(overall),
		"",
	})

	t.Render()
}

// worseState folds two run states into the more severe one for the batch
// verdict. Severity grows from passed through skipped and failed to the
// operational failures.
func worseState(a, b types.RunState) types.RunState {
	rank := func(s types.RunState) int {
		switch s {
		case types.StatePassed:
			return 0
		case types.StateSkipped:
			return 1
		case types.StateFailed:
			return 2
		case types.StateTimeout:
			return 3
		default:
			return 4
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func getResultString(state types.RunState) string {
	switch state {
	case types.StatePassed:
		return "pass"
	case types.StateFailed:
		return "fail"
	case types.StateSkipped:
		return "skip"
	case types.StateTimeout:
		return "timeout"
	case types.StateErrored:
		return "error"
	default:
		return string(state)
	}
}

// formatDuration formats to the tenth of a second.
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
