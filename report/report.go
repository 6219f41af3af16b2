// Package report renders the rank-0 summary of a benchmarking run: measured
// per-backend timings, the cost-model breakdown, predicted-vs-measured
// efficiency per scenario, and any correctness divergences.
package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/spmvbench/spmvbench/costmodel"
	"github.com/spmvbench/spmvbench/harness"
	"github.com/spmvbench/spmvbench/perfmodel"
)

// WriteTimings renders the per-backend timing table from the run's registry:
// call and failure counts, total elapsed and mean time per call. Backends
// appear in registry creation order. Rows with failures render red.
func WriteTimings(w io.Writer, reg *harness.TimerRegistry) {
	t := newPlainTableWithReds(true,
		lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right, lipgloss.Right)
	t.Table.Headers("Backend", "Calls", "Failures", "Total", "Time/Call")
	for _, name := range reg.Names() {
		tm := reg.Timer(name)
		t.Row(tm.Failures > 0,
			name,
			humanize.Comma(int64(tm.Calls)),
			humanize.Comma(int64(tm.Failures)),
			formatDuration(tm.Elapsed),
			formatSeconds(tm.TimePerCall()),
		)
	}
	fmt.Fprintln(w, t.Table.Render())
}

// WriteArrayCosts renders the per-array streaming footprint of the cost
// model: bytes touched, predicted seconds and implied bandwidth.
func WriteArrayCosts(w io.Writer, b *costmodel.Breakdown) {
	t := newPlainTable(true, lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right)
	t.Headers("Array", "Bytes", "Predicted", "Bandwidth")
	rows := []struct {
		name string
		cost costmodel.ArrayCost
	}{
		{"rowptr", b.RowPtr},
		{"colind", b.ColInd},
		{"values", b.Values},
		{"x", b.X},
		{"y", b.Y},
		{"all", b.All},
	}
	for _, r := range rows {
		t.Row(r.name, formatBytes(r.cost.Bytes),
			formatSeconds(r.cost.Seconds), formatBandwidth(r.cost.GBPerSec))
	}
	fmt.Fprintln(w, t.Render())
}

// WriteEfficiency renders the scenario table: the cost model's predicted
// minimum time for each scenario, and per enrolled backend the ratio
// predicted/measured. A backend at 100% runs exactly at the modeled
// bandwidth limit; lower means headroom, higher means the model's bracket is
// pessimistic for this matrix.
func WriteEfficiency(w io.Writer, reg *harness.TimerRegistry, b *costmodel.Breakdown) {
	names := withCalls(reg)
	headers := append([]string{"Scenario", "Predicted"}, names...)
	alignments := make([]lipgloss.Position, len(headers))
	alignments[0] = lipgloss.Left
	for i := 1; i < len(alignments); i++ {
		alignments[i] = lipgloss.Right
	}
	t := newPlainTable(true, alignments...)
	t.Headers(headers...)
	for _, sc := range b.Scenarios() {
		row := []string{sc.Name, formatSeconds(sc.Seconds)}
		for _, name := range names {
			row = append(row, formatEfficiency(sc.Seconds, reg.Timer(name).TimePerCall()))
		}
		t.Row(row...)
	}
	fmt.Fprintln(w, t.Render())
}

// withCalls returns the backends that completed at least one call, in
// registry order. Backends that only failed have no meaningful time per
// call.
func withCalls(reg *harness.TimerRegistry) []string {
	var names []string
	for _, name := range reg.Names() {
		if reg.Timer(name).Calls > 0 {
			names = append(names, name)
		}
	}
	return names
}

func formatEfficiency(predicted, measured float64) string {
	if measured <= 0 || predicted <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*predicted/measured)
}

// WriteDivergences renders the trials whose output disagreed with the
// baseline, all in red, or a single line when there were none.
func WriteDivergences(w io.Writer, divs []harness.Divergence) {
	if len(divs) == 0 {
		fmt.Fprintln(w, "All backends agreed with the reference baseline.")
		return
	}
	t := newPlainTableWithReds(true,
		lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right)
	t.Table.Headers("Backend", "Trial", "Error Norm", "Baseline Norm")
	for _, d := range divs {
		t.Row(true,
			d.Backend,
			humanize.Comma(int64(d.Trial)),
			fmt.Sprintf("%.3e", d.ErrNorm),
			fmt.Sprintf("%.3e", d.BaselineNorm),
		)
	}
	fmt.Fprintln(w, t.Table.Render())
}

// WriteModels dumps the raw calibration tables, for verbose runs.
func WriteModels(w io.Writer, m *perfmodel.Models) {
	m.WriteTables(w)
}
