package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/raphaelgruber/voxchat/internal/metrics"
	"github.com/raphaelgruber/voxchat/internal/models"
	"github.com/raphaelgruber/voxchat/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var statsRuntime bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-model latency and scores",
	Long: `Show the average latency, quality and expressivity per model, folded
from every exchange you have recorded. Quality and expressivity are
placeholder scores, not an evaluation of the model output.

Examples:
  voxchat stats
  voxchat stats --runtime`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsRuntime, "runtime", false, "also show server runtime statistics")
}

func runStats(cmd *cobra.Command, args []string) error {
	owner, err := requireOwner()
	if err != nil {
		return err
	}
	ctx := context.Background()

	stats, err := service.NewAggregator(apiClient, owner, logger).ComputeStats(ctx, owner)
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(stats) == 0 {
		fmt.Fprintln(out, "No exchanges recorded yet.")
	} else {
		fmt.Fprintln(out, renderStatsTable(stats, isTerminal(os.Stdout)))
	}

	if statsRuntime {
		snap, err := apiClient.ServerStats(ctx)
		if err != nil {
			return fmt.Errorf("get server stats: %w", err)
		}
		fmt.Fprintln(out)
		printServerStats(out, snap)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// renderStatsTable formats stats as a table, styled when color is true.
func renderStatsTable(stats []models.ModelStats, color bool) string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Model.DisplayName(),
			fmt.Sprintf("%.0f ms", s.AvgLatencyMs),
			fmt.Sprintf("%.2f", s.AvgQuality),
			fmt.Sprintf("%.2f", s.AvgExpressivity),
			fmt.Sprintf("%d", s.UsageCount),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("MODEL", "AVG LATENCY", "QUALITY", "EXPRESSIVITY", "USES").
		Rows(rows...)

	if color {
		header := lipgloss.NewStyle().Foreground(defaultTheme.Status).Bold(true).Padding(0, 1)
		cell := lipgloss.NewStyle().Padding(0, 1)
		fastest := fastestModel(stats)
		t = t.BorderStyle(lipgloss.NewStyle().Foreground(defaultTheme.Hint)).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return header
				}
				if row >= 0 && row < len(stats) && stats[row].Model == fastest {
					return cell.Foreground(defaultTheme.Success)
				}
				return cell
			})
	}
	return t.Render()
}

// fastestModel returns the model with the lowest average latency.
func fastestModel(stats []models.ModelStats) models.ModelName {
	if len(stats) == 0 {
		return ""
	}
	return slices.MinFunc(stats, func(a, b models.ModelStats) int {
		switch {
		case a.AvgLatencyMs < b.AvgLatencyMs:
			return -1
		case a.AvgLatencyMs > b.AvgLatencyMs:
			return 1
		default:
			return 0
		}
	}).Model
}

// printServerStats displays server runtime statistics.
func printServerStats(w io.Writer, snap *metrics.Snapshot) {
	fmt.Fprintf(w, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", snap.UptimeSeconds)

	if snap.Gateway != nil {
		fmt.Fprintf(w, "\nGateway:\n")
		printOpStats(w, snap.Gateway)
	}

	names := make([]string, 0, len(snap.Backends))
	for name := range snap.Backends {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "\nBackend %s:\n", name)
		printOpStats(w, snap.Backends[name])
	}

	if snap.DBQuery != nil {
		fmt.Fprintf(w, "\nDB Query:\n")
		printOpStats(w, snap.DBQuery)
	}

	if snap.StorageWrite != nil {
		fmt.Fprintf(w, "\nStorage Write:\n")
		printOpStats(w, snap.StorageWrite)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}
