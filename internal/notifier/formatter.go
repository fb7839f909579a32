package notifier

import (
	"fmt"
	"sort"
	"strings"

	"BikeRebalancer/internal/model"
)

// FormatDaySummary formats a finished day into a Telegram message.
func FormatDaySummary(sum *model.DaySummary) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("🚲 <b>Fleet day %s</b> | %s\n\n", sum.Day, sum.Policy))
	b.WriteString(fmt.Sprintf("Completed: %d\n", sum.Completed))
	b.WriteString(fmt.Sprintf("Missed: %d\n", sum.Missed))
	b.WriteString(fmt.Sprintf("Completion rate: %.1f%%\n", sum.CompletionRate*100))
	b.WriteString(fmt.Sprintf("Avg availability: %.1f%%\n", sum.AvgAvailability))
	b.WriteString(fmt.Sprintf("Rebalancing: %d bikes, cost %.0f\n", sum.BikesMoved, sum.RebalancingCost))
	if sum.Policy == "learned" || strings.HasSuffix(sum.Policy, "+learned") {
		b.WriteString(fmt.Sprintf("Epsilon: %.3f\n", sum.Epsilon))
	}

	counts := sum.StatusCounts()
	if len(counts) > 0 {
		b.WriteString("\n📍 <b>Stations</b>\n")
		keys := make([]string, 0, len(counts))
		for st := range counts {
			keys = append(keys, string(st))
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("  %s: %d\n", k, counts[model.StationStatus(k)]))
		}
	}
	return b.String()
}

// TableHeader is the header of the training progress table.
func TableHeader() string {
	return fmt.Sprintf("%-5s | %-10s | %6s | %6s | %6s | %6s | %7s",
		"Epoch", "Day", "Comp", "Miss", "Rate", "Avail", "Cost")
}

// TableRow formats one finished day as a training table row.
func TableRow(epoch int, sum *model.DaySummary) string {
	return fmt.Sprintf("%-5d | %-10s | %6d | %6d | %5.1f%% | %5.1f%% | %7.0f",
		epoch, sum.Day, sum.Completed, sum.Missed, sum.CompletionRate*100, sum.AvgAvailability, sum.RebalancingCost)
}

// FormatStatus renders the latest summaries for a chat command reply.
func FormatStatus(epochs int, latest []*model.DaySummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Training status</b>\n\nEpochs run: %d\n", epochs))
	if len(latest) == 0 {
		b.WriteString("No day finished yet\n")
		return b.String()
	}
	b.WriteString("<pre>")
	b.WriteString(TableHeader() + "\n")
	for _, s := range latest {
		b.WriteString(TableRow(epochs, s) + "\n")
	}
	b.WriteString("</pre>")
	return b.String()
}
