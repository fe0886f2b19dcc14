package main

import (
	"fmt"
	"os"

	"github.com/breadml/bakectl/internal/journal"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// sampleLineMax caps printed stim/rollout lines; rollouts can run to
// thousands of characters per line.
const sampleLineMax = 200

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// printField renders one label/value line of a status or run report.
func printField(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// printSamples shows a few lines of generated stim or rollout output so
// the operator can eyeball data quality mid-run.
func printSamples(jobType, target string, samples []string) {
	printStep("Sample %s output for %s", jobType, target)
	for _, s := range samples {
		fmt.Printf("  %s\n", truncateSample(s))
	}
}

func truncateSample(s string) string {
	if len(s) <= sampleLineMax {
		return s
	}
	return s[:sampleLineMax] + "..."
}

// runStatusLabel colors a journal run status for terminal output.
func runStatusLabel(status string) string {
	switch status {
	case journal.RunCompleted:
		return colorize(colorGreen, status)
	case journal.RunFailed:
		return colorize(colorRed, status)
	default:
		return colorize(colorYellow, status)
	}
}

// shortID abbreviates a run ID for list output. IDs are normally UUIDs,
// but the journal accepts anything, so short ones pass through whole.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
