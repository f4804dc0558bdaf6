package chart

import (
	"fmt"
	"strings"

	"github.com/sherine-k/eventloop-sim/pkg/simulation"
)

const (
	chartWidth = 80
	labelWidth = 10
)

// Generator renders simulation records as plain-text reports
type Generator struct {
	width int
}

// NewGenerator creates a new chart generator
func NewGenerator() *Generator {
	return &Generator{
		width: chartWidth,
	}
}

func (g *Generator) header(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", g.width))
	sb.WriteString("\n\n")
}

// KindLabel returns the fixed-width column label for a task kind
func KindLabel(kind simulation.Kind) string {
	var name string
	switch kind {
	case simulation.KindSync:
		name = "SYNC"
	case simulation.KindMicrotask:
		name = "MICRO"
	case simulation.KindMacrotask:
		name = "MACRO"
	default:
		name = strings.ToUpper(string(kind))
	}
	return fmt.Sprintf("[%-*s]", labelWidth, name)
}

// GenerateLog lists the messages in execution order
func (g *Generator) GenerateLog(records []simulation.Record) string {
	var sb strings.Builder

	g.header(&sb, "Execution Log")

	if len(records) == 0 {
		sb.WriteString("No output\n")
		return sb.String()
	}

	for i, r := range records {
		sb.WriteString(fmt.Sprintf("%3d. %s\n", i+1, r.Message))
	}
	sb.WriteString("\n")

	return sb.String()
}

// GenerateTimeline generates a detailed timeline of records, one line per
// message, labelled with the queue that produced it
func (g *Generator) GenerateTimeline(records []simulation.Record, limit int) string {
	var sb strings.Builder

	title := "Detailed Timeline"
	if limit > 0 && limit < len(records) {
		title += fmt.Sprintf(" (showing first %d records)", limit)
	}
	g.header(&sb, title)

	displayCount := len(records)
	if limit > 0 && limit < displayCount {
		displayCount = limit
	}

	var lastTime simulation.VTime = -1
	for i := 0; i < displayCount; i++ {
		r := records[i]

		if r.Time != lastTime {
			sb.WriteString(fmt.Sprintf("--- t=%s %s\n", FormatTime(r.Time),
				strings.Repeat("-", max(0, g.width-8-len(FormatTime(r.Time))))))
			lastTime = r.Time
		}

		marker := " "
		if r.Failure {
			marker = "!"
		}

		sb.WriteString(fmt.Sprintf("%s %s %-16s %s\n",
			KindLabel(r.Kind),
			marker,
			truncate(r.Task, 16),
			r.Message))
	}

	if limit > 0 && limit < len(records) {
		sb.WriteString(fmt.Sprintf("\n... and %d more records\n", len(records)-limit))
	}

	sb.WriteString("\n")

	return sb.String()
}

// GenerateSummary counts records per queue and reports the virtual time span
func (g *Generator) GenerateSummary(records []simulation.Record) string {
	var sb strings.Builder

	g.header(&sb, "Run Summary")

	byKind := make(map[simulation.Kind]int)
	tasks := make(map[string]bool)
	failures := 0
	var end simulation.VTime
	for _, r := range records {
		byKind[r.Kind]++
		tasks[r.Task] = true
		if r.Failure {
			failures++
		}
		if r.Time > end {
			end = r.Time
		}
	}

	sb.WriteString(fmt.Sprintf("Total Records: %d\n", len(records)))
	sb.WriteString(fmt.Sprintf("  - Synchronous: %d\n", byKind[simulation.KindSync]))
	sb.WriteString(fmt.Sprintf("  - Microtasks: %d\n", byKind[simulation.KindMicrotask]))
	sb.WriteString(fmt.Sprintf("  - Macrotasks: %d\n", byKind[simulation.KindMacrotask]))
	sb.WriteString(fmt.Sprintf("  - Failures: %d\n", failures))
	sb.WriteString(fmt.Sprintf("Distinct Tasks: %d\n", len(tasks)))
	sb.WriteString(fmt.Sprintf("Virtual Time: %s\n", FormatTime(end)))
	sb.WriteString("\n")

	return sb.String()
}

// GenerateFailures lists uncaught exceptions and unhandled rejections
func (g *Generator) GenerateFailures(records []simulation.Record) string {
	var sb strings.Builder

	g.header(&sb, "Failures")

	count := 0
	for _, r := range records {
		if !r.Failure {
			continue
		}
		count++
		sb.WriteString(fmt.Sprintf("[t=%s] %s %s\n", FormatTime(r.Time), KindLabel(r.Kind), r.Message))
	}

	if count == 0 {
		sb.WriteString("No failures!\n")
		return sb.String()
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Total Failures: %d\n", count))
	sb.WriteString("\n")

	return sb.String()
}

// FormatTime formats a virtual time in a human-readable way
func FormatTime(t simulation.VTime) string {
	const (
		second = 1000
		minute = 60 * second
		hour   = 60 * minute
	)

	switch {
	case t < second:
		return fmt.Sprintf("%dms", t)
	case t < minute:
		if t%second == 0 {
			return fmt.Sprintf("%ds", t/second)
		}
		return fmt.Sprintf("%.3fs", float64(t)/second)
	case t < hour:
		return fmt.Sprintf("%dm%ds", t/minute, (t%minute)/second)
	default:
		return fmt.Sprintf("%dh%dm", t/hour, (t%hour)/minute)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "~"
}
