package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

func RenderText(summary Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d\n", summary.Total)
	fmt.Fprintf(&b, "Rewritten: %d\n", summary.Rewritten)
	fmt.Fprintf(&b, "Header removed: %d\n", summary.Removed)
	fmt.Fprintf(&b, "Unchanged: %d\n", summary.Unchanged)
	fmt.Fprintf(&b, "Bypassed: %d\n", summary.Bypassed)
	fmt.Fprintf(&b, "Directives removed: %d\n", summary.DirectivesRemoved)
	fmt.Fprintf(&b, "Latency p50/p95/p99 (ms): %.0f/%.0f/%.0f\n", summary.Latency.P50, summary.Latency.P95, summary.Latency.P99)

	writeCounts(&b, "Sources", summary.Sources)
	writeCounts(&b, "Top hosts", summary.TopHosts)
	writeCounts(&b, "Top routes", summary.TopRoutes)

	return b.String()
}

func RenderMarkdown(summary Summary) string {
	var b strings.Builder
	b.WriteString("# pipstrip report\n\n")
	b.WriteString("## Totals\n\n")
	fmt.Fprintf(&b, "- Total: %d\n", summary.Total)
	fmt.Fprintf(&b, "- Rewritten: %d\n", summary.Rewritten)
	fmt.Fprintf(&b, "- Header removed: %d\n", summary.Removed)
	fmt.Fprintf(&b, "- Unchanged: %d\n", summary.Unchanged)
	fmt.Fprintf(&b, "- Bypassed: %d\n", summary.Bypassed)
	fmt.Fprintf(&b, "- Directives removed: %d\n", summary.DirectivesRemoved)
	fmt.Fprintf(&b, "- Latency p50/p95/p99 (ms): %.0f/%.0f/%.0f\n\n", summary.Latency.P50, summary.Latency.P95, summary.Latency.P99)

	writeCountsMarkdown(&b, "Sources", summary.Sources)
	writeCountsMarkdown(&b, "Top hosts", summary.TopHosts)
	writeCountsMarkdown(&b, "Top routes", summary.TopRoutes)

	return b.String()
}

func RenderJSON(summary Summary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

func writeCounts(b *strings.Builder, title string, items []CountItem) {
	if len(items) == 0 {
		fmt.Fprintf(b, "%s: none\n", title)
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
}

func writeCountsMarkdown(b *strings.Builder, title string, items []CountItem) {
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n\n")
	if len(items) == 0 {
		b.WriteString("- none\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
	b.WriteString("\n")
}

// WriteOutput writes content to path, or to stdout when path is empty.
func WriteOutput(stdout io.Writer, path string, content []byte) error {
	if path == "" {
		_, err := stdout.Write(content)
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
