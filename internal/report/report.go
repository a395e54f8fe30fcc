package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pipstrip/pipstrip/internal/logging"
	"github.com/pipstrip/pipstrip/internal/rewrite"
)

type Summary struct {
	Total             int            `json:"total"`
	Rewritten         int            `json:"rewritten"`
	Removed           int            `json:"removed"`
	Unchanged         int            `json:"unchanged"`
	Bypassed          int            `json:"bypassed"`
	DirectivesRemoved int            `json:"directives_removed"`
	Start             time.Time      `json:"start"`
	End               time.Time      `json:"end"`
	Sources           []CountItem    `json:"sources"`
	TopHosts          []CountItem    `json:"top_hosts"`
	TopRoutes         []CountItem    `json:"top_routes"`
	Latency           LatencySummary `json:"latency"`
}

type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type LatencySummary struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type Reader struct {
	Since time.Time
}

func (r *Reader) Read(path string) ([]logging.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return r.Decode(file)
}

func (r *Reader) Decode(in io.Reader) ([]logging.Event, error) {
	var events []logging.Event
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e logging.Event
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !r.Since.IsZero() && e.Timestamp.Before(r.Since) {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func Summarize(events []logging.Event) Summary {
	var summary Summary
	if len(events) == 0 {
		return summary
	}

	summary.Start = events[0].Timestamp
	summary.End = events[0].Timestamp

	sourceCounts := map[string]int{}
	hostCounts := map[string]int{}
	routeCounts := map[string]int{}
	latencies := make([]int64, 0, len(events))

	for _, e := range events {
		summary.Total++
		if e.Timestamp.Before(summary.Start) {
			summary.Start = e.Timestamp
		}
		if e.Timestamp.After(summary.End) {
			summary.End = e.Timestamp
		}

		switch rewrite.Outcome(e.Outcome) {
		case rewrite.OutcomeRewritten:
			summary.Rewritten++
		case rewrite.OutcomeRemoved:
			summary.Removed++
		case rewrite.OutcomeUnchanged:
			summary.Unchanged++
		case rewrite.OutcomeBypassed:
			summary.Bypassed++
		}
		summary.DirectivesRemoved += e.Removed

		if e.Source != "" {
			sourceCounts[e.Source]++
		}
		if e.Removed > 0 {
			if e.Host != "" {
				hostCounts[e.Host]++
			}
			if e.RouteID != "" {
				routeCounts[e.RouteID]++
			}
		}

		latencies = append(latencies, e.DurationMS)
	}

	summary.Sources = topCounts(sourceCounts, len(sourceCounts))
	summary.TopHosts = topCounts(hostCounts, 5)
	summary.TopRoutes = topCounts(routeCounts, 5)
	summary.Latency = latencySummary(latencies)

	return summary
}

func topCounts(counts map[string]int, n int) []CountItem {
	items := make([]CountItem, 0, len(counts))
	for key, count := range counts {
		items = append(items, CountItem{Key: key, Count: count})
	}
	if len(items) == 0 {
		return nil
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Key < items[j].Key
		}
		return items[i].Count > items[j].Count
	})

	if len(items) > n {
		items = items[:n]
	}
	return items
}

func latencySummary(values []int64) LatencySummary {
	if len(values) == 0 {
		return LatencySummary{}
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencySummary{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

func percentile(values []int64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	idx := int(float64(len(values)-1) * p)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return float64(values[idx])
}
