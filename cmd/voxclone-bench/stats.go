package main

import (
	"fmt"
	"io"
	"sort"
	"time"
)

type runResult struct {
	duration time.Duration
	bytes    int
	err      error
}

type summary struct {
	durations []time.Duration
	total     int
	success   int
	bytes     int64
	failures  map[string]int
}

func (s *summary) add(result runResult) {
	s.total++
	if result.err != nil {
		if s.failures == nil {
			s.failures = make(map[string]int)
		}
		s.failures[failureLabel(result.err)]++
		return
	}
	s.success++
	s.bytes += int64(result.bytes)
	s.durations = append(s.durations, result.duration)
}

func (s *summary) print(w io.Writer) {
	fmt.Fprintf(w, "Total requests: %d\n", s.total)
	fmt.Fprintf(w, "Success: %d, Failed: %d\n", s.success, s.total-s.success)

	if len(s.durations) > 0 {
		fmt.Fprintf(w, "Average duration: %s\n", average(s.durations))
		fmt.Fprintf(w, "P50: %s\n", percentile(s.durations, 0.50))
		fmt.Fprintf(w, "P90: %s\n", percentile(s.durations, 0.90))
		fmt.Fprintf(w, "P95: %s\n", percentile(s.durations, 0.95))
		fmt.Fprintf(w, "Audio bytes: %d\n", s.bytes)
	}

	labels := make([]string, 0, len(s.failures))
	for label := range s.failures {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(w, "  %s: %d\n", label, s.failures[label])
	}
}

// percentile interpolates linearly between the closest ranks. values is sorted in place.
func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	rank := p * float64(len(values)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(values) {
		return values[lower]
	}
	weight := rank - float64(lower)
	return time.Duration(float64(values[lower])*(1-weight) + float64(values[upper])*weight)
}

func average(values []time.Duration) time.Duration {
	if len(values) == 0 {
		return 0
	}
	var total time.Duration
	for _, v := range values {
		total += v
	}
	return total / time.Duration(len(values))
}
