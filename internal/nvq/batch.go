package nvq

import "sort"

// BatchStats aggregates the scores of one extraction batch. Used for
// reporting only; nothing in the pipeline branches on these numbers.
type BatchStats struct {
	Count        int
	Mean         float64
	Median       float64
	Min          int
	Max          int
	PassRate     float64
	FailureRates map[string]float64
	TopIssues    []IssueCount
}

type IssueCount struct {
	Issue string
	Count int
}

// Aggregate summarizes a batch of scores. topN bounds the issue list.
func Aggregate(scores []Score, topN int) BatchStats {
	stats := BatchStats{FailureRates: map[string]float64{}}
	if len(scores) == 0 {
		return stats
	}
	stats.Count = len(scores)

	totals := make([]int, 0, len(scores))
	sum := 0
	passing := 0
	failures := map[string]int{}
	issueCounts := map[string]int{}

	for _, s := range scores {
		totals = append(totals, s.Total)
		sum += s.Total
		if s.Passing {
			passing++
		}
		for _, comp := range s.FailingComponents {
			failures[comp]++
		}
		for _, issue := range s.Issues {
			issueCounts[issue]++
		}
	}
	sort.Ints(totals)

	stats.Min = totals[0]
	stats.Max = totals[len(totals)-1]
	stats.Mean = float64(sum) / float64(len(totals))
	stats.PassRate = float64(passing) / float64(len(totals))
	mid := len(totals) / 2
	if len(totals)%2 == 1 {
		stats.Median = float64(totals[mid])
	} else {
		stats.Median = float64(totals[mid-1]+totals[mid]) / 2
	}

	for comp, n := range failures {
		stats.FailureRates[comp] = float64(n) / float64(len(scores))
	}

	for issue, n := range issueCounts {
		stats.TopIssues = append(stats.TopIssues, IssueCount{Issue: issue, Count: n})
	}
	sort.Slice(stats.TopIssues, func(i, j int) bool {
		if stats.TopIssues[i].Count != stats.TopIssues[j].Count {
			return stats.TopIssues[i].Count > stats.TopIssues[j].Count
		}
		return stats.TopIssues[i].Issue < stats.TopIssues[j].Issue
	})
	if topN > 0 && len(stats.TopIssues) > topN {
		stats.TopIssues = stats.TopIssues[:topN]
	}
	return stats
}
