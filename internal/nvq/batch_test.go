package nvq

import "testing"

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil, 5)
	if stats.Count != 0 || stats.Mean != 0 || stats.PassRate != 0 {
		t.Errorf("empty aggregate should be zeroed: %+v", stats)
	}
}

func TestAggregate(t *testing.T) {
	scores := []Score{
		{Total: 10, Passing: true},
		{Total: 8, Passing: true, Issues: []string{"no connections to other notes"}},
		{Total: 4, FailingComponents: []string{ComponentWhy, ComponentOriginality}, Issues: []string{"no connections to other notes", "no first-person purpose framing"}},
		{Total: 6, FailingComponents: []string{ComponentWhy}},
	}

	stats := Aggregate(scores, 5)

	if stats.Count != 4 {
		t.Errorf("count = %d, want 4", stats.Count)
	}
	if stats.Mean != 7.0 {
		t.Errorf("mean = %v, want 7.0", stats.Mean)
	}
	if stats.Median != 7.0 {
		t.Errorf("median = %v, want 7.0", stats.Median)
	}
	if stats.Min != 4 || stats.Max != 10 {
		t.Errorf("min/max = %d/%d, want 4/10", stats.Min, stats.Max)
	}
	if stats.PassRate != 0.5 {
		t.Errorf("pass rate = %v, want 0.5", stats.PassRate)
	}
	if stats.FailureRates[ComponentWhy] != 0.5 {
		t.Errorf("why failure rate = %v, want 0.5", stats.FailureRates[ComponentWhy])
	}
	if stats.FailureRates[ComponentOriginality] != 0.25 {
		t.Errorf("originality failure rate = %v, want 0.25", stats.FailureRates[ComponentOriginality])
	}
	if len(stats.TopIssues) == 0 || stats.TopIssues[0].Issue != "no connections to other notes" {
		t.Errorf("top issue should be the most frequent one: %+v", stats.TopIssues)
	}
	if stats.TopIssues[0].Count != 2 {
		t.Errorf("top issue count = %d, want 2", stats.TopIssues[0].Count)
	}
}

func TestAggregateTopNBound(t *testing.T) {
	scores := []Score{
		{Total: 3, Issues: []string{"a", "b", "c", "d"}},
	}
	stats := Aggregate(scores, 2)
	if len(stats.TopIssues) != 2 {
		t.Errorf("expected issue list bounded to 2, got %d", len(stats.TopIssues))
	}
	// Ties break alphabetically so the bound is deterministic.
	if stats.TopIssues[0].Issue != "a" || stats.TopIssues[1].Issue != "b" {
		t.Errorf("unexpected tie-break order: %+v", stats.TopIssues)
	}
}
