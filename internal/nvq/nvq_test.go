package nvq

import (
	"reflect"
	"testing"
)

func rubricContext() Context {
	return Context{
		Goals: []Goal{
			{Title: "Learning Spanish", Motivation: "travel through South America"},
		},
		MOCNames:     []string{"MOC Languages"},
		ProjectNames: []string{"Spanish Immersion"},
	}
}

func perfectCandidate() Candidate {
	return Candidate{
		Title:       "Spaced repetition anchors vocabulary",
		Content:     "I realized that short daily reviews beat weekend marathons. I noticed my recall doubled after two weeks of spacing.",
		Purpose:     "I am keeping this because it helps me with my goal of learning Spanish",
		Status:      "Seed",
		Type:        "Technical",
		Stakeholder: "Self",
		Tags:        []string{"#skill/language"},
		Connections: []CandidateConnection{
			{Target: "MOC/Languages", Type: "upward"},
			{Target: "Verb Conjugation", Type: "supports"},
		},
	}
}

func TestEvaluatePerfectScore(t *testing.T) {
	e := NewEvaluator(DefaultThreshold)
	score := e.Evaluate(perfectCandidate(), rubricContext())

	if score.Why != 3 {
		t.Errorf("why = %d, want 3 (issues: %v)", score.Why, score.Issues)
	}
	if score.Metadata != 2 {
		t.Errorf("metadata = %d, want 2", score.Metadata)
	}
	if score.Taxonomy != 2 {
		t.Errorf("taxonomy = %d, want 2", score.Taxonomy)
	}
	if score.Connectivity != 2 {
		t.Errorf("connectivity = %d, want 2", score.Connectivity)
	}
	if score.Originality != 1 {
		t.Errorf("originality = %d, want 1 (issues: %v)", score.Originality, score.Issues)
	}
	if score.Total != 10 || !score.Passing {
		t.Errorf("total = %d passing = %v, want 10 passing", score.Total, score.Passing)
	}
	if len(score.FailingComponents) != 0 {
		t.Errorf("unexpected failing components: %v", score.FailingComponents)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	e := NewEvaluator(DefaultThreshold)
	ctx := rubricContext()
	candidate := perfectCandidate()

	first := e.Evaluate(candidate, ctx)
	for i := 0; i < 10; i++ {
		again := e.Evaluate(candidate, ctx)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("evaluation not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestTagCountPenalty(t *testing.T) {
	e := NewEvaluator(DefaultThreshold)
	ctx := rubricContext()

	base := perfectCandidate()
	base.Tags = []string{"#skill/language", "#insight/learning"}
	baseScore := e.Evaluate(base, ctx)

	bloated := perfectCandidate()
	bloated.Tags = []string{"#skill/language", "#insight/learning", "#skill/memory", "#habit/daily", "#review/spaced", "#method/active"}
	bloatedScore := e.Evaluate(bloated, ctx)

	if bloatedScore.Taxonomy != baseScore.Taxonomy-1 {
		t.Errorf("6-tag taxonomy = %d, want %d", bloatedScore.Taxonomy, baseScore.Taxonomy-1)
	}
}

func TestTaxonomyFloorAtZero(t *testing.T) {
	e := NewEvaluator(DefaultThreshold)
	c := perfectCandidate()
	c.Tags = []string{"a", "b", "c", "d", "e", "f"}

	score := e.Evaluate(c, rubricContext())
	if score.Taxonomy != 0 {
		t.Errorf("all-topic oversized tag set should floor at 0, got %d", score.Taxonomy)
	}
}

func TestWhyComponents(t *testing.T) {
	e := NewEvaluator(DefaultThreshold)
	ctx := rubricContext()

	c := perfectCandidate()
	c.Purpose = "A neutral description of the technique."
	c.Content = "Spacing effects exist."
	score := e.Evaluate(c, ctx)
	if score.Why != 0 {
		t.Errorf("why = %d, want 0 for impersonal purpose", score.Why)
	}
	if len(score.Issues) == 0 {
		t.Error("expected issues explaining the zero")
	}

	// Goal motivation text counts as a goal reference.
	c.Purpose = "I am keeping this so I can travel through South America"
	score = e.Evaluate(c, ctx)
	if score.Why != 3 {
		t.Errorf("why = %d, want 3 with motivation reference (issues: %v)", score.Why, score.Issues)
	}
}

func TestMetadataGrading(t *testing.T) {
	e := NewEvaluator(DefaultThreshold)
	ctx := rubricContext()

	c := perfectCandidate()
	c.Status = "blooming" // not a valid maturity
	c.Type = ""
	c.Stakeholder = ""
	c.Project = ""
	score := e.Evaluate(c, ctx)
	if score.Metadata != 0 {
		t.Errorf("metadata = %d, want 0 with no valid fields", score.Metadata)
	}

	c.Project = "Spanish Immersion"
	c.Status = "evergreen"
	score = e.Evaluate(c, ctx)
	if score.Metadata != 1 {
		t.Errorf("metadata = %d, want 1 with two fields", score.Metadata)
	}
}

func TestConnectivityBracketRefs(t *testing.T) {
	e := NewEvaluator(DefaultThreshold)
	ctx := rubricContext()

	c := perfectCandidate()
	c.Connections = nil
	c.Content = "I realized spacing works. I noticed it links to [[MOC/Languages]] and [[Verb Conjugation]]."
	score := e.Evaluate(c, ctx)
	if score.Connectivity != 2 {
		t.Errorf("connectivity = %d, want 2 from bracket refs alone", score.Connectivity)
	}

	c.Content = "I realized spacing works. I noticed only [[Verb Conjugation]] relates."
	score = e.Evaluate(c, ctx)
	if score.Connectivity != 1 {
		t.Errorf("connectivity = %d, want 1 with one direction", score.Connectivity)
	}

	c.Content = "I realized spacing works. I noticed nothing else."
	score = e.Evaluate(c, ctx)
	if score.Connectivity != 0 {
		t.Errorf("connectivity = %d, want 0 with no links", score.Connectivity)
	}
}

func TestOriginalityTextbookDominated(t *testing.T) {
	e := NewEvaluator(DefaultThreshold)
	c := perfectCandidate()
	c.Purpose = ""
	c.Content = "Spaced repetition is defined as a review technique. It refers to increasing intervals. It is a type of active recall."

	score := e.Evaluate(c, rubricContext())
	if score.Originality != 0 {
		t.Errorf("originality = %d, want 0 for textbook restatement", score.Originality)
	}

	found := false
	for _, comp := range score.FailingComponents {
		if comp == ComponentOriginality {
			found = true
		}
	}
	if !found {
		t.Errorf("originality missing from failing components: %v", score.FailingComponents)
	}
}

func TestThresholdConfigurable(t *testing.T) {
	e := NewEvaluator(9)
	c := perfectCandidate()
	c.Stakeholder = ""
	c.Project = ""
	// metadata drops to 1, total 9: passing at threshold 9, failing at 10.
	score := e.Evaluate(c, rubricContext())
	if score.Total != 9 {
		t.Fatalf("total = %d, want 9", score.Total)
	}
	if !score.Passing {
		t.Error("total 9 should pass threshold 9")
	}

	strict := NewEvaluator(10)
	if strict.Evaluate(c, rubricContext()).Passing {
		t.Error("total 9 should fail threshold 10")
	}
}
