// Package nvq scores note candidates against the ten-point Note Vitality
// Quotient rubric. Scoring is deterministic and side-effect free: the same
// candidate and context always produce the same score.
package nvq

import (
	"fmt"
	"regexp"
	"strings"

	"arbor/api/internal/taxonomy"
)

const DefaultThreshold = 7

// Component labels, in rubric order.
const (
	ComponentWhy          = "why"
	ComponentMetadata     = "metadata"
	ComponentTaxonomy     = "taxonomy"
	ComponentConnectivity = "connectivity"
	ComponentOriginality  = "originality"
)

// Candidate is a generator-proposed note before acceptance. Only title and
// content are required; every other field is optional and "missing" is a
// first-class evaluator input.
type Candidate struct {
	Title           string                `json:"title"`
	Content         string                `json:"content"`
	Purpose         string                `json:"purpose,omitempty"`
	Status          string                `json:"status,omitempty"`
	Type            string                `json:"type,omitempty"`
	Stakeholder     string                `json:"stakeholder,omitempty"`
	Project         string                `json:"project,omitempty"`
	Tags            []string              `json:"tags,omitempty"`
	Connections     []CandidateConnection `json:"connections,omitempty"`
	ConsolidateWith string                `json:"consolidateWith,omitempty"`
	MergedContent   string                `json:"mergedContent,omitempty"`
}

type CandidateConnection struct {
	Target   string  `json:"target"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength,omitempty"`
}

// Context carries the evaluation inputs that live outside the candidate.
type Context struct {
	Goals        []Goal
	MOCNames     []string
	ProjectNames []string
}

type Goal struct {
	Title      string
	Motivation string
}

// Score is the five-component breakdown for one candidate.
type Score struct {
	Why          int  `json:"why"`
	Metadata     int  `json:"metadata"`
	Taxonomy     int  `json:"taxonomy"`
	Connectivity int  `json:"connectivity"`
	Originality  int  `json:"originality"`
	Total        int  `json:"total"`
	Passing      bool `json:"passing"`
	// FailingComponents lists every component that scored exactly zero;
	// it drives the refinement feedback loop.
	FailingComponents []string `json:"failingComponents,omitempty"`
	// Issues are human-readable findings behind the zeros, used verbatim
	// in refinement prompts and batch reporting.
	Issues []string `json:"issues,omitempty"`
}

// Evaluator holds rubric configuration.
type Evaluator struct {
	threshold int
}

func NewEvaluator(threshold int) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Evaluator{threshold: threshold}
}

func (e *Evaluator) Threshold() int {
	return e.threshold
}

var (
	firstPersonPhrases = []string{
		"i am keeping this",
		"i'm keeping this",
		"i need this",
		"i want to remember",
		"this matters to me",
		"important to me",
	}
	actionablePhrases = []string{
		"helps",
		"enables",
		"so that i can",
		"so i can",
		"allows me",
		"lets me",
		"enabling",
	}
	validMaturity = map[string]struct{}{
		"seed": {}, "sapling": {}, "evergreen": {},
	}
	validNoteType = map[string]struct{}{
		"logic": {}, "technical": {}, "reflection": {},
	}
	bracketRef = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

	synthesisPhrases = []string{
		"i realized",
		"i realize",
		"i noticed",
		"i think",
		"i believe",
		"i learned",
		"i discovered",
		"my takeaway",
		"it occurred to me",
		"this suggests",
		"i suspect",
		"i wonder",
	}
	textbookPhrases = []string{
		"is defined as",
		"refers to",
		"is a type of",
		"is known as",
		"according to",
		"consists of",
		"was invented",
		"was founded",
		"is the process of",
	}
)

// Evaluate scores one candidate against the ten-point rubric.
func (e *Evaluator) Evaluate(c Candidate, ctx Context) Score {
	var score Score
	var issues []string

	score.Why, issues = e.scoreWhy(c, ctx, issues)
	score.Metadata, issues = e.scoreMetadata(c, issues)
	score.Taxonomy, issues = e.scoreTaxonomy(c, issues)
	score.Connectivity, issues = e.scoreConnectivity(c, ctx, issues)
	score.Originality, issues = e.scoreOriginality(c, issues)

	score.Total = score.Why + score.Metadata + score.Taxonomy + score.Connectivity + score.Originality
	score.Passing = score.Total >= e.threshold
	score.Issues = issues

	for _, comp := range []struct {
		name  string
		value int
	}{
		{ComponentWhy, score.Why},
		{ComponentMetadata, score.Metadata},
		{ComponentTaxonomy, score.Taxonomy},
		{ComponentConnectivity, score.Connectivity},
		{ComponentOriginality, score.Originality},
	} {
		if comp.value == 0 {
			score.FailingComponents = append(score.FailingComponents, comp.name)
		}
	}
	return score
}

// scoreWhy awards up to 3 points: first-person framing, a reference to an
// active goal (title or root motivation, case-insensitive substring), and
// actionable language.
func (e *Evaluator) scoreWhy(c Candidate, ctx Context, issues []string) (int, []string) {
	combined := strings.ToLower(c.Purpose + "\n" + c.Content)
	points := 0

	if containsAny(combined, firstPersonPhrases) {
		points++
	} else {
		issues = append(issues, "no first-person purpose framing (e.g. \"I am keeping this because...\")")
	}

	goalHit := false
	for _, goal := range ctx.Goals {
		title := strings.ToLower(strings.TrimSpace(goal.Title))
		motivation := strings.ToLower(strings.TrimSpace(goal.Motivation))
		if (title != "" && strings.Contains(combined, title)) ||
			(motivation != "" && strings.Contains(combined, motivation)) {
			goalHit = true
			break
		}
	}
	if goalHit {
		points++
	} else {
		issues = append(issues, "no reference to any active goal or its motivation")
	}

	if containsAny(combined, actionablePhrases) {
		points++
	} else {
		issues = append(issues, "no actionable language (helps / enables / so that I can)")
	}
	return points, issues
}

// scoreMetadata counts the structured fields present: project link, a valid
// maturity status, a valid note type, and a non-empty stakeholder.
func (e *Evaluator) scoreMetadata(c Candidate, issues []string) (int, []string) {
	present := 0
	if strings.TrimSpace(c.Project) != "" {
		present++
	}
	if _, ok := validMaturity[strings.ToLower(strings.TrimSpace(c.Status))]; ok {
		present++
	}
	if _, ok := validNoteType[strings.ToLower(strings.TrimSpace(c.Type))]; ok {
		present++
	}
	if strings.TrimSpace(c.Stakeholder) != "" {
		present++
	}

	switch {
	case present >= 3:
		return 2, issues
	case present == 2:
		return 1, issues
	default:
		return 0, append(issues, fmt.Sprintf("only %d of 4 metadata fields set (project, status, type, stakeholder)", present))
	}
}

// scoreTaxonomy rewards functional (namespaced) tags and penalizes topic
// soup. Over five tags total costs a point.
func (e *Evaluator) scoreTaxonomy(c Candidate, issues []string) (int, []string) {
	functional, topic := 0, 0
	for _, tag := range c.Tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		if taxonomy.ClassifyTag(tag) == taxonomy.TagFunctional {
			functional++
		} else {
			topic++
		}
	}

	points := 0
	switch {
	case functional >= 1 && topic == 0:
		points = 2
	case functional >= 1:
		points = 1
		issues = append(issues, fmt.Sprintf("%d bare topic tags mixed with functional tags", topic))
	default:
		issues = append(issues, "no functional (namespaced) tags such as skill/ or insight/")
	}

	if len(c.Tags) > 5 {
		issues = append(issues, fmt.Sprintf("too many tags (%d, limit 5)", len(c.Tags)))
		if points > 0 {
			points--
		}
	}
	return points, issues
}

// scoreConnectivity classifies declared connections plus [[bracket]]
// references found in the body. Full marks need both an upward link (to a
// MOC or project) and a sideways link.
func (e *Evaluator) scoreConnectivity(c Candidate, ctx Context, issues []string) (int, []string) {
	directions := map[taxonomy.Direction]int{}
	for _, conn := range c.Connections {
		if strings.TrimSpace(conn.Target) == "" {
			continue
		}
		d := taxonomy.ClassifyConnection(conn.Target, conn.Type, ctx.MOCNames, ctx.ProjectNames)
		directions[d]++
	}
	for _, match := range bracketRef.FindAllStringSubmatch(c.Content, -1) {
		d := taxonomy.ClassifyConnection(match[1], "", ctx.MOCNames, ctx.ProjectNames)
		directions[d]++
	}

	total := 0
	for _, n := range directions {
		total += n
	}

	switch {
	case directions[taxonomy.Upward] > 0 && directions[taxonomy.Sideways] > 0:
		return 2, issues
	case total > 0:
		if directions[taxonomy.Upward] == 0 {
			issues = append(issues, "no upward link to a Map of Content or project")
		}
		if directions[taxonomy.Sideways] == 0 {
			issues = append(issues, "no sideways link to a related note")
		}
		return 1, issues
	default:
		return 0, append(issues, "no connections to other notes")
	}
}

// scoreOriginality awards the point when first-person synthesis dominates
// textbook restatement: at least two synthesis phrases (or a synthesis
// ratio above 0.7) and no textbook-pattern majority.
func (e *Evaluator) scoreOriginality(c Candidate, issues []string) (int, []string) {
	combined := strings.ToLower(c.Purpose + "\n" + c.Content)
	synthesis := countMatches(combined, synthesisPhrases)
	textbook := countMatches(combined, textbookPhrases)

	ratio := 0.0
	if synthesis+textbook > 0 {
		ratio = float64(synthesis) / float64(synthesis+textbook)
	}

	if (synthesis >= 2 || ratio > 0.7) && textbook <= synthesis {
		return 1, issues
	}
	if textbook > synthesis {
		return 0, append(issues, "reads like a textbook fact rather than original synthesis")
	}
	return 0, append(issues, "no first-person synthesis (e.g. \"I realized...\", \"this suggests...\")")
}

func containsAny(haystack string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(haystack, phrase) {
			return true
		}
	}
	return false
}

func countMatches(haystack string, phrases []string) int {
	count := 0
	for _, phrase := range phrases {
		count += strings.Count(haystack, phrase)
	}
	return count
}
