package extract

import (
	"fmt"
	"strings"

	"arbor/api/internal/nvq"
)

// The system prompt explains the rubric so the generator aims for passing
// notes on the first pass instead of leaning on refinement.
const extractionSystemPrompt = `You are a note extraction system for a personal knowledge garden. Analyze the provided text and extract atomic notes: one self-contained insight per note.

Every note is scored against a ten-point quality rubric before acceptance:
1. WHY (0-3): state in first person why the note is worth keeping ("I am keeping this because..."), tie it to one of the user's active goals, and use actionable language (helps, enables, so that I can).
2. METADATA (0-2): set a project, a maturity status (Seed, Sapling, or Evergreen), a type (Logic, Technical, or Reflection), and a stakeholder.
3. TAXONOMY (0-2): use namespaced functional tags like task/, skill/, insight/, project/. Avoid bare topic words. Never more than 5 tags.
4. CONNECTIVITY (0-2): link upward to a Map of Content or project AND sideways to at least one related note (types: supports, contradicts, extends, sideways; use example_of for downward links).
5. ORIGINALITY (0-1): write first-person synthesis ("I realized..."), not textbook restatement.

If an insight belongs in an EXISTING NOTE listed in the context, set "consolidateWith" to that note's exact title and provide "mergedContent" with the combined text instead of duplicating it.

If the text contains nothing worth keeping, return {"notes": []}.

Respond with a single JSON object: {"notes": [{"title", "content", "purpose", "status", "type", "stakeholder", "project", "tags": [], "connections": [{"target", "type", "strength"}], "consolidateWith", "mergedContent"}]}`

// buildUserPrompt renders the extraction context and the snapshot.
func buildUserPrompt(ec Context, snapshot string) string {
	var b strings.Builder

	b.WriteString("ACTIVE GOALS:\n")
	if len(ec.Goals) == 0 {
		b.WriteString("(none)\n")
	}
	for _, g := range ec.Goals {
		if g.Motivation != "" {
			fmt.Fprintf(&b, "- %s (because: %s)\n", g.Title, g.Motivation)
		} else {
			fmt.Fprintf(&b, "- %s\n", g.Title)
		}
	}

	b.WriteString("\nMAPS OF CONTENT: ")
	writeNameList(&b, ec.MOCNames)
	b.WriteString("\nPROJECTS: ")
	writeNameList(&b, ec.ProjectNames)
	b.WriteString("\nTAG VOCABULARY: ")
	writeNameList(&b, ec.TagVocabulary)

	b.WriteString("\n\nEXISTING NOTES (consolidate into these instead of duplicating):\n")
	if len(ec.RelatedNotes) == 0 {
		b.WriteString("(none)\n")
	}
	for i, note := range ec.RelatedNotes {
		fmt.Fprintf(&b, "%d. %q: %s\n", i+1, note.Title, excerpt(note.Content, 200))
	}

	b.WriteString("\nTEXT TO ANALYZE:\n")
	b.WriteString(snapshot)
	return b.String()
}

// buildRefinementPrompt asks the generator to fix exactly the components
// that scored zero, with the unchanged context.
func buildRefinementPrompt(ec Context, candidate nvq.Candidate, score nvq.Score) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The note %q scored %d/10 and failed these rubric components: %s.\n\nSpecific issues:\n",
		candidate.Title, score.Total, strings.Join(score.FailingComponents, ", "))
	for _, issue := range score.Issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}

	b.WriteString("\nCurrent note:\n")
	fmt.Fprintf(&b, "title: %s\ncontent: %s\npurpose: %s\nstatus: %s\ntype: %s\nstakeholder: %s\nproject: %s\ntags: %s\n",
		candidate.Title, candidate.Content, candidate.Purpose, candidate.Status, candidate.Type,
		candidate.Stakeholder, candidate.Project, strings.Join(candidate.Tags, ", "))
	for _, conn := range candidate.Connections {
		fmt.Fprintf(&b, "connection: %s (%s)\n", conn.Target, conn.Type)
	}

	b.WriteString("\nACTIVE GOALS:\n")
	for _, g := range ec.Goals {
		fmt.Fprintf(&b, "- %s (because: %s)\n", g.Title, g.Motivation)
	}
	b.WriteString("MAPS OF CONTENT: ")
	writeNameList(&b, ec.MOCNames)
	b.WriteString("\nPROJECTS: ")
	writeNameList(&b, ec.ProjectNames)

	b.WriteString("\n\nRewrite the note to fix the listed issues. Keep everything that already works. Respond with a single JSON object: {\"notes\": [<the revised note>]}")
	return b.String()
}

func writeNameList(b *strings.Builder, names []string) {
	if len(names) == 0 {
		b.WriteString("(none)")
		return
	}
	b.WriteString(strings.Join(names, ", "))
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
