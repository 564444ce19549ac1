package extract

import (
	"encoding/json"
	"strings"

	"arbor/api/internal/nvq"
)

type generatorPayload struct {
	Notes []nvq.Candidate `json:"notes"`
}

// ParseCandidates extracts note candidates from a raw generator response.
// The generator is not trusted to return clean JSON: the first balanced
// top-level JSON object is scanned out of whatever surrounds it (prose,
// markdown fences). A response that yields no parsable object is "zero
// candidates", never an error.
func ParseCandidates(raw string) []nvq.Candidate {
	obj := firstJSONObject(raw)
	if obj == "" {
		return nil
	}

	var payload generatorPayload
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return nil
	}

	candidates := make([]nvq.Candidate, 0, len(payload.Notes))
	for _, c := range payload.Notes {
		if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Content) == "" {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// firstJSONObject returns the first balanced {...} span in s, honoring
// string literals and escapes so braces inside values don't break the
// balance count.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// mergeRefined folds a refinement response into the original candidate.
// Only non-empty fields override; the generator may return a partial
// object touching just the components it was asked to fix.
func mergeRefined(base, refined nvq.Candidate) nvq.Candidate {
	if strings.TrimSpace(refined.Title) != "" {
		base.Title = refined.Title
	}
	if strings.TrimSpace(refined.Content) != "" {
		base.Content = refined.Content
	}
	if strings.TrimSpace(refined.Purpose) != "" {
		base.Purpose = refined.Purpose
	}
	if strings.TrimSpace(refined.Status) != "" {
		base.Status = refined.Status
	}
	if strings.TrimSpace(refined.Type) != "" {
		base.Type = refined.Type
	}
	if strings.TrimSpace(refined.Stakeholder) != "" {
		base.Stakeholder = refined.Stakeholder
	}
	if strings.TrimSpace(refined.Project) != "" {
		base.Project = refined.Project
	}
	if len(refined.Tags) > 0 {
		base.Tags = refined.Tags
	}
	if len(refined.Connections) > 0 {
		base.Connections = refined.Connections
	}
	if strings.TrimSpace(refined.ConsolidateWith) != "" {
		base.ConsolidateWith = refined.ConsolidateWith
	}
	if strings.TrimSpace(refined.MergedContent) != "" {
		base.MergedContent = refined.MergedContent
	}
	return base
}
