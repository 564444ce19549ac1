// Package taxonomy classifies tags and note connections. All functions are
// pure; callers supply whatever vocabulary context they have.
package taxonomy

import "strings"

// TagKind distinguishes namespaced functional tags from bare topic tags.
type TagKind string

const (
	TagFunctional TagKind = "functional"
	TagTopic      TagKind = "topic"
)

// Direction places a connection in the note hierarchy.
type Direction string

const (
	Upward   Direction = "upward"
	Sideways Direction = "sideways"
	Downward Direction = "downward"
)

// Connection types that imply a sideways relation.
var sidewaysTypes = map[string]struct{}{
	"supports":    {},
	"contradicts": {},
	"extends":     {},
	"sideways":    {},
}

// ClassifyTag reports whether a tag carries a functional namespace prefix
// (task/, skill/, insight/, project/ and the like) or is a bare topic word.
// A leading '#' is ignored.
func ClassifyTag(tag string) TagKind {
	name := strings.TrimPrefix(strings.TrimSpace(tag), "#")
	slash := strings.Index(name, "/")
	if slash > 0 && slash < len(name)-1 {
		return TagFunctional
	}
	return TagTopic
}

// ClassifyConnection resolves the direction of a link. A target that names
// a known Map of Content or Project, or that follows the MOC naming
// pattern, is upward regardless of the declared type; example_of is
// downward; the sideways types and anything unrecognized are sideways.
func ClassifyConnection(target, connType string, mocNames, projectNames []string) Direction {
	if IsHubTarget(target, mocNames, projectNames) {
		return Upward
	}
	connType = strings.ToLower(strings.TrimSpace(connType))
	if connType == "example_of" {
		return Downward
	}
	if _, ok := sidewaysTypes[connType]; ok {
		return Sideways
	}
	if connType == "upward" {
		return Upward
	}
	return Sideways
}

// IsHubTarget reports whether a connection target names a hub note: an
// exact (case-insensitive) MOC or Project name, or the "MOC/..." /
// "... MOC" naming pattern.
func IsHubTarget(target string, mocNames, projectNames []string) bool {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return false
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "moc/") || strings.HasSuffix(lower, " moc") {
		return true
	}
	for _, name := range mocNames {
		if strings.EqualFold(trimmed, name) {
			return true
		}
	}
	for _, name := range projectNames {
		if strings.EqualFold(trimmed, name) {
			return true
		}
	}
	return false
}

// NormalizeTag lowercases a tag and strips the optional '#' so storage and
// lookups converge on one spelling.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}
