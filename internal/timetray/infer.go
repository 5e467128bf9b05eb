package timetray

import (
	"regexp"
	"strings"

	"github.com/monosense-io/synergyflow/internal/events"
)

// targetPattern matches references like "incident #123", "task INC-42"
// or "project 7" in free-form descriptions. The id token must contain a
// digit so prose like "incident response" is not mistaken for a reference.
var targetPattern = regexp.MustCompile(`(?i)\b(incident|task|project)\s*#?\s*([A-Za-z-]*\d[A-Za-z0-9-]*)`)

var keywordTypes = map[string]events.EntityType{
	"incident": events.EntityIncident,
	"task":     events.EntityTask,
	"project":  events.EntityProject,
}

// InferTargets extracts entity references from a description. It is a
// convenience for submissions that name their work inline rather than
// passing explicit targets; duplicates collapse to one reference.
func InferTargets(description string) []events.TargetRef {
	matches := targetPattern.FindAllStringSubmatch(description, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	targets := make([]events.TargetRef, 0, len(matches))
	for _, m := range matches {
		entityType, ok := keywordTypes[strings.ToLower(m[1])]
		if !ok {
			continue
		}
		ref := events.TargetRef{Type: entityType, EntityID: m[2]}
		if seen[ref.Key()] {
			continue
		}
		seen[ref.Key()] = true
		targets = append(targets, ref)
	}
	return targets
}
