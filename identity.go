package pipeline

import (
	"strconv"
	"strings"
	"unicode"
)

// Slugify lowercases name and collapses every run of whitespace or
// punctuation into a single hyphen. An empty result becomes "unnamed".
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}

// SameName reports whether a and b name the same logical entity: equal
// ignoring case and surrounding whitespace.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// FindStage returns the first stage, in slice order, named name.
func FindStage(name string, stages []Stage) (*Stage, bool) {
	for i := range stages {
		if SameName(stages[i].Name, name) {
			return &stages[i], true
		}
	}
	return nil, false
}

// FindAgent returns the agent named name.
func FindAgent(name string, agents []Agent) (*Agent, bool) {
	for i := range agents {
		if SameName(agents[i].Name, name) {
			return &agents[i], true
		}
	}
	return nil, false
}

// ResolveAgentID returns the id of the agent already named name, or mints
// agent-<slug>. When a differently named agent holds that id (two names
// with one slug), the smallest free suffix from 2 up is appended.
func ResolveAgentID(name string, agents []Agent) string {
	if a, ok := FindAgent(name, agents); ok {
		return a.ID
	}
	taken := make(map[string]bool, len(agents))
	for _, a := range agents {
		taken[a.ID] = true
	}
	return mint("agent-"+Slugify(name), taken)
}

// ResolveStageID mints stage-<level>, suffixed when another stage or a
// retired id already holds it.
func ResolveStageID(level int, stages []Stage, retired ...string) string {
	taken := make(map[string]bool, len(stages)+len(retired))
	for _, s := range stages {
		taken[s.ID] = true
	}
	for _, id := range retired {
		taken[id] = true
	}
	return mint("stage-"+strconv.Itoa(level), taken)
}

func mint(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		id := base + "-" + strconv.Itoa(n)
		if !taken[id] {
			return id
		}
	}
}
