package delegation

import (
	"context"
	"unicode"

	"github.com/jllopis/agora/pkg/errors"
)

// Decision names the agent chosen for a request.
type Decision struct {
	Agent  string
	Score  int
	Reason string
}

// Decider picks the remote agent that should handle query.
type Decider interface {
	Decide(ctx context.Context, query string, candidates []Candidate) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, query string, candidates []Candidate) (Decision, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, query string, candidates []Candidate) (Decision, error) {
	return f(ctx, query, candidates)
}

// Weights applied by SkillMatcher.
const (
	tagWeight  = 3
	nameWeight = 2
	textWeight = 1
)

// SkillMatcher scores candidates by the overlap between the query words and
// their skill tags, skill names and descriptions. Ties go to the candidate
// listed first.
type SkillMatcher struct {
	// MinScore is the lowest score accepted; below it Decide fails.
	MinScore int
}

// Decide returns the best scoring candidate.
func (m SkillMatcher) Decide(_ context.Context, query string, candidates []Candidate) (Decision, error) {
	words := tokenize(query)
	if len(words) == 0 {
		return Decision{}, errors.InvalidInput("empty query")
	}
	minScore := m.MinScore
	if minScore < 1 {
		minScore = 1
	}
	best := Decision{}
	for _, candidate := range candidates {
		score, reason := scoreCandidate(words, candidate)
		if score > best.Score {
			best = Decision{Agent: candidate.Name, Score: score, Reason: reason}
		}
	}
	if best.Score < minScore {
		return Decision{}, errors.Reasoning("no remote agent matches the request", nil).
			WithContext("candidates", len(candidates))
	}
	return best, nil
}

func scoreCandidate(words map[string]bool, candidate Candidate) (int, string) {
	score := 0
	reason := ""
	match := func(text string, weight int, label string) {
		for word := range tokenize(text) {
			if words[word] {
				score += weight
				if reason == "" {
					reason = label + " " + word
				}
			}
		}
	}
	for _, skill := range candidate.Skills {
		for _, tag := range skill.Tags {
			match(tag, tagWeight, "tag")
		}
		match(skill.Name, nameWeight, "skill")
		match(skill.Description, textWeight, "description")
		for _, example := range skill.Examples {
			match(example, textWeight, "example")
		}
	}
	match(candidate.Name, nameWeight, "name")
	match(candidate.Description, textWeight, "description")
	return score, reason
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "you": true, "what": true, "can": true,
	"please": true, "with": true, "this": true, "that": true, "are": true, "is": true,
	"me": true, "a": true, "an": true, "of": true, "to": true, "it": true,
}

// tokenize lowercases text into a set of words, splitting agent style names
// like TellTimeAgent into their parts.
func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	var current []rune
	flush := func() {
		if len(current) > 1 {
			word := string(current)
			if !stopWords[word] {
				words[word] = true
			}
		}
		current = current[:0]
	}
	var prev rune
	for _, r := range text {
		switch {
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			current = append(current, unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current = append(current, unicode.ToLower(r))
		default:
			flush()
		}
		prev = r
	}
	flush()
	return words
}
