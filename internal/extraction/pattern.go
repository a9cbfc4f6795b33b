package extraction

import (
	"context"
	"strings"
	"unicode"

	"github.com/doxalabs/doxa/internal/domain"
	"github.com/doxalabs/doxa/internal/similarity"
)

// minStatementLength filters fragments too short to stand alone as beliefs.
// Shorter pieces ("Ratings:", "Three things:") carry no assertable content.
// The floor only applies when content split into several fragments; a short
// undivided statement ("I love coffee") is the whole memory and is kept.
const minStatementLength = 20

// PatternEngine is the deterministic, provider-free extraction engine. The
// failover path routes here whenever the AI provider is down, so ingestion
// never blocks on extraction availability.
type PatternEngine struct{}

func NewPatternEngine() *PatternEngine { return &PatternEngine{} }

// negationCues mark a statement as denying rather than asserting.
var negationCues = []string{"n't", " not ", "never ", "no longer", "anymore", "stopped ", "quit "}

// hedgingCues soften a statement and lower its heuristic confidence.
var hedgingCues = []string{"maybe", "probably", "might", "perhaps", "possibly", "i think", "i guess", "sort of", "kind of"}

// categoryRules map cue words to belief categories. Order matters: earlier
// rules are more specific ("want to learn" is a goal, not a preference).
var categoryRules = []struct {
	category string
	cues     []string
}{
	{"goal", []string{"want to", "wants to", "plan to", "plans to", "aim to", "aims to", "intend to", "intends", "hope to", "hopes to", "goal"}},
	{"preference", []string{"prefer", "favorite", "like", "love", "enjoy", "hate", "dislike", "want"}},
	{"skill", []string{"know how", "can use", "able to", "proficient", "experienced", "skilled", "expert"}},
	{"relationship", []string{"friend", "colleague", "coworker", "partner", "married", "works with", "brother", "sister", "team"}},
	{"opinion", []string{"think", "believe", "feel that", "feels that", "in my opinion", "seems"}},
	{"fact", []string{" is ", " are ", " was ", " were ", " has ", " have ", "lives in", "works at", "born in"}},
}

func (e *PatternEngine) ExtractBeliefs(ctx context.Context, content, agentID, categoryHint string) ([]domain.CandidateBelief, error) {
	var candidates []domain.CandidateBelief
	for _, stmt := range splitStatements(content) {
		category, matched := classify(stmt)
		if !matched && categoryHint != "" {
			category = domain.NormalizeCategory(categoryHint)
		}
		reasoning := "pattern cues classified this as " + category
		if !matched {
			reasoning = "no category cue matched"
		}
		candidates = append(candidates, domain.CandidateBelief{
			Statement:  stmt,
			Category:   category,
			Confidence: heuristicConfidence(stmt, matched),
			Positive:   !hasNegation(stmt),
			Tags:       keywordTags(stmt, 3),
			Reasoning:  reasoning,
		})
	}
	return candidates, nil
}

// Similarity scores two statements by token overlap (Jaccard).
func (e *PatternEngine) Similarity(ctx context.Context, s1, s2 string) (float64, error) {
	return similarity.TokenOverlap(s1, s2), nil
}

// AreConflicting applies the deterministic rule: two statements conflict when
// they share most of their wording but disagree on polarity. Statements in
// distinct specific categories never conflict under pattern rules.
func (e *PatternEngine) AreConflicting(ctx context.Context, s1, s2, cat1, cat2 string) (bool, error) {
	c1, c2 := domain.NormalizeCategory(cat1), domain.NormalizeCategory(cat2)
	if c1 != c2 && specificCategory(c1) && specificCategory(c2) {
		return false, nil
	}
	if similarity.TokenOverlap(stripNegation(s1), stripNegation(s2)) < 0.5 {
		return false, nil
	}
	return hasNegation(s1) != hasNegation(s2), nil
}

func (e *PatternEngine) ExtractCategory(ctx context.Context, statement string) (string, float64, error) {
	category, matched := classify(statement)
	if !matched {
		return category, 0.3, nil
	}
	return category, 0.6, nil
}

func (e *PatternEngine) CalculateConfidence(ctx context.Context, content, statement, contextNote string) (float64, string, error) {
	overlap := similarity.TokenOverlap(content, statement)
	switch {
	case overlap >= 0.8:
		return 0.8, "statement restates the content almost verbatim", nil
	case hasHedging(statement) || hasHedging(content):
		return 0.4, "hedging language weakens support", nil
	case overlap >= 0.4:
		return 0.6, "statement shares substantial wording with the content", nil
	default:
		return 0.5, "statement is loosely supported by the content", nil
	}
}

// IsHealthy always reports true: pattern extraction has no external
// dependency to fail.
func (e *PatternEngine) IsHealthy(ctx context.Context) bool { return true }

// specificCategory reports whether a normalized category is narrow enough to
// rule out conflicts across categories. Unset, general, and unknown are not.
func specificCategory(c string) bool {
	return c != "" && c != "general" && c != "unknown"
}

func classify(statement string) (string, bool) {
	lower := " " + strings.ToLower(statement) + " "
	for _, rule := range categoryRules {
		for _, cue := range rule.cues {
			if strings.Contains(lower, cue) {
				return rule.category, true
			}
		}
	}
	return "general", false
}

func heuristicConfidence(stmt string, matchedCategory bool) float64 {
	if hasHedging(stmt) {
		return 0.4
	}
	if matchedCategory {
		return 0.7
	}
	return 0.5
}

func hasNegation(s string) bool {
	lower := strings.ToLower(s)
	for _, cue := range negationCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func hasHedging(s string) bool {
	lower := strings.ToLower(s)
	for _, cue := range hedgingCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// negationTokens are dropped before comparing statements for conflict, so
// "likes dark mode" and "doesn't like dark mode" overlap on their subject.
var negationTokens = map[string]bool{
	"not": true, "never": true, "no": true, "t": true, "don": true,
	"doesn": true, "isn": true, "aren": true, "won": true, "didn": true,
	"wasn": true, "stopped": true, "anymore": true, "longer": true,
}

func stripNegation(s string) string {
	var kept []string
	for _, tok := range similarity.TokenList(s) {
		if !negationTokens[tok] {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}

// keywordTags picks up to max distinctive tokens as tags, in text order so
// repeated calls on the same statement tag it identically.
func keywordTags(s string, max int) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, tok := range similarity.TokenList(s) {
		if len(tok) < 5 || tagStopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		tags = append(tags, tok)
		if len(tags) == max {
			break
		}
	}
	return tags
}

var tagStopwords = map[string]bool{
	"about": true, "after": true, "their": true, "there": true,
	"these": true, "those": true, "which": true, "would": true,
	"could": true, "should": true, "because": true, "really": true,
	"always": true, "never": true, "still": true, "using": true,
}

// splitStatements breaks memory content into candidate statements: markdown
// list items first, then sentence boundaries, then substantial semicolon
// parts. When the split yields several fragments, those under
// minStatementLength are dropped; a lone statement survives at any length.
func splitStatements(content string) []string {
	var fragments []string
	for _, block := range splitListItems(content) {
		for _, s := range splitSentences(block) {
			for _, part := range splitSemicolons(s) {
				if t := strings.TrimSpace(part); t != "" {
					fragments = append(fragments, t)
				}
			}
		}
	}
	if len(fragments) == 1 {
		return fragments
	}
	var out []string
	for _, part := range fragments {
		if len(part) >= minStatementLength {
			out = append(out, part)
		}
	}
	return out
}

// splitListItems splits on markdown-style list items (- or *) at line starts.
// Non-list text around the items is kept as its own block.
func splitListItems(text string) []string {
	lines := strings.Split(text, "\n")
	hasList := false
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if (strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ")) && len(t) > 2 {
			hasList = true
			break
		}
	}
	if !hasList {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			parts = append(parts, s)
		}
		current.Reset()
	}
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if (strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ")) && len(t) > 2 {
			flush()
			parts = append(parts, strings.TrimSpace(t[2:]))
			continue
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(t)
	}
	flush()
	return parts
}

// splitSentences splits on . ! ? followed by whitespace and an uppercase
// letter, digit, or opening quote. Periods inside numbers and abbreviations
// stay put.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && runes[j] == ' ' {
			j++
		}
		if j == i+1 && j < len(runes) {
			continue
		}
		if j < len(runes) {
			next := runes[j]
			if !unicode.IsUpper(next) && !unicode.IsDigit(next) && next != '(' && next != '"' && next != '\'' {
				continue
			}
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = j
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitSemicolons splits only when every part is substantial, so enumerations
// split but incidental semicolons in short text do not.
func splitSemicolons(text string) []string {
	if !strings.Contains(text, ";") {
		return []string{text}
	}
	raw := strings.Split(text, ";")
	for _, part := range raw {
		if len(strings.TrimSpace(part)) < minStatementLength {
			return []string{text}
		}
	}
	var parts []string
	for _, part := range raw {
		if t := strings.TrimSpace(part); t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}
