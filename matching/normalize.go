package matching

import (
	"regexp"
	"strings"
)

// promoTokens are promotional fragments search results decorate titles with.
// Ordered longest-first so compound phrases go before their components.
var promoTokens = []string{
	"official music video",
	"official audio",
	"official video",
	"official lyric video",
	"music video",
	"lyric video",
	"lyrics",
	"visualizer",
	"official",
	"mv",
	"hd",
	"4k",
}

var (
	bracketRe    = regexp.MustCompile(`[(\[（【][^)\]）】]*[)\]）】]`)
	featRe       = regexp.MustCompile(`\b(?:featuring|feat\.?|ft\.?)(?:\s+|\z)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	dashColonRe  = regexp.MustCompile(`[–—:：‐]`)
)

// Normalize canonicalizes a free-text title or artist string for comparison.
// Lower-cases, folds dashes and colons to spaces, drops promotional tokens
// (whole bracketed groups when the group is pure decoration), rewrites
// feat/ft variants to the single token "feat" and collapses whitespace.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = dashColonRe.ReplaceAllString(s, " ")
	s = featRe.ReplaceAllString(s, "feat ")

	// Bracketed groups: strip promo vocabulary inside; if nothing else
	// remains the whole group goes, otherwise keep the inner text.
	s = bracketRe.ReplaceAllStringFunc(s, func(group string) string {
		inner := strings.Trim(group, "([（【)]）】")
		for _, tok := range promoTokens {
			inner = strings.ReplaceAll(inner, tok, " ")
		}
		if strings.TrimSpace(inner) == "" {
			return " "
		}
		return " " + inner + " "
	})

	for _, tok := range promoTokens {
		s = strings.ReplaceAll(s, tok, " ")
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Tokenize normalizes then splits on whitespace, dropping tokens shorter
// than 2 characters and the literal token "feat".
func Tokenize(text string) []string {
	fields := strings.Fields(Normalize(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 || f == "feat" {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
