// Package transcript post-processes speech-to-text output before it reaches
// retrieval and suggestion generation.
//
// Live transcription reliably mangles domain vocabulary: product names, tier
// names, and document topics get transcribed as whatever common words sound
// closest. The Corrector repairs those using Double Metaphone phonetic
// encoding for candidate filtering and Jaro-Winkler similarity for ranked
// selection, against a configured keyword list.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minTokenLen guards against correcting short function words, which
	// collide phonetically with almost everything.
	minTokenLen = 4
)

// Option configures a Corrector.
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched keyword to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found and matching falls back to pure string similarity.
// Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// Corrector repairs misheard domain keywords in transcript text. It is
// read-only after construction and safe for concurrent use.
type Corrector struct {
	keywords          []string
	keywordSet        map[string]struct{}
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New creates a Corrector for the given keyword vocabulary. Keywords may be
// multi-word phrases.
func New(keywords []string, opts ...Option) *Corrector {
	c := &Corrector{
		keywords:          keywords,
		keywordSet:        make(map[string]struct{}, len(keywords)),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, k := range keywords {
		c.keywordSet[strings.ToLower(k)] = struct{}{}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct replaces misheard keywords in text and returns the corrected text
// plus the number of replacements made. Bigrams are tried before single
// words so a keyword split across two transcribed words is repaired whole.
func (c *Corrector) Correct(text string) (string, int) {
	if len(c.keywords) == 0 || strings.TrimSpace(text) == "" {
		return text, 0
	}

	words := strings.Fields(text)
	var (
		out      []string
		replaced int
	)

	for i := 0; i < len(words); i++ {
		// Bigram first, but never one that would swallow a word that is
		// already correct vocabulary on its own.
		if i+1 < len(words) && !c.isKeyword(words[i]) && !c.isKeyword(words[i+1]) {
			phrase := trimPunct(words[i]) + " " + trimPunct(words[i+1])
			if kw, ok := c.match(phrase); ok {
				out = append(out, kw+trailingPunct(words[i+1]))
				replaced++
				i++
				continue
			}
		}

		word := trimPunct(words[i])
		if kw, ok := c.match(word); ok {
			out = append(out, kw+trailingPunct(words[i]))
			replaced++
			continue
		}
		out = append(out, words[i])
	}

	return strings.Join(out, " "), replaced
}

// isKeyword reports whether the word, stripped of trailing punctuation, is
// already an exact keyword.
func (c *Corrector) isKeyword(word string) bool {
	_, ok := c.keywordSet[strings.ToLower(trimPunct(word))]
	return ok
}

// match finds the keyword most phonetically similar to phrase. Phrases that
// already are a keyword, or are too short to match safely, are left alone.
func (c *Corrector) match(phrase string) (string, bool) {
	lower := strings.ToLower(phrase)
	if len(lower) < minTokenLen {
		return "", false
	}
	if _, exact := c.keywordSet[lower]; exact {
		return "", false
	}

	tokens := strings.Fields(lower)
	inputCodes := metaphoneCodes(tokens)

	var (
		bestKeyword  string
		bestScore    float64
		bestPhonetic bool
	)

	for _, kw := range c.keywords {
		kwLower := strings.ToLower(kw)
		kwTokens := strings.Fields(kwLower)

		phonetic := codesOverlap(inputCodes, metaphoneCodes(kwTokens))
		score := similarity(tokens, kwTokens, lower, kwLower)

		// The relaxed phonetic threshold applies to single tokens only.
		// A multi-word phrase must resemble the keyword almost exactly, or
		// an innocent neighbour word gets swallowed by the replacement.
		threshold := c.fuzzyThreshold
		if phonetic && len(tokens) == 1 {
			threshold = c.phoneticThreshold
		}
		if score < threshold {
			continue
		}

		switch {
		case phonetic:
			if !bestPhonetic || score > bestScore {
				bestKeyword, bestScore, bestPhonetic = kw, score, true
			}
		case !bestPhonetic && score > bestScore:
			bestKeyword, bestScore = kw, score
		}
	}

	if bestKeyword == "" || strings.EqualFold(bestKeyword, phrase) {
		return "", false
	}
	return bestKeyword, true
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score across full strings, the
// space-stripped strings, and (for single-token inputs) every keyword token.
// The multi-strategy comparison keeps multi-word keywords matchable when the
// transcriber merges or splits them. Token-pair scoring is deliberately
// limited to single-token inputs: a multi-word phrase must resemble the
// keyword as a whole, or an innocent neighbour word gets swallowed by the
// replacement.
func similarity(aTokens, bTokens []string, aFull, bFull string) float64 {
	score := matchr.JaroWinkler(aFull, bFull, false)

	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}

	if len(aTokens) == 1 {
		for _, b := range bTokens {
			if s := matchr.JaroWinkler(aTokens[0], b, false); s > score {
				score = s
			}
		}
	}
	return score
}

func trimPunct(w string) string {
	return strings.TrimRight(w, ".,!?;:")
}

func trailingPunct(w string) string {
	return w[len(trimPunct(w)):]
}
