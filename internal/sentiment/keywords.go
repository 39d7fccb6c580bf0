package sentiment

import (
	"strings"
	"unicode"
)

// 关键词表：正值看多，负值看空。单词按 token 匹配，短语按连续 token 匹配。
var defaultKeywords = map[string]float64{
	// bullish
	"bullish":     2,
	"bull":        1.5,
	"moon":        2,
	"mooning":     2,
	"buy":         1.5,
	"buying":      1.5,
	"long":        1,
	"pump":        1.5,
	"pumping":     1.5,
	"breakout":    1.5,
	"rally":       1.5,
	"surge":       1.5,
	"soar":        1.5,
	"soaring":     1.5,
	"gains":       1,
	"ath":         1.5,
	"undervalued": 1.2,
	"accumulate":  1.2,
	"hodl":        1,
	"uptrend":     1.5,
	"green":       0.8,
	"strong":      0.8,
	"adoption":    1,
	"partnership": 1,
	"upgrade":     1,

	"to the moon":   2.5,
	"all time high": 2,
	"buy the dip":   1.5,

	// bearish
	"bearish":     -2,
	"bear":        -1.5,
	"dump":        -1.5,
	"dumping":     -1.5,
	"sell":        -1.5,
	"selling":     -1.5,
	"short":       -1,
	"crash":       -2,
	"crashing":    -2,
	"collapse":    -2,
	"scam":        -2,
	"rug":         -2,
	"rugpull":     -2.5,
	"hack":        -2,
	"hacked":      -2,
	"exploit":     -1.8,
	"plunge":      -1.8,
	"drop":        -1,
	"fall":        -1,
	"overvalued":  -1.2,
	"bubble":      -1.2,
	"fear":        -1,
	"fud":         -1,
	"weak":        -0.8,
	"downtrend":   -1.5,
	"red":         -0.8,
	"avoid":       -1.5,
	"liquidation": -1.5,

	"rug pull":        -2.5,
	"sell off":        -1.5,
	"dead cat bounce": -2,
}

var defaultEmoji = map[string]float64{
	"🚀": 1.5,
	"🌙": 1,
	"📈": 1.2,
	"💎": 0.8,
	"🔥": 0.8,
	"🟢": 0.8,
	"🐂": 1,
	"📉": -1.2,
	"💀": -1.2,
	"🩸": -1.2,
	"🐻": -1,
	"🔴": -0.8,
	"⚠":  -0.8,
	"😱": -1,
}

var negationWords = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "dont": {}, "don't": {}, "doesnt": {},
	"doesn't": {}, "isnt": {}, "isn't": {}, "arent": {}, "aren't": {},
	"wasnt": {}, "wasn't": {}, "wont": {}, "won't": {}, "cannot": {},
	"cant": {}, "can't": {}, "without": {}, "hardly": {}, "neither": {},
	"nor": {}, "nobody": {}, "nothing": {},
}

const (
	negationWindow = 3
	// 被否定的匹配取反并减半："not bullish" 只算轻度看空。
	negationFactor = -0.5
	maxPhraseLen   = 4
)

// lexicon 是合并了默认表与覆盖项后的查询结构。
type lexicon struct {
	words   map[string]float64
	phrases map[string]float64
	emoji   map[string]float64
}

func newLexicon(overrides map[string]float64) lexicon {
	lx := lexicon{
		words:   make(map[string]float64),
		phrases: make(map[string]float64),
		emoji:   make(map[string]float64, len(defaultEmoji)),
	}
	add := func(key string, weight float64) {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return
		}
		if isEmojiToken(key) {
			lx.emoji[key] = weight
			return
		}
		if strings.Contains(key, " ") {
			if weight == 0 {
				delete(lx.phrases, key)
				return
			}
			lx.phrases[key] = weight
			return
		}
		if weight == 0 {
			delete(lx.words, key)
			return
		}
		lx.words[key] = weight
	}
	for k, v := range defaultKeywords {
		add(k, v)
	}
	for k, v := range defaultEmoji {
		lx.emoji[k] = v
	}
	for k, v := range overrides {
		add(k, v)
	}
	return lx
}

type keywordMatch struct {
	term    string
	weight  float64
	negated bool
}

// scan returns every keyword/emoji hit in text, flagging hits that have a
// negation token within negationWindow tokens before them.
func (lx lexicon) scan(text string, negation bool) []keywordMatch {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	var out []keywordMatch
	for i := 0; i < len(tokens); {
		if w, ok := lx.emoji[tokens[i]]; ok {
			out = append(out, keywordMatch{term: tokens[i], weight: w})
			i++
			continue
		}
		term, weight, span := lx.matchAt(tokens, i)
		if span == 0 {
			i++
			continue
		}
		m := keywordMatch{term: term, weight: weight}
		if negation {
			m.negated = negatedAt(tokens, i)
		}
		out = append(out, m)
		i += span
	}
	return out
}

// matchAt prefers the longest phrase starting at i.
func (lx lexicon) matchAt(tokens []string, i int) (string, float64, int) {
	for n := maxPhraseLen; n >= 2; n-- {
		if i+n > len(tokens) {
			continue
		}
		phrase := strings.Join(tokens[i:i+n], " ")
		if w, ok := lx.phrases[phrase]; ok {
			return phrase, w, n
		}
	}
	if w, ok := lx.words[tokens[i]]; ok {
		return tokens[i], w, 1
	}
	return "", 0, 0
}

func negatedAt(tokens []string, idx int) bool {
	start := idx - negationWindow
	if start < 0 {
		start = 0
	}
	for j := idx - 1; j >= start; j-- {
		if _, ok := negationWords[tokens[j]]; ok {
			return true
		}
	}
	return false
}

// tokenize lower-cases text into word tokens and single-rune symbol tokens.
// Apostrophes stay inside words so "don't" survives as one token.
func tokenize(text string) []string {
	var (
		tokens []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		case r == '\'' || r == '’':
			if cur.Len() > 0 {
				cur.WriteRune('\'')
			}
		case unicode.Is(unicode.Mn, r) || r == '‍':
			// variation selectors / zero-width joiners
		case unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isEmojiToken(s string) bool {
	runes := []rune(s)
	return len(runes) == 1 && unicode.IsSymbol(runes[0])
}
