// Package generator builds prompt text for recording sessions.
package generator

import (
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/verte-zerg/keyprofile/internal/model"
)

// DefaultPunctSet is used when a practice config leaves the set empty.
const DefaultPunctSet = ".,;:!?"

// Generator produces randomized prompt text.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Words selects count words uniformly and applies caps/punctuation rules.
func (g *Generator) Words(words []string, count int, capsPct, punctPct float64, punctSet []rune) []string {
	if len(words) == 0 || count <= 0 {
		return nil
	}
	result := make([]string, 0, count)
	for i := 0; i < count; i++ {
		word := words[g.rnd.Intn(len(words))]
		word = applyCaps(g.rnd, word, capsPct)
		word = applyPunct(g.rnd, word, punctPct, punctSet)
		result = append(result, word)
	}
	return result
}

// Prompt builds a single-line prompt from a practice config.
func (g *Generator) Prompt(words []string, cfg model.PracticeConfig) string {
	set := cfg.PunctSet
	if set == "" {
		set = DefaultPunctSet
	}
	return strings.Join(g.Words(words, cfg.Words, cfg.CapsPct, cfg.PunctPct, []rune(set)), " ")
}

func applyCaps(rnd *rand.Rand, word string, capsPct float64) string {
	if capsPct <= 0 {
		return word
	}
	if rnd.Float64() > capsPct {
		return word
	}
	runes := []rune(word)
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func applyPunct(rnd *rand.Rand, word string, punctPct float64, punctSet []rune) string {
	if punctPct <= 0 || len(punctSet) == 0 {
		return word
	}
	if rnd.Float64() > punctPct {
		return word
	}
	return word + string(punctSet[rnd.Intn(len(punctSet))])
}
