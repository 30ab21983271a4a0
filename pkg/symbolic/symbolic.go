// Package symbolic scores formatting and stylistic markers that are typical of
// generated text. It is deterministic and does no I/O.
package symbolic

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultConnectives is the connective lexicon used when none is configured.
var DefaultConnectives = []string{
	"また", "さらに", "加えて", "つまり", "例えば", "そのため",
	"Furthermore", "Moreover", "In addition", "Additionally", "In conclusion", "Therefore", "For example",
}

var bulletPrefixes = []string{"- ", "* ", "• ", "・"}

const sentenceTerminators = "。！？.!?"

// Weights holds the per-marker weights of the score.
type Weights struct {
	Bold           float64 `mapstructure:"bold" json:"bold"`
	Heading        float64 `mapstructure:"heading" json:"heading"`
	Rule           float64 `mapstructure:"rule" json:"rule"`
	Bullet         float64 `mapstructure:"bullet" json:"bullet"`
	Connective     float64 `mapstructure:"connective" json:"connective"`
	SentenceLength float64 `mapstructure:"sentence_length" json:"sentence_length"`
}

// DefaultWeights returns the default marker weights.
func DefaultWeights() Weights {
	return Weights{
		Bold:           0.3,
		Heading:        0.2,
		Rule:           0.1,
		Bullet:         0.1,
		Connective:     0.2,
		SentenceLength: 0.1,
	}
}

// Config configures a Scorer.
type Config struct {
	Weights             Weights
	SentenceLengthScale float64
	MaxScore            float64
	Connectives         []string
}

// DefaultConfig returns the default scorer configuration.
func DefaultConfig() Config {
	return Config{
		Weights:             DefaultWeights(),
		SentenceLengthScale: 10,
		MaxScore:            1.0,
		Connectives:         DefaultConnectives,
	}
}

// Validate checks that the configuration yields scores in [0, 1].
func (c Config) Validate() error {
	if c.MaxScore <= 0 || c.MaxScore > 1 {
		return fmt.Errorf("symbolic max score must be in (0, 1], got %v", c.MaxScore)
	}
	if c.SentenceLengthScale <= 0 {
		return errors.New("symbolic sentence length scale must be positive")
	}
	w := c.Weights
	for _, v := range []float64{w.Bold, w.Heading, w.Rule, w.Bullet, w.Connective, w.SentenceLength} {
		if v < 0 {
			return fmt.Errorf("symbolic weights must be non-negative, got %v", v)
		}
	}
	return nil
}

// Counts are the raw marker counts of one text.
type Counts struct {
	BoldPairs         int
	Headings          int
	Rules             int
	Bullets           int
	Connectives       int
	AvgSentenceLength float64
}

// Analyze counts the style markers of text using the given connective lexicon.
func Analyze(text string, connectives []string) Counts {
	var c Counts
	c.BoldPairs = strings.Count(text, "**") / 2
	c.Rules = strings.Count(text, "---")

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			c.Headings++
		}
		for _, p := range bulletPrefixes {
			if strings.HasPrefix(line, p) {
				c.Bullets++
				break
			}
		}
	}

	for _, word := range connectives {
		if word != "" {
			c.Connectives += strings.Count(text, word)
		}
	}

	c.AvgSentenceLength = averageSentenceLength(text)
	return c
}

// averageSentenceLength is the mean number of whitespace-separated tokens per
// non-empty sentence.
func averageSentenceLength(text string) float64 {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return strings.ContainsRune(sentenceTerminators, r)
	})
	total, n := 0, 0
	for _, s := range sentences {
		if strings.TrimSpace(s) == "" {
			continue
		}
		total += len(strings.Fields(s))
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// Scorer turns marker counts into a bounded score.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer. Zero-valued fields fall back to defaults.
func NewScorer(cfg Config) (*Scorer, error) {
	def := DefaultConfig()
	if cfg.MaxScore == 0 {
		cfg.MaxScore = def.MaxScore
	}
	if cfg.SentenceLengthScale == 0 {
		cfg.SentenceLengthScale = def.SentenceLengthScale
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if len(cfg.Connectives) == 0 {
		cfg.Connectives = def.Connectives
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Score returns the clipped style score of text.
func (s *Scorer) Score(text string) float64 {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return s.FromCounts(Analyze(text, s.cfg.Connectives))
}

// FromCounts applies the weights to counts and clamps the sum to [0, MaxScore].
func (s *Scorer) FromCounts(c Counts) float64 {
	w := s.cfg.Weights
	score := float64(c.BoldPairs)*w.Bold +
		float64(c.Headings)*w.Heading +
		float64(c.Rules)*w.Rule +
		float64(c.Bullets)*w.Bullet +
		float64(c.Connectives)*w.Connective +
		(c.AvgSentenceLength/s.cfg.SentenceLengthScale)*w.SentenceLength
	if score < 0 {
		return 0
	}
	if score > s.cfg.MaxScore {
		return s.cfg.MaxScore
	}
	return score
}

// MaxScore returns the configured ceiling.
func (s *Scorer) MaxScore() float64 {
	return s.cfg.MaxScore
}
