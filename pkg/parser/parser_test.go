package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("fenced json", func(t *testing.T) {
		p := Parse("```json\n{\"score\": 0.8, \"comment\": \"x\"}\n```")
		require.False(t, p.Empty())
		score, ok := p.Float("score")
		require.True(t, ok)
		assert.Equal(t, 0.8, score)
		comment, ok := p.String("comment")
		require.True(t, ok)
		assert.Equal(t, "x", comment)
		assert.False(t, p.Repaired)
	})

	t.Run("plain object with surrounding prose", func(t *testing.T) {
		p := Parse("Sure! Here is my verdict: {\"score\": 0.25, \"rationale\": \"varied\"} Hope it helps.")
		score, ok := p.Float("score")
		require.True(t, ok)
		assert.Equal(t, 0.25, score)
	})

	t.Run("fence without language tag", func(t *testing.T) {
		p := Parse("```\n{\"score\": 1}\n```")
		score, ok := p.Float("score")
		require.True(t, ok)
		assert.Equal(t, 1.0, score)
	})

	t.Run("fence in the middle of text", func(t *testing.T) {
		p := Parse("Analysis follows.\n```json\n{\"summary\": \"s\", \"ai_template_likeness\": 0.4}\n```\nDone.")
		v, ok := p.Float("templateness_score", "ai_template_likeness")
		require.True(t, ok)
		assert.Equal(t, 0.4, v)
	})

	t.Run("smart quotes are repaired", func(t *testing.T) {
		p := Parse("{“score”: 0.6, “comment”: “ok”}")
		require.False(t, p.Empty())
		assert.True(t, p.Repaired)
		score, _ := p.Float("score")
		assert.Equal(t, 0.6, score)
	})

	t.Run("single quoted dict literal is repaired", func(t *testing.T) {
		p := Parse("{'score': 0.3, 'comment': 'looks human'}")
		require.False(t, p.Empty())
		comment, ok := p.String("comment")
		require.True(t, ok)
		assert.Equal(t, "looks human", comment)
	})

	t.Run("think block is dropped", func(t *testing.T) {
		p := Parse("<think>maybe {\"score\": 0.1}</think>{\"score\": 0.9}")
		score, ok := p.Float("score")
		require.True(t, ok)
		assert.Equal(t, 0.9, score)
	})

	t.Run("numeric string score", func(t *testing.T) {
		p := Parse(`{"score": " 0.7 "}`)
		score, ok := p.Float("score")
		require.True(t, ok)
		assert.Equal(t, 0.7, score)
	})
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"not json at all",
		"no braces here [1, 2, 3]",
		"}{",
		"{",
		"}",
		"```json\n```",
		"```",
		"{\"score\": }",
		"[\"a\", \"b\"]",
		"{\"nested\": {\"deep\": [1, 2, {\"x\": null}]}}",
		"\x00\xff\xfe{",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			assert.NotPanics(t, func() {
				Parse(in)
			})
		})
	}

	t.Run("no braces is empty", func(t *testing.T) {
		assert.True(t, Parse("no braces here").Empty())
		assert.True(t, Parse("").Empty())
	})
}

func TestPayloadAccessors(t *testing.T) {
	p := Payload{Fields: map[string]any{
		"score":    "high",
		"likeness": 0.5,
		"bullets":  []any{"one", "two"},
		"empty":    "  ",
	}}

	v, ok := p.Float("score", "likeness")
	require.True(t, ok)
	assert.Equal(t, 0.5, v)

	_, ok = p.Float("missing")
	assert.False(t, ok)

	s, ok := p.String("empty", "bullets")
	require.True(t, ok)
	assert.Equal(t, "one\ntwo", s)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}"))
	assert.Equal(t, "plain", StripCodeFence("  plain  "))
}
