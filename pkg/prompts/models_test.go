package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatYAML, ParseFormat("yaml"))
	assert.Equal(t, FormatTSV, ParseFormat("tsv"))
	assert.Equal(t, FormatTSV, ParseFormat("toml"))
}

func TestToPromptTSV(t *testing.T) {
	out, err := ToPromptTSV([]string{"a", "b"}, [][]string{{"1", "x y"}, {"2", "z"}})
	require.NoError(t, err)
	assert.Equal(t, "a\tb\n1\tx y\n2\tz\n", out)

	_, err = ToPromptTSV([]string{"a", "b"}, [][]string{{"only"}})
	assert.Error(t, err)
}

func TestToPromptYAML(t *testing.T) {
	out, err := ToPromptYAML([]Feature{{Name: "symbolic_score", Description: "d", Value: 0.25}})
	require.NoError(t, err)
	assert.Contains(t, out, "name: symbolic_score")
	assert.Contains(t, out, "value: 0.25")
}

func TestLikeness(t *testing.T) {
	in := LikenessInput{
		StudentID:     "S07",
		QuestionID:    "Q3",
		QuestionText:  "Explain photosynthesis.",
		AnswerText:    "  Plants turn light into sugar.  ",
		ReferenceMax:  0.812,
		ReferenceMean: 0.4,
		PeerMax:       0.3,
		PeerMean:      0.1,
		Symbolic:      0.55,
		ClusterID:     2,
		HasCluster:    true,
	}

	t.Run("tsv features", func(t *testing.T) {
		p, err := Likeness(in)
		require.NoError(t, err)
		assert.Contains(t, p, "S07")
		assert.Contains(t, p, `<QUESTION id="Q3">`)
		assert.Contains(t, p, "Explain photosynthesis.")
		assert.Contains(t, p, "<ANSWER>\nPlants turn light into sugar.\n</ANSWER>")
		assert.Contains(t, p, "reference_similarity_max\t")
		assert.Contains(t, p, "\t0.81\n")
		assert.Contains(t, p, "<STYLE_CLUSTER>\n2\n</STYLE_CLUSTER>")
		assert.Contains(t, p, `{"score": 0.0, "rationale": "reason for the score"}`)
	})

	t.Run("yaml features and no cluster", func(t *testing.T) {
		in := in
		in.Format = FormatYAML
		in.HasCluster = false
		in.QuestionText = ""
		p, err := Likeness(in)
		require.NoError(t, err)
		assert.Contains(t, p, "name: peer_similarity_max")
		assert.Contains(t, p, "(not clustered)")
		assert.Contains(t, p, "(question text not available)")
	})
}

func TestCluster(t *testing.T) {
	rubric := strings.Repeat("あ", 900)
	p := Cluster(ClusterInput{
		QuestionID:   "Q1",
		QuestionText: "Describe a STEAM project.",
		RubricText:   rubric,
		Samples:      []string{"first answer", "second answer"},
	})

	assert.Contains(t, p, `<QUESTION id="Q1">`)
	assert.Contains(t, p, strings.Repeat("あ", 800)+"\n</RUBRIC_EXCERPT>")
	assert.NotContains(t, p, strings.Repeat("あ", 801))
	assert.Contains(t, p, "first answer\n\n---\n\nsecond answer")
	assert.Contains(t, p, `count="2"`)
	assert.Contains(t, p, `"templateness_score"`)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "", Excerpt("abc", 0))
	assert.Equal(t, "abc", Excerpt("abc", 5))
	assert.Equal(t, "日本", Excerpt("日本語", 2))
}
