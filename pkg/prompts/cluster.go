package prompts

import (
	"fmt"
	"log/slog"
	"strings"
)

// DefaultRubricExcerpt is the number of runes of rubric text included.
const DefaultRubricExcerpt = 800

// SampleSeparator separates sample answers in the cluster prompt.
const SampleSeparator = "\n\n---\n\n"

// ClusterInput holds the sampled answers of one style cluster.
type ClusterInput struct {
	QuestionID    string
	QuestionText  string
	RubricText    string
	RubricExcerpt int
	Samples       []string
	Logger        *slog.Logger
}

// Cluster builds the cluster summary prompt. The model is asked to reply with
// {"summary": string, "templateness_score": number in [0,1], "rationale": string}.
func Cluster(in ClusterInput) string {
	limit := in.RubricExcerpt
	if limit <= 0 {
		limit = DefaultRubricExcerpt
	}
	rubric := Excerpt(strings.TrimSpace(in.RubricText), limit)
	if rubric == "" {
		rubric = "(rubric not available)"
	}
	question := strings.TrimSpace(in.QuestionText)
	if question == "" {
		question = "(question text not available)"
	}

	prompt := fmt.Sprintf(`You are an expert in educational assessment and writing-style analysis.
The answers below were written by different students for the same question.
They were grouped together because their style is similar.

<QUESTION id="%s">
%s
</QUESTION>

<RUBRIC_EXCERPT>
%s
</RUBRIC_EXCERPT>

<SAMPLE_ANSWERS count="%d">
%s
</SAMPLE_ANSWERS>

Tasks:
1. Summarize what characterizes the answers in this cluster:
   - content (what they write about)
   - structure (paragraphing and flow of argument)
   - style (politeness, vocabulary, stock phrases)
2. Score from 0.0 to 1.0 how closely these answers resemble template answers written by a
   generative AI model such as ChatGPT or Gemini. 1.0 means very template-like; 0.0 means
   human, with natural variation between answers.
3. Explain the score so that a teacher can follow it.

Reply with JSON only, in exactly this form and with no other text:
{"summary": "summary of the cluster", "templateness_score": 0.0, "rationale": "explanation"}
`, in.QuestionID, question, rubric, len(in.Samples), strings.Join(in.Samples, SampleSeparator))

	logPrompt(in.Logger, "cluster", prompt)
	return prompt
}

// Excerpt returns the first n runes of s.
func Excerpt(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
