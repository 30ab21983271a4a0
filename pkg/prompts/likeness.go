package prompts

import (
	"fmt"
	"log/slog"
	"strings"
)

// LikenessInput holds everything shown to the model for one answer.
type LikenessInput struct {
	StudentID    string
	QuestionID   string
	QuestionText string
	AnswerText   string

	ReferenceMax  float64
	ReferenceMean float64
	PeerMax       float64
	PeerMean      float64
	Symbolic      float64

	ClusterID  int
	HasCluster bool

	Format Format
	Logger *slog.Logger
}

// Likeness builds the per-answer evaluation prompt. The model is asked to
// reply with {"score": number in [0,1], "rationale": string}.
func Likeness(in LikenessInput) (string, error) {
	features := []Feature{
		{Name: "reference_similarity_max", Description: "highest overlap with a machine-written reference answer", Value: in.ReferenceMax},
		{Name: "reference_similarity_mean", Description: "mean overlap with machine-written reference answers", Value: in.ReferenceMean},
		{Name: "peer_similarity_max", Description: "highest overlap with another student's answer", Value: in.PeerMax},
		{Name: "peer_similarity_mean", Description: "mean overlap with other students' answers", Value: in.PeerMean},
		{Name: "symbolic_score", Description: "formatting and connective density typical of generated text", Value: in.Symbolic},
	}
	table, err := renderFeatures(features, in.Format)
	if err != nil {
		return "", fmt.Errorf("failed to render features: %w", err)
	}

	question := strings.TrimSpace(in.QuestionText)
	if question == "" {
		question = "(question text not available)"
	}
	cluster := "(not clustered)"
	if in.HasCluster {
		cluster = fmt.Sprintf("%d", in.ClusterID)
	}

	prompt := fmt.Sprintf(`You are an expert in educational assessment and in detecting template answers written by generative AI.
Below is one student's answer together with several measured features.
Using all of this information, judge how likely it is that the answer was produced by a generative AI model
and explain why.

<STUDENT_ID>
%s
</STUDENT_ID>

<QUESTION id="%s">
%s
</QUESTION>

<ANSWER>
%s
</ANSWER>

<FEATURES>
%s</FEATURES>

<STYLE_CLUSTER>
%s
</STYLE_CLUSTER>

Instructions:
1. Give a score from 0.0 (clearly human) to 1.0 (clearly AI-generated template).
2. Explain the score, considering:
   - structure that is too tidy (introduction, body and conclusion all perfectly in place)
   - stock phrases and a positive bias typical of AI assistants
   - uniform style (sentence length, vocabulary)
   - examples that are overly typical or very similar to other students' answers
3. Reply with JSON only, in exactly this form and with no other text:
{"score": 0.0, "rationale": "reason for the score"}
`, in.StudentID, in.QuestionID, question, strings.TrimSpace(in.AnswerText), table, cluster)

	logPrompt(in.Logger, "likeness", prompt)
	return prompt, nil
}
