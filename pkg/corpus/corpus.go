// Package corpus loads the inputs of a likeness run: student answers,
// reference answers, rubrics and explicit rescoring targets.
package corpus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"github.com/soundprediction/likeness/pkg/shingle"
	"github.com/soundprediction/likeness/pkg/types"
)

// answerRow is one student in the wide YAML answers layout.
type answerRow struct {
	StudentID string            `yaml:"student_id"`
	Answers   map[string]string `yaml:"answers"`
}

// LoadAnswers reads the answers file at path. YAML files hold one row per
// student with a question-to-text map; parquet files hold one long row per
// answer. Texts are normalized. Answers are returned ordered by (question,
// student).
func LoadAnswers(path string) ([]types.Answer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, types.NewInputDataError("answers", err)
	}

	var answers []types.Answer
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		answers, err = readYAMLAnswers(path)
	case ".parquet":
		answers, err = parquet.ReadFile[types.Answer](path)
	default:
		err = fmt.Errorf("unsupported answers format %q", ext)
	}
	if err != nil {
		return nil, types.NewInputDataError("answers", err)
	}

	seen := make(map[types.TaskKey]struct{}, len(answers))
	for i := range answers {
		a := &answers[i]
		a.StudentID = strings.TrimSpace(a.StudentID)
		a.QuestionID = strings.TrimSpace(a.QuestionID)
		if err := a.Validate(); err != nil {
			return nil, types.NewInputDataError("answers", fmt.Errorf("row %d: %w", i, err))
		}
		if _, dup := seen[a.Key()]; dup {
			return nil, types.NewInputDataError("answers", fmt.Errorf("duplicate answer %s", a.Key()))
		}
		seen[a.Key()] = struct{}{}
		a.Text = shingle.Normalize(a.Text)
	}

	slices.SortFunc(answers, func(a, b types.Answer) int {
		return types.CompareTaskKeys(a.Key(), b.Key())
	})
	return answers, nil
}

func readYAMLAnswers(path string) ([]types.Answer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []answerRow
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var answers []types.Answer
	for i, row := range rows {
		if strings.TrimSpace(row.StudentID) == "" {
			return nil, fmt.Errorf("row %d: %w", i, types.ErrEmptyStudentID)
		}
		for q, text := range row.Answers {
			answers = append(answers, types.Answer{StudentID: row.StudentID, QuestionID: q, Text: text})
		}
	}
	return answers, nil
}

// Questions returns the distinct question ids of answers in numeric order.
func Questions(answers []types.Answer) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range answers {
		if _, ok := seen[a.QuestionID]; ok {
			continue
		}
		seen[a.QuestionID] = struct{}{}
		out = append(out, a.QuestionID)
	}
	slices.SortFunc(out, types.CompareQuestionIDs)
	return out
}

// ByQuestion groups answers by question id, keeping their order.
func ByQuestion(answers []types.Answer) map[string][]types.Answer {
	out := make(map[string][]types.Answer)
	for _, a := range answers {
		out[a.QuestionID] = append(out[a.QuestionID], a)
	}
	return out
}

// referenceRecord is a structured reference file entry.
type referenceRecord struct {
	RefID string         `json:"ref_id" yaml:"ref_id"`
	Text  string         `json:"text" yaml:"text"`
	Meta  map[string]any `json:"meta" yaml:"meta"`
}

// LoadReferences reads dir/<question>/ for each question. Markdown and text
// files become one reference named after the file stem; JSON and YAML files
// hold one record or a list of records. A missing directory yields no
// references for that question and is logged.
func LoadReferences(dir string, questions []string, logger *slog.Logger) (map[string][]types.ReferenceAnswer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(map[string][]types.ReferenceAnswer, len(questions))
	if dir == "" {
		logger.Warn("no references directory configured, reference similarity will be zero")
		return out, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		logger.Warn("references directory not found, reference similarity will be zero", "dir", dir)
		return out, nil
	}

	for _, q := range questions {
		qdir := filepath.Join(dir, q)
		entries, err := os.ReadDir(qdir)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("no references for question", "question_id", q, "dir", qdir)
			continue
		}
		if err != nil {
			return nil, types.NewInputDataError("references", err)
		}

		var refs []types.ReferenceAnswer
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(qdir, e.Name())
			loaded, err := readReferenceFile(path, q)
			if err != nil {
				return nil, types.NewInputDataError("references", err)
			}
			refs = append(refs, loaded...)
		}
		if len(refs) == 0 {
			logger.Warn("no references for question", "question_id", q, "dir", qdir)
		}
		out[q] = refs
	}
	return out, nil
}

func readReferenceFile(path, questionID string) ([]types.ReferenceAnswer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	switch ext {
	case ".md", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		text := shingle.Normalize(string(data))
		if text == "" {
			return nil, nil
		}
		return []types.ReferenceAnswer{{QuestionID: questionID, RefID: stem, Text: text}}, nil
	case ".json", ".yaml", ".yml":
		records, err := decodeReferenceRecords(path, ext == ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		var refs []types.ReferenceAnswer
		for i, r := range records {
			text := shingle.Normalize(r.Text)
			if text == "" {
				continue
			}
			id := r.RefID
			if id == "" {
				id = stem
				if len(records) > 1 {
					id = fmt.Sprintf("%s-%d", stem, i)
				}
			}
			refs = append(refs, types.ReferenceAnswer{QuestionID: questionID, RefID: id, Text: text, Meta: r.Meta})
		}
		return refs, nil
	}
	return nil, nil
}

// decodeReferenceRecords accepts a single record or a list of records.
func decodeReferenceRecords(path string, isJSON bool) ([]referenceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	unmarshal := yaml.Unmarshal
	if isJSON {
		unmarshal = json.Unmarshal
	}

	var list []referenceRecord
	if err := unmarshal(trimmed, &list); err == nil {
		return list, nil
	}
	var one referenceRecord
	if err := unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []referenceRecord{one}, nil
}

// LoadRubrics reads dir/<question>.txt for each question. The first
// paragraph is the question text and the rest is the rubric. Questions
// without a file get a placeholder rubric.
func LoadRubrics(dir string, questions []string, logger *slog.Logger) (map[string]types.Rubric, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(map[string]types.Rubric, len(questions))
	for _, q := range questions {
		placeholder := types.Rubric{QuestionID: q, QuestionText: "Question " + q}
		if dir == "" {
			out[q] = placeholder
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, q+".txt"))
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("no rubric for question, using placeholder", "question_id", q)
			out[q] = placeholder
			continue
		}
		if err != nil {
			return nil, types.NewInputDataError("rubrics", err)
		}
		out[q] = parseRubric(q, string(data))
	}
	return out, nil
}

func parseRubric(questionID, raw string) types.Rubric {
	text := shingle.Normalize(raw)
	question, rubric, _ := strings.Cut(text, "\n\n")
	question = strings.TrimSpace(question)
	if question == "" {
		question = "Question " + questionID
	}
	return types.Rubric{QuestionID: questionID, QuestionText: question, Text: strings.TrimSpace(rubric)}
}

// LoadTargets reads a YAML list of {student_id, question_id} entries naming
// the answers a selected-mode run rescores.
func LoadTargets(path string) ([]types.TaskKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewInputDataError("targets", err)
	}
	var keys []types.TaskKey
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, types.NewInputDataError("targets", fmt.Errorf("failed to parse %s: %w", path, err))
	}
	for i, k := range keys {
		if k.StudentID == "" || k.QuestionID == "" {
			return nil, types.NewInputDataError("targets", fmt.Errorf("entry %d: student_id and question_id are required", i))
		}
	}
	return keys, nil
}
