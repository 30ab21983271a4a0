package prompts

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Format selects how structured data is rendered inside a prompt.
type Format string

const (
	// FormatTSV renders feature rows as tab-separated values (default).
	FormatTSV Format = "tsv"
	// FormatYAML renders feature rows as a YAML mapping.
	FormatYAML Format = "yaml"
)

// ParseFormat converts a configuration value into a Format. Unknown values
// fall back to TSV.
func ParseFormat(s string) Format {
	if Format(s) == FormatYAML {
		return FormatYAML
	}
	return FormatTSV
}

// Feature is one named numeric signal shown to the model.
type Feature struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Value       float64 `yaml:"value"`
}

// renderFeatures renders features in the requested format.
func renderFeatures(features []Feature, format Format) (string, error) {
	if format == FormatYAML {
		return ToPromptYAML(features)
	}
	rows := make([][]string, 0, len(features))
	for _, f := range features {
		rows = append(rows, []string{f.Name, f.Description, strconv.FormatFloat(f.Value, 'f', 2, 64)})
	}
	return ToPromptTSV([]string{"feature", "description", "value"}, rows)
}

// ToPromptTSV renders a header and rows as tab-separated values.
// TSV keeps prompts compact and is easy for models to read.
func ToPromptTSV(header []string, rows [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'

	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, row := range rows {
		if len(row) != len(header) {
			return "", fmt.Errorf("row has %d fields, header has %d", len(row), len(header))
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ToPromptYAML renders data as YAML.
func ToPromptYAML(data interface{}) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// logPrompt logs the generated prompt at debug level when
// DEBUG_LLM_PROMPTS=true.
func logPrompt(logger *slog.Logger, name, prompt string) {
	if logger == nil || os.Getenv("DEBUG_LLM_PROMPTS") != "true" {
		return
	}
	logger.Debug("Generated prompt", "prompt", name, "chars", len(prompt))
	fmt.Fprintf(os.Stderr, "=== %s PROMPT ===\n%s\n=== END PROMPT ===\n", name, prompt)
}
