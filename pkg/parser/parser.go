// Package parser extracts one structured object from free-form model output.
//
// Parse never panics and never evaluates model output as code. The pipeline is:
// drop <think> blocks, strip a fenced code block, take the outermost {...}
// span, parse it strictly, then try one repair pass. When all of that fails
// the result is an empty Payload, which callers must record as unparseable.
package parser

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
)

var (
	thinkTags = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fence     = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\n?(.*?)```")
)

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`, "＂", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
)

// Payload is the object extracted from a model response.
type Payload struct {
	Fields map[string]any
	// Repaired is set when the strict parse failed and the repair pass succeeded.
	Repaired bool
}

// Empty reports whether nothing could be extracted.
func (p Payload) Empty() bool {
	return len(p.Fields) == 0
}

// Float returns the first of keys holding a number or a numeric string.
func (p Payload) Float(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := p.Fields[k]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case float64:
			return x, true
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// String returns the first of keys holding a non-empty value as text.
// Lists of strings are joined with newlines.
func (p Payload) String(keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := p.Fields[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		case []any:
			parts := make([]string, 0, len(x))
			for _, item := range x {
				if str, ok := item.(string); ok {
					parts = append(parts, str)
				}
			}
			s = strings.Join(parts, "\n")
		default:
			b, err := json.Marshal(x)
			if err != nil {
				continue
			}
			s = string(b)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// Parse extracts a Payload from text. It returns an empty Payload when no
// object can be recovered.
func Parse(text string) (p Payload) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic while parsing model output", "panic", r)
			p = Payload{}
		}
	}()

	span, ok := ExtractObject(text)
	if !ok {
		return Payload{}
	}

	if fields, ok := decodeObject(span); ok {
		return Payload{Fields: fields}
	}

	normalized := quoteReplacer.Replace(span)
	if fields, ok := decodeObject(normalized); ok {
		return Payload{Fields: fields, Repaired: true}
	}
	repaired, err := jsonrepair.JSONRepair(normalized)
	if err != nil {
		return Payload{}
	}
	if fields, ok := decodeObject(repaired); ok {
		return Payload{Fields: fields, Repaired: true}
	}
	return Payload{}
}

// ExtractObject returns the outermost {...} span of text after removing think
// blocks and a surrounding code fence.
func ExtractObject(text string) (string, bool) {
	text = RemoveThinkTags(text)
	text = StripCodeFence(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// RemoveThinkTags removes <think> tags and everything in between them.
func RemoveThinkTags(input string) string {
	return thinkTags.ReplaceAllString(input, "")
}

// StripCodeFence returns the body of the first fenced code block, or the
// trimmed input when there is none. An unterminated opening fence is dropped.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl != -1 {
			return strings.TrimSpace(s[nl+1:])
		}
	}
	return s
}

func decodeObject(s string) (map[string]any, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(s), &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}
