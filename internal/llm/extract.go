package llm

import (
	"encoding/json"
	"strings"

	seerrors "se-assistant/pkg/errors"
)

const (
	jsonFence = "```json"
	fence     = "```"
)

// ExtractJSON locates the JSON payload in a model response. A ```json block
// wins over a plain ``` block, which wins over the raw text. An unterminated
// fence runs to the end of the text.
func ExtractJSON(text string) string {
	if i := strings.Index(text, jsonFence); i >= 0 {
		return strings.TrimSpace(untilFence(text[i+len(jsonFence):]))
	}
	if i := strings.Index(text, fence); i >= 0 {
		return strings.TrimSpace(untilFence(text[i+len(fence):]))
	}
	return strings.TrimSpace(text)
}

func untilFence(s string) string {
	if j := strings.Index(s, fence); j >= 0 {
		return s[:j]
	}
	return s
}

// Decode extracts the JSON payload from text and unmarshals it into a T.
// Failures are reported as a MalformedResponseError for stage.
func Decode[T any](stage, text string) (*T, error) {
	payload := ExtractJSON(text)
	if payload == "" {
		return nil, seerrors.NewMalformedResponseError(stage, "empty response", text, nil)
	}

	var out T
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, seerrors.NewMalformedResponseError(stage, "invalid JSON", Preview(payload, 500), err)
	}
	return &out, nil
}
