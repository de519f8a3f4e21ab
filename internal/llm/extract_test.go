package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	seerrors "se-assistant/pkg/errors"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"raw", `  {"a": 1}  `, `{"a": 1}`},
		{"json fence", "Here you go:\n```json\n{\"a\": 1}\n```\nThanks", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"json fence wins over earlier plain fence", "```\nnot this\n```\n```json\n{\"b\": 2}\n```", `{"b": 2}`},
		{"unterminated json fence", "```json\n{\"a\": 1}", `{"a": 1}`},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestExtractJSONIdempotent(t *testing.T) {
	payloads := []string{
		`{"project_title": "Shop", "requirements": []}`,
		`{"services": [{"service_name": "Azure App Service", "quantity": 2}]}`,
		`[1, 2, 3]`,
	}
	for _, p := range payloads {
		raw := ExtractJSON(p)
		fenced := ExtractJSON("```json\n" + p + "\n```")
		assert.Equal(t, raw, fenced)
		assert.Equal(t, raw, ExtractJSON(raw))
	}
}

func TestDecode(t *testing.T) {
	type doc struct {
		Title string `json:"title"`
	}

	got, err := Decode[doc]("specification", "```json\n{\"title\": \"Shop\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Shop", got.Title)

	_, err = Decode[doc]("specification", "I could not produce JSON, sorry.")
	require.Error(t, err)
	assert.True(t, seerrors.IsMalformed(err))
	assert.Equal(t, seerrors.ErrCodeMalformedResponse, seerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "specification: malformed model response: invalid JSON")

	_, err = Decode[doc]("architecture", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", Preview("abc", 5))
	assert.Equal(t, "ab...", Preview("abcdef", 2))
}
