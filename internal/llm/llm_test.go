package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	Slug string `json:"slug"`
}

func TestDecodeStrict(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid", `{"slug":"pixel-8"}`, "pixel-8", false},
		{"surrounding whitespace", "\n {\"slug\":\"pixel-8\"} \n", "pixel-8", false},
		{"empty", "   ", "", true},
		{"not json", "pixel-8", "", true},
		{"unknown field", `{"slug":"pixel-8","extra":1}`, "", true},
		{"trailing document", `{"slug":"a"}{"slug":"b"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeStrict[reply](tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Slug)
		})
	}
}

func TestGenerateJSON(t *testing.T) {
	stub := NewStubGenerator(`{"slug":"galaxy-s24"}`, nil)

	got, err := GenerateJSON[reply](context.Background(), stub, Request{Purpose: PurposeNormalize, Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "galaxy-s24", got.Slug)

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, PurposeNormalize, calls[0].Purpose)
}

func TestGenerateJSON_EmptyCompletion(t *testing.T) {
	_, err := GenerateJSON[reply](context.Background(), NewStubGenerator("", nil), Request{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestStubGenerator_Error(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewStubGenerator("", boom).Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)
}

func TestOpenAIGenerator_BuildRequest(t *testing.T) {
	g := NewOpenAIGenerator(OpenAIOptions{APIKey: "k", Model: "gpt-4o-mini", MaxTokens: 4096}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	t.Run("schema constrained", func(t *testing.T) {
		schema := json.RawMessage(`{"type":"object"}`)
		req := g.buildRequest(Request{System: "sys", Prompt: "user", SchemaName: "device", Schema: schema, Temperature: 0.4})

		require.Len(t, req.Messages, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Content)
		assert.Equal(t, float32(0.4), req.Temperature)
		assert.Equal(t, 4096, req.MaxTokens)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, req.ResponseFormat.Type)
		assert.True(t, req.ResponseFormat.JSONSchema.Strict)
		assert.Equal(t, "device", req.ResponseFormat.JSONSchema.Name)
	})

	t.Run("plain text at zero temperature", func(t *testing.T) {
		req := g.buildRequest(Request{Prompt: "pick"})

		require.Len(t, req.Messages, 1)
		assert.Nil(t, req.ResponseFormat)
		assert.Greater(t, req.Temperature, float32(0))
		assert.Less(t, req.Temperature, float32(1e-30))
	})
}
