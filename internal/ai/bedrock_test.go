package ai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBedrock struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeBedrock) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestNewBedrockOracleWithClientValidation(t *testing.T) {
	_, err := NewBedrockOracleWithClient(nil, BedrockConfig{ModelID: "m"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBedrockOracleWithClient(&fakeBedrock{}, BedrockConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBedrockOracle(context.Background(), BedrockConfig{ModelID: "m"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCompleteSendsAnthropicPayload(t *testing.T) {
	fake := &fakeBedrock{body: `{"content":[{"type":"text","text":"{\"action\":\"HOLD\"}"}],"stop_reason":"end_turn"}`}
	o, err := NewBedrockOracleWithClient(fake, BedrockConfig{ModelID: "apac.anthropic.test"})
	require.NoError(t, err)

	text, err := o.Complete(context.Background(), "analyze")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"HOLD"}`, text)

	require.NotNil(t, fake.input)
	assert.Equal(t, "apac.anthropic.test", aws.ToString(fake.input.ModelId))
	assert.Equal(t, CONTENT_TYPE_JSON, aws.ToString(fake.input.ContentType))

	var sent anthropicRequest
	require.NoError(t, json.Unmarshal(fake.input.Body, &sent))
	assert.Equal(t, ANTHROPIC_VERSION, sent.AnthropicVersion)
	assert.Equal(t, DEFAULT_MAX_TOKENS, sent.MaxTokens)
	assert.Equal(t, DEFAULT_TEMPERATURE, sent.Temperature)
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, "user", sent.Messages[0].Role)
	assert.Equal(t, "analyze", sent.Messages[0].Content)
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeBedrock
		want error
	}{
		{"invoke error", &fakeBedrock{err: errors.New("throttled")}, ErrInvokeFailed},
		{"not json", &fakeBedrock{body: "oops"}, ErrInvalidResponse},
		{"no content", &fakeBedrock{body: `{"content":[]}`}, ErrEmptyResponse},
		{"blank text", &fakeBedrock{body: `{"content":[{"type":"text","text":"  "}]}`}, ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewBedrockOracleWithClient(tt.fake, BedrockConfig{ModelID: "m"})
			require.NoError(t, err)
			_, err = o.Complete(context.Background(), "p")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
