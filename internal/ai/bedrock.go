/*
This file contains the generative decision oracle backed by AWS Bedrock. The oracle is a black
box to the rest of the bot: a prompt goes in, free text comes out. Parsing the text into a
decision is the planner's job.
*/

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/rs/zerolog"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidConfig   = errors.New("invalid oracle configuration")
	ErrInvokeFailed    = errors.New("model invocation failed")
	ErrInvalidResponse = errors.New("model response is invalid")
	ErrEmptyResponse   = errors.New("model response has no text content")
)

const (
	ANTHROPIC_VERSION   = "bedrock-2023-05-31"
	DEFAULT_MAX_TOKENS  = 2000
	DEFAULT_TEMPERATURE = 0.7
	CONTENT_TYPE_JSON   = "application/json"
)

// Oracle turns a prompt into free text.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// InvokeModelAPI is the subset of the Bedrock runtime client the oracle calls.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockConfig holds the configuration for creating a BedrockOracle.
type BedrockConfig struct {
	Region          string
	ModelID         string
	AccessKeyID     string // optional; with SecretAccessKey selects static credentials
	SecretAccessKey string
	Timeout         time.Duration // optional; defaults to MODEL_TIMEOUT
	MaxTokens       int           // optional; defaults to DEFAULT_MAX_TOKENS
	Temperature     *float64      // optional; defaults to DEFAULT_TEMPERATURE
}

// BedrockOracle invokes an Anthropic model through Bedrock's InvokeModel.
type BedrockOracle struct {
	client      InvokeModelAPI
	modelID     string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      zerolog.Logger
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []anthropicMessage `json:"messages"`
	Temperature      float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewBedrockOracle loads AWS configuration for the region and builds an oracle on a real
// Bedrock runtime client.
func NewBedrockOracle(ctx context.Context, cfg BedrockConfig) (*BedrockOracle, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("%w: region cannot be empty", ErrInvalidConfig)
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load AWS config: %w", ErrInvalidConfig, err)
	}

	return NewBedrockOracleWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg)
}

// NewBedrockOracleWithClient builds an oracle on an existing client.
func NewBedrockOracleWithClient(client InvokeModelAPI, cfg BedrockConfig) (*BedrockOracle, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client cannot be nil", ErrInvalidConfig)
	}
	if cfg.ModelID == "" {
		return nil, fmt.Errorf("%w: model ID cannot be empty", ErrInvalidConfig)
	}

	o := &BedrockOracle{
		client:      client,
		modelID:     cfg.ModelID,
		maxTokens:   cfg.MaxTokens,
		temperature: DEFAULT_TEMPERATURE,
		timeout:     cfg.Timeout,
		logger:      logger.GetForComponent("bedrock_oracle"),
	}
	if o.maxTokens <= 0 {
		o.maxTokens = DEFAULT_MAX_TOKENS
	}
	if cfg.Temperature != nil {
		o.temperature = *cfg.Temperature
	}
	if o.timeout <= 0 {
		o.timeout = config.MODEL_TIMEOUT
	}

	o.logger.Info().Str("model", o.modelID).Msg("Bedrock oracle initialized")
	return o, nil
}

// ModelID returns the configured model.
func (o *BedrockOracle) ModelID() string {
	return o.modelID
}

// Complete sends the prompt as a single user message and returns the first text block.
func (o *BedrockOracle) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: ANTHROPIC_VERSION,
		MaxTokens:        o.maxTokens,
		Messages:         []anthropicMessage{{Role: "user", Content: prompt}},
		Temperature:      o.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %w", ErrInvokeFailed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	out, err := o.client.InvokeModel(callCtx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(o.modelID),
		ContentType: aws.String(CONTENT_TYPE_JSON),
		Accept:      aws.String(CONTENT_TYPE_JSON),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvokeFailed, err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	for _, block := range resp.Content {
		if block.Type != "" && block.Type != "text" {
			continue
		}
		if text := strings.TrimSpace(block.Text); text != "" {
			o.logger.Debug().
				Str("model", o.modelID).
				Dur("latency", time.Since(start)).
				Str("stopReason", resp.StopReason).
				Int("chars", len(text)).
				Msg("Model response received")
			return block.Text, nil
		}
	}
	return "", ErrEmptyResponse
}
