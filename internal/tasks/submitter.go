/*
This file delivers tasks to the intake API (POST {base}/bot/activity).

Delivery is a single attempt. A transport error, a non-2xx status or an envelope without
success=true is returned to the caller as ErrSubmissionFailed; nothing is retried here.
*/

package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/kilolend/lvm/internal/types"
	"github.com/rs/zerolog"
)

var ErrSubmissionFailed = errors.New("task submission failed")

const (
	ACTIVITY_PATH     = "/bot/activity"
	API_KEY_HEADER    = "X-Api-Key"
	MAX_RESPONSE_BODY = 1 << 16
)

// Submitter delivers a built task.
type Submitter interface {
	Submit(ctx context.Context, task *types.Task) error
}

// HTTPConfig holds the configuration for creating an HTTPSubmitter.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // optional; defaults to config.TASK_SUBMIT_TIMEOUT
	Client  *http.Client  // optional
}

// HTTPSubmitter posts tasks to the intake API.
type HTTPSubmitter struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPSubmitter validates the configuration and builds an HTTPSubmitter.
func NewHTTPSubmitter(cfg HTTPConfig) (*HTTPSubmitter, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: intake base URL is required", ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.TASK_SUBMIT_TIMEOUT
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSubmitter{
		url:     base + ACTIVITY_PATH,
		apiKey:  cfg.APIKey,
		timeout: timeout,
		client:  client,
		logger:  logger.GetForComponent("task_submitter"),
	}, nil
}

// Submit performs one POST of the task document.
func (s *HTTPSubmitter) Submit(ctx context.Context, task *types.Task) error {
	if task == nil {
		return fmt.Errorf("%w: nil task", ErrSubmissionFailed)
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("%w: encode task %s: %w", ErrSubmissionFailed, task.TaskID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrSubmissionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(API_KEY_HEADER, s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MAX_RESPONSE_BODY))
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %w", ErrSubmissionFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrSubmissionFailed, resp.StatusCode, truncate(string(respBody), 200))
	}

	var envelope types.IntakeResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%w: unreadable response: %w", ErrSubmissionFailed, err)
	}
	if !envelope.Success {
		return fmt.Errorf("%w: API returned unsuccessful response: %s", ErrSubmissionFailed, envelope.Message)
	}

	s.logger.Debug().Str("taskId", task.TaskID).Msg("Intake API accepted task")
	return nil
}

// DryRunSubmitter logs tasks instead of posting them.
type DryRunSubmitter struct {
	logger zerolog.Logger
}

// NewDryRunSubmitter builds a DryRunSubmitter.
func NewDryRunSubmitter() *DryRunSubmitter {
	return &DryRunSubmitter{logger: logger.GetForComponent("task_submitter")}
}

// Submit logs the full task document and always succeeds.
func (s *DryRunSubmitter) Submit(_ context.Context, task *types.Task) error {
	if task == nil {
		return fmt.Errorf("%w: nil task", ErrSubmissionFailed)
	}
	doc, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("%w: encode task %s: %w", ErrSubmissionFailed, task.TaskID, err)
	}
	s.logger.Info().
		Str("taskId", task.TaskID).
		RawJSON("task", doc).
		Msg("Dry run: task not submitted")
	return nil
}

// Emitter logs a task summary and hands the task to a Submitter.
type Emitter struct {
	submitter Submitter
	logger    zerolog.Logger
}

// NewEmitter wraps a Submitter.
func NewEmitter(submitter Submitter) (*Emitter, error) {
	if submitter == nil {
		return nil, fmt.Errorf("%w: submitter is required", ErrInvalidConfig)
	}
	return &Emitter{submitter: submitter, logger: logger.GetForComponent("task_emitter")}, nil
}

// Emit submits the task. Failures are returned to the caller, which decides whether to continue.
func (e *Emitter) Emit(ctx context.Context, task *types.Task) error {
	if task == nil {
		return fmt.Errorf("%w: nil task", ErrSubmissionFailed)
	}
	e.logger.Info().
		Str("taskId", task.TaskID).
		Str("taskType", string(task.TaskType)).
		Str("description", task.Description).
		Float64("confidence", task.ConfidenceScore).
		Str("risk", string(task.RiskAssessment)).
		Str("status", string(task.Status)).
		Int("steps", len(task.Steps)).
		Msg("Task created")

	if err := e.submitter.Submit(ctx, task); err != nil {
		e.logger.Error().Err(err).Str("taskId", task.TaskID).Msg("Failed to submit task")
		return err
	}
	e.logger.Info().Str("taskId", task.TaskID).Msg("Task submitted successfully")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
