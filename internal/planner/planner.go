package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilolend/lvm/internal/ai"
	"github.com/kilolend/lvm/internal/config"
	"github.com/kilolend/lvm/internal/logger"
	"github.com/kilolend/lvm/internal/types"
	"github.com/rs/zerolog"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidConfig    = errors.New("invalid decision engine configuration")
	ErrNoJSONInResponse = errors.New("no JSON object found in model response")
	ErrInvalidDecision  = errors.New("model decision is invalid")
	ErrOracleFailed     = errors.New("decision oracle failed")
	ErrParamsDropped    = errors.New("model parameters dropped")
)

// Config holds the configuration for creating a DecisionEngine.
type Config struct {
	Risk types.RiskParameters

	// Oracle enables the model-assisted strategy. Nil selects the rule-based strategy only.
	Oracle ai.Oracle
	// ModelSource labels decisions produced by the oracle, e.g. "Bedrock:<model id>".
	ModelSource string

	Now func() time.Time // optional; defaults to time.Now
}

// DecisionEngine produces one leverage decision per operation cycle. The model-assisted path
// always falls back to the rule table, so Decide never fails.
type DecisionEngine struct {
	risk        types.RiskParameters
	oracle      ai.Oracle
	modelSource string
	now         func() time.Time
	logger      zerolog.Logger
}

// NewDecisionEngine validates the thresholds and builds the engine.
func NewDecisionEngine(cfg Config) (*DecisionEngine, error) {
	if err := config.ValidateRiskParameters(cfg.Risk); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if cfg.Oracle != nil && cfg.ModelSource == "" {
		return nil, fmt.Errorf("%w: model source label is required with an oracle", ErrInvalidConfig)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &DecisionEngine{
		risk:        cfg.Risk,
		oracle:      cfg.Oracle,
		modelSource: cfg.ModelSource,
		now:         now,
		logger:      logger.GetForComponent("decision_engine"),
	}
	if e.oracle != nil {
		e.logger.Info().Str("source", e.modelSource).Msg("Model-assisted decisions enabled")
	} else {
		e.logger.Info().Msg("Model disabled, using rule-based decisions")
	}
	return e, nil
}

// ModelAssisted reports whether an oracle is configured.
func (e *DecisionEngine) ModelAssisted() bool {
	return e.oracle != nil
}

// Decide returns the decision for this cycle. market may be nil when market data is unavailable.
func (e *DecisionEngine) Decide(ctx context.Context, snapshot *types.PositionSnapshot, market *types.MarketSnapshot) types.Decision {
	var decision types.Decision
	if e.oracle == nil {
		decision = RuleBased(snapshot, e.risk)
	} else {
		var err error
		decision, err = e.modelDecision(ctx, snapshot, market)
		if err != nil {
			e.logger.Warn().Err(err).Msg("Model analysis failed; falling back to rule-based decision")
			decision = RuleBased(snapshot, e.risk)
		}
	}

	event := e.logger.Info().
		Str("action", string(decision.Action)).
		Float64("confidence", decision.Confidence).
		Str("riskLevel", string(decision.RiskLevel)).
		Str("source", decision.Source).
		Str("reasoning", decision.Reasoning)
	if decision.ExpectedHealthFactor != nil {
		event = event.Float64("expectedHealthFactor", *decision.ExpectedHealthFactor)
	}
	event.Msg("Decision made")

	return decision
}

func (e *DecisionEngine) modelDecision(ctx context.Context, snapshot *types.PositionSnapshot, market *types.MarketSnapshot) (types.Decision, error) {
	prompt, err := BuildPrompt(snapshot, market, e.risk, e.now())
	if err != nil {
		return types.Decision{}, err
	}

	text, err := e.oracle.Complete(ctx, prompt)
	if err != nil {
		return types.Decision{}, errors.Join(ErrOracleFailed, err)
	}

	parsed, err := ParseDecision(text)
	if err != nil {
		e.logger.Debug().Str("response", truncate(text, 500)).Msg("Unparseable model response")
		return types.Decision{}, err
	}
	decision := parsed.Decision
	for _, warning := range parsed.Warnings {
		e.logger.Warn().
			Err(warning).
			Str("action", string(decision.Action)).
			Msg("Model parameters did not match the action shape; dropping them")
	}

	decision.Source = e.modelSource
	return decision, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
