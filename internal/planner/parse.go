package planner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kilolend/lvm/internal/types"
)

type modelDecision struct {
	Action               string          `json:"action"`
	Confidence           *float64        `json:"confidence"`
	Reasoning            string          `json:"reasoning"`
	RiskLevel            string          `json:"riskLevel"`
	ExpectedHealthFactor *float64        `json:"expectedHealthFactor"`
	Parameters           json.RawMessage `json:"parameters"`
}

// ExtractJSON returns the span from the first '{' to the last '}' in the text.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", ErrNoJSONInResponse
	}
	return text[start : end+1], nil
}

// ParsedDecision is a validated model decision plus the non-fatal problems found while decoding it.
type ParsedDecision struct {
	Decision types.Decision
	// Warnings wrap ErrParamsDropped for parameters that did not fit the action's shape.
	Warnings []error
}

// ParseDecision decodes the model's free text into a validated Decision. Parameters that do not
// fit the action's shape are dropped and reported as warnings; the decision itself is still usable.
func ParseDecision(text string) (ParsedDecision, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return ParsedDecision{}, err
	}

	var m modelDecision
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return ParsedDecision{}, fmt.Errorf("%w: %w", ErrInvalidDecision, err)
	}
	if m.Confidence == nil {
		return ParsedDecision{}, fmt.Errorf("%w: confidence is missing", ErrInvalidDecision)
	}

	decision := types.Decision{
		Action:               types.Action(strings.ToUpper(strings.TrimSpace(m.Action))),
		Confidence:           *m.Confidence,
		Reasoning:            strings.TrimSpace(m.Reasoning),
		RiskLevel:            types.RiskLevel(strings.ToUpper(strings.TrimSpace(m.RiskLevel))),
		ExpectedHealthFactor: m.ExpectedHealthFactor,
	}
	if err := decision.Validate(); err != nil {
		return ParsedDecision{}, errors.Join(ErrInvalidDecision, err)
	}

	parsed := ParsedDecision{Decision: decision}
	params, err := decodeParams(decision.Action, m.Parameters)
	if err != nil {
		parsed.Warnings = append(parsed.Warnings, fmt.Errorf("%w: %w", ErrParamsDropped, err))
	}
	parsed.Decision.Parameters = params
	return parsed, nil
}

// decodeParams maps the raw parameter bag onto the action's variant.
func decodeParams(action types.Action, raw json.RawMessage) (types.ActionParams, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var (
		params types.ActionParams
		err    error
	)
	switch action {
	case types.ActionLeverageUp:
		var p types.LeverageUpParams
		err = json.Unmarshal(trimmed, &p)
		params = p
	case types.ActionLeverageDown:
		var p types.LeverageDownParams
		err = json.Unmarshal(trimmed, &p)
		params = p
	case types.ActionEmergencyStop:
		var p types.EmergencyStopParams
		err = json.Unmarshal(trimmed, &p)
		params = p
	default:
		// HOLD and REBALANCE carry no parameters.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s parameters: %w", action, err)
	}
	return params, nil
}
