/*

This file contains the decision model: the closed action set and one parameter variant per action.

Field names follow the task intake document, so these types use camelCase JSON tags.

*/

package types

import (
	"errors"
	"fmt"
)

// Action is one of the closed set of decisions.
type Action string

const (
	ActionHold          Action = "HOLD"
	ActionLeverageUp    Action = "LEVERAGE_UP"
	ActionLeverageDown  Action = "LEVERAGE_DOWN"
	ActionEmergencyStop Action = "EMERGENCY_STOP"
	ActionRebalance     Action = "REBALANCE"
)

// Valid reports whether the action belongs to the closed set.
func (a Action) Valid() bool {
	switch a {
	case ActionHold, ActionLeverageUp, ActionLeverageDown, ActionEmergencyStop, ActionRebalance:
		return true
	}
	return false
}

// TaskType is a decision action or the liquidity preparation raised by the vault tracker.
type TaskType string

const (
	TaskHold              TaskType = TaskType(ActionHold)
	TaskLeverageUp        TaskType = TaskType(ActionLeverageUp)
	TaskLeverageDown      TaskType = TaskType(ActionLeverageDown)
	TaskEmergencyStop     TaskType = TaskType(ActionEmergencyStop)
	TaskRebalance         TaskType = TaskType(ActionRebalance)
	TaskPrepareWithdrawal TaskType = "PREPARE_WITHDRAWAL"
)

// ActionParams is implemented only by the parameter variants below.
type ActionParams interface {
	TaskType() TaskType
	sealed()
}

// HoldParams carries nothing.
type HoldParams struct{}

// LeverageUpParams sizes one more turn of the leverage loop.
type LeverageUpParams struct {
	BorrowAmount float64 `json:"borrowAmount"` // USDT
	StakeAmount  string  `json:"stakeAmount"`
	SupplyAmount string  `json:"supplyAmount"`
	SwapToKaia   float64 `json:"swapToKaia"` // USDT swapped back into KAIA
}

// LeverageDownParams suggests how much to unwind.
type LeverageDownParams struct {
	UnstakeAmount float64 `json:"unstakeAmount"` // stKAIA
	RepayAmount   float64 `json:"repayAmount"`   // USDT
}

// EmergencyStopParams records the state that triggered a full unwind.
type EmergencyStopParams struct {
	CurrentHF float64 `json:"currentHF"`
	Urgency   string  `json:"urgency"`
}

// RebalanceParams carries nothing; the checklist variant is chosen from the health factor.
type RebalanceParams struct{}

// PrepareWithdrawalParams describes a vault liquidity deficit.
type PrepareWithdrawalParams struct {
	Deficit         float64 `json:"deficit"`
	RequiredAssets  float64 `json:"requiredAssets"`
	CurrentLiquid   float64 `json:"currentLiquid"`
	PendingRequests int     `json:"pendingRequests"`
}

func (HoldParams) TaskType() TaskType              { return TaskHold }
func (LeverageUpParams) TaskType() TaskType        { return TaskLeverageUp }
func (LeverageDownParams) TaskType() TaskType      { return TaskLeverageDown }
func (EmergencyStopParams) TaskType() TaskType     { return TaskEmergencyStop }
func (RebalanceParams) TaskType() TaskType         { return TaskRebalance }
func (PrepareWithdrawalParams) TaskType() TaskType { return TaskPrepareWithdrawal }

func (HoldParams) sealed()              {}
func (LeverageUpParams) sealed()        {}
func (LeverageDownParams) sealed()      {}
func (EmergencyStopParams) sealed()     {}
func (RebalanceParams) sealed()         {}
func (PrepareWithdrawalParams) sealed() {}

var (
	ErrInvalidAction     = errors.New("action is not in the closed action set")
	ErrInvalidConfidence = errors.New("confidence must be within [0,1]")
	ErrEmptyReasoning    = errors.New("reasoning is empty")
	ErrInvalidRiskLevel  = errors.New("risk level is invalid")
	ErrParamsMismatch    = errors.New("parameters do not match action")
)

// Decision is the decision engine's output for one cycle.
type Decision struct {
	Action               Action       `json:"action"`
	Confidence           float64      `json:"confidence"`
	Reasoning            string       `json:"reasoning"`
	RiskLevel            RiskLevel    `json:"riskLevel"`
	ExpectedHealthFactor *float64     `json:"expectedHealthFactor,omitempty"`
	Parameters           ActionParams `json:"parameters,omitempty"`

	// Source names the strategy that produced the decision ("Rule-Based" or "Bedrock:<model>").
	Source string `json:"-"`
}

// Validate checks that every required field is populated and consistent.
func (d Decision) Validate() error {
	if !d.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, d.Action)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: %f", ErrInvalidConfidence, d.Confidence)
	}
	if d.Reasoning == "" {
		return ErrEmptyReasoning
	}
	if !d.RiskLevel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRiskLevel, d.RiskLevel)
	}
	if d.Parameters != nil && d.Parameters.TaskType() != TaskType(d.Action) {
		return fmt.Errorf("%w: %s carries %s parameters", ErrParamsMismatch, d.Action, d.Parameters.TaskType())
	}
	return nil
}

// Float64Ptr is a convenience for optional numeric fields.
func Float64Ptr(v float64) *float64 {
	return &v
}
