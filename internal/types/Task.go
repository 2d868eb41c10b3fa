/*

This file contains the task document handed to the operator intake API.

*/

package types

// TaskStatus tells the operator how urgently to act.
type TaskStatus string

const (
	StatusPendingOperator      TaskStatus = "PENDING_OPERATOR"
	StatusUrgentOperatorAction TaskStatus = "URGENT_OPERATOR_ACTION"
)

// Task is a structured instruction for the external operator. Timestamps are unix milliseconds.
type Task struct {
	TaskID      string     `json:"taskId"`
	Timestamp   int64      `json:"timestamp"`
	UpdatedAt   int64      `json:"updatedAt"`
	UserAddress string     `json:"userAddress"`
	TaskType    TaskType   `json:"taskType"`
	Status      TaskStatus `json:"status"`
	Description string     `json:"description"`

	AIReasoning     string    `json:"aiReasoning"`
	StrategyType    string    `json:"strategyType"`
	ConfidenceScore float64   `json:"confidenceScore"`
	RiskAssessment  RiskLevel `json:"riskAssessment"`

	HealthFactorBefore float64 `json:"healthFactorBefore"`
	HealthFactorAfter  float64 `json:"healthFactorAfter"`
	LeverageRatio      float64 `json:"leverageRatio"`
	TotalCollateralUSD float64 `json:"totalCollateralUSD"`
	TotalDebtUSD       float64 `json:"totalDebtUSD"`

	Steps      []string     `json:"steps"`
	Parameters ActionParams `json:"parameters"`

	RetryCount int    `json:"retryCount"`
	BotVersion string `json:"botVersion"`
	AIModel    string `json:"aiModel"`
}

// IntakeResponse is the envelope returned by the intake API.
type IntakeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
}
