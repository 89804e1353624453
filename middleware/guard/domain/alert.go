package domain

import "time"

type ViolationType string

const (
	ViolationRateLimitExceeded  ViolationType = "RATE_LIMIT_EXCEEDED"
	ViolationUnauthorizedAccess ViolationType = "UNAUTHORIZED_ACCESS"
	ViolationUnusualSequence    ViolationType = "UNUSUAL_API_SEQUENCE"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Alert é criado só pelo motor de detecção e nunca alterado.
type Alert struct {
	ID            string         `json:"id"`
	ClientID      string         `json:"clientId"`
	ViolationType ViolationType  `json:"violationType"`
	Severity      Severity       `json:"severity"`
	Timestamp     time.Time      `json:"timestamp"`
	Details       map[string]any `json:"details,omitempty"`
}
