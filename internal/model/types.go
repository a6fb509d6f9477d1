package model

import (
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Cycle     int       `json:"cycle,omitempty"`
}

// Task is a pending automation task fetched from the executor registry.
type Task struct {
	ID         string               `json:"id"`
	SubAccount string               `json:"sub_account"`
	ChainID    int64                `json:"chain_id"`
	Metadata   SubscriptionMetadata `json:"metadata"`
}

// SubscriptionMetadata carries the recurring transfer parameters.
type SubscriptionMetadata struct {
	Every          string `json:"every"`
	Receiver       string `json:"receiver"`
	TransferAmount string `json:"transfer_amount"`
}

type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "pending"
	WorkflowRunning    WorkflowStatus = "running"
	WorkflowSuccessful WorkflowStatus = "successful"
	WorkflowFailed     WorkflowStatus = "failed"
	WorkflowCancelled  WorkflowStatus = "cancelled"
)

// Terminal reports whether the backend will not move the workflow any further.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowSuccessful, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// Continues reports whether a poller should keep waiting on this status.
// Unknown statuses continue; pollers bound them with attempts or a deadline.
func (s WorkflowStatus) Continues() bool {
	return !s.Terminal()
}

type WorkflowState struct {
	TaskID  string          `json:"task_id"`
	Status  WorkflowStatus  `json:"status"`
	Outcome WorkflowOutcome `json:"outcome"`
}

type WorkflowOutcome struct {
	TxHash  string `json:"tx_hash,omitempty"`
	Message string `json:"message,omitempty"`
}

// CallType is the Safe operation byte.
type CallType uint8

const (
	CallTypeCall         CallType = 0
	CallTypeDelegateCall CallType = 1
)

// Call is one low-level call returned by the execution backend.
type Call struct {
	Operation CallType `json:"operation"`
	To        string   `json:"to"`
	Value     string   `json:"value"`
	Data      string   `json:"data"`
}

// Executable is the single batched payload that the executor signs.
type Executable struct {
	CallType CallType `json:"call_type"`
	To       string   `json:"to"`
	Value    string   `json:"value"`
	Data     string   `json:"data"`
}

type ChainBalance struct {
	ChainID      int64    `json:"chain_id"`
	Name         string   `json:"name"`
	Balance      *big.Int `json:"balance"`
	TokenAddress string   `json:"token_address"`
}

type RebalanceAction struct {
	Source      ChainBalance `json:"source"`
	Destination ChainBalance `json:"destination"`
	Amount      *big.Int     `json:"amount"`
}

type YieldData struct {
	Protocol      string          `json:"protocol"`
	APY           decimal.Decimal `json:"apy"`
	TVL           string          `json:"tvl"`
	MarketAddress string          `json:"market_address"`
	TokenAddress  string          `json:"token_address"`
}

type RebalanceOpportunity struct {
	From   YieldData `json:"from"`
	To     YieldData `json:"to"`
	Amount *big.Int  `json:"amount"`
}

// Market is a yield market as reported by the yield backend.
type Market struct {
	Address string          `json:"address"`
	APY     decimal.Decimal `json:"apy"`
	TVL     string          `json:"tvl"`
}

type Position struct {
	Market  string `json:"market"`
	Balance string `json:"balance"`
}

// BridgeRoute is a quoted bridging path. Raw is passed back verbatim when the
// bridge transactions are built.
type BridgeRoute struct {
	PID int64           `json:"pid"`
	Raw json.RawMessage `json:"-"`
}

// SwapRoute is a quoted swap path, returned to the backend unchanged.
type SwapRoute struct {
	Raw json.RawMessage `json:"-"`
}

type BridgeStatus struct {
	SourceStatus      string `json:"source_status"`
	DestinationStatus string `json:"destination_status"`
}

// Settled reports whether both bridge legs have stopped moving.
func (b BridgeStatus) Settled() bool {
	return legDone(b.SourceStatus) && legDone(b.DestinationStatus)
}

// Succeeded reports whether both legs completed.
func (b BridgeStatus) Succeeded() bool {
	return legSucceeded(b.SourceStatus) && legSucceeded(b.DestinationStatus)
}

func legSucceeded(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "complete", "success", "successful", "done":
		return true
	default:
		return false
	}
}

func legDone(s string) bool {
	if legSucceeded(s) {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "failed", "failure", "refunded", "cancelled", "canceled", "reverted":
		return true
	default:
		return false
	}
}

type TxStatus struct {
	Status        string `json:"status"`
	Confirmations int64  `json:"confirmations"`
}

// Settled reports whether the transaction is mined or definitively failed.
func (t TxStatus) Settled() bool {
	if t.Confirmations > 0 {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(t.Status)) {
	case "success", "successful", "confirmed", "failed", "reverted":
		return true
	default:
		return false
	}
}

// ProposedAction is what the decision oracle is asked to approve.
type ProposedAction struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Detail  any    `json:"detail,omitempty"`
}

type DecisionRequest struct {
	Kind     string           `json:"kind"`
	Snapshot any              `json:"snapshot"`
	Actions  []ProposedAction `json:"actions"`
}

type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

type ActionDecision struct {
	ID         string          `json:"id"`
	Verdict    Verdict         `json:"verdict"`
	Confidence decimal.Decimal `json:"confidence"`
	Rationale  string          `json:"rationale"`
}

type DecisionResponse struct {
	Decisions []ActionDecision `json:"decisions"`
	Rationale string           `json:"rationale"`
}

type OutcomeKind string

const (
	OutcomeSkipped    OutcomeKind = "skipped"
	OutcomeSuccessful OutcomeKind = "successful"
	OutcomeFailed     OutcomeKind = "failed"
	OutcomeCancelled  OutcomeKind = "cancelled"
	OutcomeRejected   OutcomeKind = "rejected"
	OutcomeError      OutcomeKind = "error"
)

// TaskOutcome is the reported fate of one task or rebalance action in a cycle.
type TaskOutcome struct {
	ID      string      `json:"id"`
	Account string      `json:"account,omitempty"`
	ChainID int64       `json:"chain_id,omitempty"`
	Outcome OutcomeKind `json:"outcome"`
	Reason  string      `json:"reason,omitempty"`
	TxHash  string      `json:"tx_hash,omitempty"`
}

type CycleReport struct {
	RunID     string        `json:"run_id"`
	Loop      string        `json:"loop"`
	Cycle     int           `json:"cycle"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Outcomes  []TaskOutcome `json:"outcomes"`
	Rationale string        `json:"rationale,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Count returns how many outcomes of the given kind the report holds.
func (r CycleReport) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Outcome == kind {
			n++
		}
	}
	return n
}
