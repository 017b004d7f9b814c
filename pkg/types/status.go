package types

// TxStatus is the UI-facing transaction status
type TxStatus string

const (
	TxIdle       TxStatus = "idle"
	TxConfirming TxStatus = "confirming"
	TxProcessing TxStatus = "processing"
	TxBridging   TxStatus = "bridging"
	TxSuccess    TxStatus = "success"
	TxError      TxStatus = "error"
)

var txStatusRank = map[TxStatus]int{
	TxIdle:       0,
	TxConfirming: 1,
	TxProcessing: 2,
	TxBridging:   3,
	TxSuccess:    4,
}

// Terminal returns true for success and error
func (s TxStatus) Terminal() bool {
	return s == TxSuccess || s == TxError
}

// CanAdvance reports whether moving from s to next keeps the status monotonic.
// Error is reachable from every non-terminal status. A new attempt may start
// confirming again from error.
func (s TxStatus) CanAdvance(next TxStatus) bool {
	if next == TxError {
		return !s.Terminal()
	}
	if s == TxError {
		return next == TxConfirming || next == TxIdle
	}
	if s == TxSuccess {
		return next == TxIdle
	}
	return txStatusRank[next] > txStatusRank[s] || next == TxIdle
}

// BackendStatus is the status reported by the backend status call
type BackendStatus string

const (
	BackendConfirming BackendStatus = "confirming"
	BackendProcessing BackendStatus = "processing"
	BackendBridging   BackendStatus = "bridging"
	BackendSuccess    BackendStatus = "success"
	BackendFailed     BackendStatus = "failed"
)

// StatusResponse mirrors the backend status payload
type StatusResponse struct {
	ID             string        `json:"id"`
	Status         BackendStatus `json:"status"`
	StatusRaw      string        `json:"statusRaw,omitempty"`
	GasStatus      string        `json:"gasStatus,omitempty"`
	FromChainTxURL string        `json:"fromChainTxUrl,omitempty"`
	ToChainTxURL   string        `json:"toChainTxUrl,omitempty"`
}
