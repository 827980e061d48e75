package dto

// OrderPayload is the plaintext carried inside an ECIES envelope. Clients
// serialize this to JSON, encrypt it to the engine public key, and submit the
// ciphertext at reveal time. The secret nonce travels only inside the
// envelope; it is never observable before reveal.
type OrderPayload struct {
	Trader      string `json:"trader"`
	TokenIn     string `json:"token_in"`
	TokenOut    string `json:"token_out"`
	AmountIn    string `json:"amount_in"`
	AmountOut   string `json:"amount_out"`
	IsBuy       bool   `json:"is_buy"`
	SecretNonce uint64 `json:"secret_nonce"`
}

// CommitRequest submits a commitment hash ahead of the reveal.
type CommitRequest struct {
	Commitment string `json:"commitment" binding:"required"`
	Trader     string `json:"trader" binding:"required"`
}

// RevealRequest submits the encrypted order for a prior commitment.
type RevealRequest struct {
	Commitment string `json:"commitment" binding:"required"`
	Ciphertext string `json:"ciphertext" binding:"required"` // hex ECIES envelope
	Nonce      uint64 `json:"nonce"`
}

// CancelRequest withdraws a commitment before it is revealed.
type CancelRequest struct {
	Commitment string `json:"commitment" binding:"required"`
	Trader     string `json:"trader" binding:"required"`
}

// AckResponse is the uniform ack/reject envelope for intake operations.
type AckResponse struct {
	Success bool   `json:"success"`
	TxID    string `json:"tx_id,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// BookDepth reports per-side resting order counts.
type BookDepth struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

// EpochInfo reports the scheduler position.
type EpochInfo struct {
	CurrentEpoch  uint64 `json:"current_epoch"`
	LastTickAt    string `json:"last_tick_at"`
	PendingReveal int    `json:"pending_reveals"`
	Paused        bool   `json:"paused"`
}

// CommitmentStatus reports the lifecycle state of a single commitment.
type CommitmentStatus struct {
	Commitment  string `json:"commitment"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
	Resting     bool   `json:"resting"`
}

// NetworkStats aggregates exchange-wide counters.
type NetworkStats struct {
	TotalOrders    int64  `json:"total_orders"`
	TotalMatches   int64  `json:"total_matches"`
	TotalVolume    string `json:"total_volume"`
	ActiveChannels int64  `json:"active_channels"`
}
