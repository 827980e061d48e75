package dto

// OpenChannelRequest opens a channel for a participant.
type OpenChannelRequest struct {
	Participant    string `json:"participant" binding:"required"`
	InitialBalance string `json:"initial_balance" binding:"required"`
	Collateral     string `json:"collateral"`
}

// UpdateChannelRequest applies a signed balance update. The signature covers
// (participant, new_balance, nonce+1, timestamp); see crypto.ChannelUpdateDigest.
type UpdateChannelRequest struct {
	Participant string `json:"participant" binding:"required"`
	NewBalance  string `json:"new_balance" binding:"required"`
	Timestamp   int64  `json:"timestamp" binding:"required"`
	Signature   string `json:"signature" binding:"required"` // hex, 65 bytes
}

// CloseChannelRequest cooperatively closes with a signed final balance.
type CloseChannelRequest struct {
	Participant  string `json:"participant" binding:"required"`
	FinalBalance string `json:"final_balance" binding:"required"`
	Timestamp    int64  `json:"timestamp" binding:"required"`
	Signature    string `json:"signature" binding:"required"`
}

// EmergencyWithdrawRequest starts the time-locked unilateral exit.
type EmergencyWithdrawRequest struct {
	Participant string `json:"participant" binding:"required"`
	Reason      string `json:"reason"`
}

// EmergencyStatus reports whether the timelock has elapsed.
type EmergencyStatus struct {
	Requested    bool   `json:"requested"`
	RequestedAt  string `json:"requested_at,omitempty"`
	Executable   bool   `json:"executable"`
	ExecutableAt string `json:"executable_at,omitempty"`
	IsExecuted   bool   `json:"is_executed"`
}

// SetBalanceRequest records a user's absolute balance for one token.
type SetBalanceRequest struct {
	Address string `json:"address" binding:"required"`
	Token   string `json:"token" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}
