package models

import (
	"time"
)

// CommitmentStatus lifecycle of a commitment record
type CommitmentStatus string

const (
	CommitmentStatusPending   CommitmentStatus = "pending"   // committed, waiting for reveal
	CommitmentStatusRevealed  CommitmentStatus = "revealed"  // consumed by a reveal
	CommitmentStatusCancelled CommitmentStatus = "cancelled" // cancelled by trader pre-reveal
	CommitmentStatusExpired   CommitmentStatus = "expired"   // commitment window lapsed
)

// OrderStatus lifecycle of a revealed order
type OrderStatus string

const (
	OrderStatusResting OrderStatus = "resting" // live in the order book
	OrderStatusMatched OrderStatus = "matched"
	OrderStatusExpired OrderStatus = "expired" // swept after the reveal window lapsed unmatched
)

// ChannelStatus lifecycle of a state channel
type ChannelStatus string

const (
	ChannelStatusOpen             ChannelStatus = "open"
	ChannelStatusClosed           ChannelStatus = "closed"
	ChannelStatusEmergencyPending ChannelStatus = "emergency_pending"
	ChannelStatusEmergencyClosed  ChannelStatus = "emergency_closed"
)

// CommitmentRecord is the stored half of the commit-reveal handshake.
// Created on commit, terminal on reveal-consumption, cancellation or expiry.
type CommitmentRecord struct {
	Commitment  string           `json:"commitment" gorm:"primaryKey;size:66"` // 0x + 64 hex chars
	Trader      string           `json:"trader" gorm:"not null;index;size:42"`
	Status      CommitmentStatus `json:"status" gorm:"not null;default:pending;index"`
	SubmittedAt time.Time        `json:"submitted_at" gorm:"not null"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// TableName specifies the table name
func (CommitmentRecord) TableName() string {
	return "commitment_records"
}

// EncryptedOrder is a revealed-but-not-yet-decrypted order payload.
// Queued between epoch ticks; consumed by decryption at the next tick.
type EncryptedOrder struct {
	Commitment  string    `json:"commitment"`
	Ciphertext  string    `json:"ciphertext"` // hex-encoded ECIES envelope
	Nonce       uint64    `json:"nonce"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Order is the post-decrypt plaintext order. Amounts are decimal strings;
// the engine parses and validates them as integers at insertion time.
type Order struct {
	Commitment string      `json:"commitment" gorm:"primaryKey;size:66"`
	Trader     string      `json:"trader" gorm:"not null;index;size:42"`
	TokenIn    string      `json:"token_in" gorm:"not null;size:42"`
	TokenOut   string      `json:"token_out" gorm:"not null;size:42"`
	AmountIn   string      `json:"amount_in" gorm:"not null"`
	AmountOut  string      `json:"amount_out" gorm:"not null"`
	IsBuy      bool        `json:"is_buy" gorm:"not null"`
	Status     OrderStatus `json:"status" gorm:"not null;default:resting;index"`
	RevealedAt time.Time   `json:"revealed_at" gorm:"not null"`
	Epoch      uint64      `json:"epoch" gorm:"not null;index"` // epoch of insertion
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// TableName specifies the table name
func (Order) TableName() string {
	return "orders"
}

// Match pairs a buy and a sell removed from the book in the same atomic step.
// Immutable once created.
type Match struct {
	ID             string    `json:"id" gorm:"primaryKey"` // UUID
	Epoch          uint64    `json:"epoch" gorm:"not null;index"`
	BuyCommitment  string    `json:"buy_commitment" gorm:"not null;index;size:66"`
	SellCommitment string    `json:"sell_commitment" gorm:"not null;index;size:66"`
	BuyOrder       string    `json:"buy_order" gorm:"type:jsonb;not null"`  // Order snapshot
	SellOrder      string    `json:"sell_order" gorm:"type:jsonb;not null"` // Order snapshot
	MatchPrice     string    `json:"match_price" gorm:"not null"`
	Volume         string    `json:"volume" gorm:"not null;default:0"` // quote units exchanged
	Timestamp      time.Time `json:"timestamp" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name
func (Match) TableName() string {
	return "matches"
}

// Channel is an off-chain balance record updated via signed messages.
// Balance and nonce change only through a validly signed update or close;
// the nonce strictly increases by 1 per accepted mutation.
type Channel struct {
	ID           string        `json:"id" gorm:"primaryKey"` // UUID
	Participant  string        `json:"participant" gorm:"not null;uniqueIndex;size:42"`
	Balance      string        `json:"balance" gorm:"not null"`
	Collateral   string        `json:"collateral" gorm:"not null"`
	Nonce        uint64        `json:"nonce" gorm:"not null;default:0"`
	Status       ChannelStatus `json:"status" gorm:"not null;default:open;index"`
	IsActive     bool          `json:"is_active" gorm:"not null;default:true"`
	LastUpdateAt time.Time     `json:"last_update_at" gorm:"not null"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName specifies the table name
func (Channel) TableName() string {
	return "channels"
}

// EmergencyRequest is the time-locked unilateral exit record.
// At most one outstanding non-executed request per channel.
type EmergencyRequest struct {
	ID          string     `json:"id" gorm:"primaryKey"` // UUID
	ChannelID   string     `json:"channel_id" gorm:"not null;index"`
	Requester   string     `json:"requester" gorm:"not null;index;size:42"`
	Reason      string     `json:"reason" gorm:"type:text"`
	RequestedAt time.Time  `json:"requested_at" gorm:"not null"`
	IsExecuted  bool       `json:"is_executed" gorm:"not null;default:false"`
	ExecutedAt  *time.Time `json:"executed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name
func (EmergencyRequest) TableName() string {
	return "emergency_requests"
}

// TradingPair intake-side listing configuration for a token pair.
type TradingPair struct {
	ID            string    `json:"id" gorm:"primaryKey"` // "<tokenIn>/<tokenOut>"
	TokenIn       string    `json:"token_in" gorm:"not null;size:42"`
	TokenOut      string    `json:"token_out" gorm:"not null;size:42"`
	MinOrderSize  string    `json:"min_order_size" gorm:"not null"`
	MaxOrderSize  string    `json:"max_order_size" gorm:"not null"`
	TradingFeeBps uint32    `json:"trading_fee_bps" gorm:"not null;default:0"`
	IsActive      bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (TradingPair) TableName() string {
	return "trading_pairs"
}

// UserBalance is one user's recorded balance for one token, maintained by
// the settlement side as absolute values.
type UserBalance struct {
	Address      string    `json:"address" gorm:"primaryKey;size:42"`
	Token        string    `json:"token" gorm:"primaryKey;size:42"`
	Amount       string    `json:"amount" gorm:"not null"`
	LastUpdateAt time.Time `json:"last_update_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (UserBalance) TableName() string {
	return "user_balances"
}
