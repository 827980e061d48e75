package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"darkpool-backend/internal/config"
	"darkpool-backend/internal/crypto"
	"darkpool-backend/internal/dto"
	"darkpool-backend/internal/events"
	"darkpool-backend/internal/metrics"
	"darkpool-backend/internal/models"
	"darkpool-backend/internal/repository"
)

// channelEntry pairs a channel with its own lock so updates to different
// participants never contend. The per-channel lock makes the
// read-verify-write of an update atomic: two concurrent updates with the
// same nonce can never both pass verification.
type channelEntry struct {
	mu        sync.Mutex
	channel   *models.Channel
	emergency *models.EmergencyRequest // pending request, nil otherwise
}

// ChannelLedger maintains off-chain balance channels updated through signed
// messages. In-memory state is authoritative; the database mirrors it for
// audit and restart recovery.
type ChannelLedger struct {
	mu       sync.RWMutex
	channels map[string]*channelEntry // keyed by lowercase participant

	cfg       *config.ChannelsConfig
	repo      repository.ChannelRepository
	settle    Settlement
	publisher *events.Publisher

	now func() time.Time
}

// NewChannelLedger builds the ledger. Repository and publisher may be nil in
// tests.
func NewChannelLedger(
	cfg *config.ChannelsConfig,
	repo repository.ChannelRepository,
	settle Settlement,
	publisher *events.Publisher,
) *ChannelLedger {
	return &ChannelLedger{
		channels:  make(map[string]*channelEntry),
		cfg:       cfg,
		repo:      repo,
		settle:    settle,
		publisher: publisher,
		now:       time.Now,
	}
}

// entryFor returns the entry for a participant, or nil.
func (l *ChannelLedger) entryFor(participant string) *channelEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.channels[strings.ToLower(participant)]
}

// Open creates a channel for a participant. One active channel per
// participant; a closed channel's slot can be reopened.
func (l *ChannelLedger) Open(ctx context.Context, req *dto.OpenChannelRequest) (*models.Channel, error) {
	participant := strings.ToLower(req.Participant)
	if !common.IsHexAddress(participant) {
		metrics.ChannelRejections.WithLabelValues("open", "bad_address").Inc()
		return nil, fmt.Errorf("%w: invalid participant address", ErrInputRejected)
	}
	if err := l.checkBalanceBounds(req.InitialBalance); err != nil {
		metrics.ChannelRejections.WithLabelValues("open", "balance_bounds").Inc()
		return nil, err
	}
	collateral := req.Collateral
	if collateral == "" {
		collateral = "0"
	}
	if _, ok := new(big.Rat).SetString(collateral); !ok {
		metrics.ChannelRejections.WithLabelValues("open", "bad_collateral").Inc()
		return nil, fmt.Errorf("%w: collateral is not a number", ErrInputRejected)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.channels[participant]; ok && existing.channel.IsActive {
		metrics.ChannelRejections.WithLabelValues("open", "already_open").Inc()
		return nil, fmt.Errorf("%w: participant already has an active channel", ErrInputRejected)
	}

	channel := &models.Channel{
		ID:           uuid.NewString(),
		Participant:  participant,
		Balance:      req.InitialBalance,
		Collateral:   collateral,
		Nonce:        0,
		Status:       models.ChannelStatusOpen,
		IsActive:     true,
		LastUpdateAt: l.now(),
	}
	l.channels[participant] = &channelEntry{channel: channel}

	if l.repo != nil {
		if err := l.repo.Create(ctx, channel); err != nil {
			logrus.WithError(err).Error("❌ Failed to persist channel")
		}
	}

	metrics.ChannelsOpened.Inc()
	metrics.ActiveChannels.Inc()
	l.publish(events.SubjectChannelOpened, map[string]interface{}{
		"channel_id":  channel.ID,
		"participant": participant,
		"balance":     channel.Balance,
	})

	logrus.WithFields(logrus.Fields{
		"channel_id":  channel.ID,
		"participant": participant,
	}).Info("✅ Channel opened")
	return channel, nil
}

// Update applies a signed balance update. The signature must cover the
// channel's next nonce; any other nonce fails verification, which is what
// makes replays and stale updates unreplayable.
func (l *ChannelLedger) Update(ctx context.Context, req *dto.UpdateChannelRequest) (*models.Channel, error) {
	participant := strings.ToLower(req.Participant)
	entry := l.entryFor(participant)
	if entry == nil {
		metrics.ChannelRejections.WithLabelValues("update", "not_found").Inc()
		return nil, fmt.Errorf("%w: no channel for participant", ErrNotFound)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	channel := entry.channel
	if !channel.IsActive {
		metrics.ChannelRejections.WithLabelValues("update", "inactive").Inc()
		return nil, fmt.Errorf("%w: channel is closed", ErrInputRejected)
	}
	if err := l.checkBalanceBounds(req.NewBalance); err != nil {
		metrics.ChannelRejections.WithLabelValues("update", "balance_bounds").Inc()
		return nil, err
	}
	if err := l.verifyUpdateSignature(participant, req.NewBalance, channel.Nonce+1, req.Timestamp, req.Signature); err != nil {
		metrics.ChannelRejections.WithLabelValues("update", "bad_signature").Inc()
		logrus.WithFields(logrus.Fields{
			"participant": participant,
			"nonce":       channel.Nonce + 1,
		}).Warn("⚠️ Channel update signature rejected")
		return nil, err
	}

	channel.Balance = req.NewBalance
	channel.Nonce++
	channel.LastUpdateAt = l.now()
	l.persist(ctx, channel)

	metrics.ChannelUpdates.Inc()
	l.publish(events.SubjectChannelUpdated, map[string]interface{}{
		"channel_id":  channel.ID,
		"participant": participant,
		"balance":     channel.Balance,
		"nonce":       channel.Nonce,
	})

	snapshot := *channel
	return &snapshot, nil
}

// Close cooperatively closes a channel with a signed final balance and pays
// it out through the settlement collaborator.
func (l *ChannelLedger) Close(ctx context.Context, req *dto.CloseChannelRequest) (*models.Channel, error) {
	participant := strings.ToLower(req.Participant)
	entry := l.entryFor(participant)
	if entry == nil {
		metrics.ChannelRejections.WithLabelValues("close", "not_found").Inc()
		return nil, fmt.Errorf("%w: no channel for participant", ErrNotFound)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	channel := entry.channel
	if !channel.IsActive {
		metrics.ChannelRejections.WithLabelValues("close", "inactive").Inc()
		return nil, fmt.Errorf("%w: channel is closed", ErrInputRejected)
	}
	if err := l.checkBalanceBounds(req.FinalBalance); err != nil {
		metrics.ChannelRejections.WithLabelValues("close", "balance_bounds").Inc()
		return nil, err
	}
	if err := l.verifyUpdateSignature(participant, req.FinalBalance, channel.Nonce+1, req.Timestamp, req.Signature); err != nil {
		metrics.ChannelRejections.WithLabelValues("close", "bad_signature").Inc()
		return nil, err
	}

	channel.Balance = req.FinalBalance
	channel.Nonce++
	channel.Status = models.ChannelStatusClosed
	channel.IsActive = false
	channel.LastUpdateAt = l.now()
	// A cooperative close supersedes any pending emergency request.
	entry.emergency = nil

	payoutErr := l.settle.ExecuteChannelPayout(ctx, channel)
	if payoutErr != nil {
		// The channel is already closed in the ledger; payout failure is
		// surfaced to the caller, not rolled back.
		metrics.SettlementFailures.WithLabelValues("channel_close").Inc()
		logrus.WithError(payoutErr).WithField("channel_id", channel.ID).Error("❌ Channel close payout failed")
	}
	l.persist(ctx, channel)

	metrics.ChannelsClosed.WithLabelValues("cooperative").Inc()
	metrics.ActiveChannels.Dec()
	l.publish(events.SubjectChannelClosed, map[string]interface{}{
		"channel_id":    channel.ID,
		"participant":   participant,
		"final_balance": channel.Balance,
		"mode":          "cooperative",
	})

	logrus.WithFields(logrus.Fields{
		"channel_id":    channel.ID,
		"final_balance": channel.Balance,
	}).Info("✅ Channel closed")
	snapshot := *channel
	if payoutErr != nil {
		return &snapshot, fmt.Errorf("%w: channel closed but payout failed: %v", ErrSettlementFailed, payoutErr)
	}
	return &snapshot, nil
}

// RequestEmergencyWithdraw starts the time-locked unilateral exit. The
// channel stays updatable during the delay so a cooperative counterparty can
// still settle normally.
func (l *ChannelLedger) RequestEmergencyWithdraw(ctx context.Context, req *dto.EmergencyWithdrawRequest) (*models.EmergencyRequest, error) {
	participant := strings.ToLower(req.Participant)
	entry := l.entryFor(participant)
	if entry == nil {
		metrics.ChannelRejections.WithLabelValues("emergency_request", "not_found").Inc()
		return nil, fmt.Errorf("%w: no channel for participant", ErrNotFound)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	channel := entry.channel
	if !channel.IsActive {
		metrics.ChannelRejections.WithLabelValues("emergency_request", "inactive").Inc()
		return nil, fmt.Errorf("%w: channel is closed", ErrInputRejected)
	}
	if entry.emergency != nil {
		metrics.ChannelRejections.WithLabelValues("emergency_request", "already_pending").Inc()
		return nil, fmt.Errorf("%w: emergency withdrawal already pending", ErrInputRejected)
	}

	request := &models.EmergencyRequest{
		ID:          uuid.NewString(),
		ChannelID:   channel.ID,
		Requester:   participant,
		Reason:      req.Reason,
		RequestedAt: l.now(),
	}
	entry.emergency = request
	channel.Status = models.ChannelStatusEmergencyPending
	l.persist(ctx, channel)
	if l.repo != nil {
		if err := l.repo.CreateEmergencyRequest(ctx, request); err != nil {
			logrus.WithError(err).Error("❌ Failed to persist emergency request")
		}
	}

	l.publish(events.SubjectEmergencyRequested, map[string]interface{}{
		"channel_id":    channel.ID,
		"participant":   participant,
		"requested_at":  request.RequestedAt.Unix(),
		"executable_at": request.RequestedAt.Add(l.cfg.WithdrawalDelayDuration()).Unix(),
	})

	logrus.WithFields(logrus.Fields{
		"channel_id": channel.ID,
		"delay":      l.cfg.WithdrawalDelayDuration().String(),
	}).Warn("⚠️ Emergency withdrawal requested")
	return request, nil
}

// ExecuteEmergencyWithdraw completes the exit once the timelock has elapsed.
func (l *ChannelLedger) ExecuteEmergencyWithdraw(ctx context.Context, participant string) (*models.Channel, error) {
	participant = strings.ToLower(participant)
	entry := l.entryFor(participant)
	if entry == nil {
		metrics.ChannelRejections.WithLabelValues("emergency_execute", "not_found").Inc()
		return nil, fmt.Errorf("%w: no channel for participant", ErrNotFound)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	channel := entry.channel
	request := entry.emergency
	if request == nil {
		metrics.ChannelRejections.WithLabelValues("emergency_execute", "no_request").Inc()
		return nil, fmt.Errorf("%w: no pending emergency request", ErrInputRejected)
	}
	if !channel.IsActive {
		metrics.ChannelRejections.WithLabelValues("emergency_execute", "inactive").Inc()
		return nil, fmt.Errorf("%w: channel is closed", ErrInputRejected)
	}

	executableAt := request.RequestedAt.Add(l.cfg.WithdrawalDelayDuration())
	if l.now().Before(executableAt) {
		metrics.ChannelRejections.WithLabelValues("emergency_execute", "timelock").Inc()
		return nil, fmt.Errorf("%w: executable at %s", ErrTimelockNotElapsed, executableAt.UTC().Format(time.RFC3339))
	}

	channel.Status = models.ChannelStatusEmergencyClosed
	channel.IsActive = false
	channel.LastUpdateAt = l.now()

	payoutErr := l.settle.ExecuteChannelPayout(ctx, channel)
	if payoutErr != nil {
		metrics.SettlementFailures.WithLabelValues("channel_emergency").Inc()
		logrus.WithError(payoutErr).WithField("channel_id", channel.ID).Error("❌ Emergency payout failed")
	}

	executedAt := l.now()
	request.IsExecuted = true
	request.ExecutedAt = &executedAt
	entry.emergency = nil

	l.persist(ctx, channel)
	if l.repo != nil {
		if err := l.repo.SaveEmergencyRequest(ctx, request); err != nil {
			logrus.WithError(err).Error("❌ Failed to persist emergency execution")
		}
	}

	metrics.ChannelsClosed.WithLabelValues("emergency").Inc()
	metrics.ActiveChannels.Dec()
	l.publish(events.SubjectEmergencyExecuted, map[string]interface{}{
		"channel_id":    channel.ID,
		"participant":   participant,
		"final_balance": channel.Balance,
	})

	logrus.WithFields(logrus.Fields{
		"channel_id":    channel.ID,
		"final_balance": channel.Balance,
	}).Warn("⚠️ Emergency withdrawal executed")
	snapshot := *channel
	if payoutErr != nil {
		return &snapshot, fmt.Errorf("%w: channel closed but payout failed: %v", ErrSettlementFailed, payoutErr)
	}
	return &snapshot, nil
}

// Get returns a snapshot of the participant's channel.
func (l *ChannelLedger) Get(participant string) (*models.Channel, error) {
	entry := l.entryFor(participant)
	if entry == nil {
		return nil, fmt.Errorf("%w: no channel for participant", ErrNotFound)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	snapshot := *entry.channel
	return &snapshot, nil
}

// EmergencyStatus reports the timelock position for a participant's exit.
func (l *ChannelLedger) EmergencyStatus(participant string) (*dto.EmergencyStatus, error) {
	entry := l.entryFor(participant)
	if entry == nil {
		return nil, fmt.Errorf("%w: no channel for participant", ErrNotFound)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	status := &dto.EmergencyStatus{}
	request := entry.emergency
	if request == nil {
		return status, nil
	}
	executableAt := request.RequestedAt.Add(l.cfg.WithdrawalDelayDuration())
	status.Requested = true
	status.RequestedAt = request.RequestedAt.UTC().Format(time.RFC3339)
	status.ExecutableAt = executableAt.UTC().Format(time.RFC3339)
	status.Executable = !l.now().Before(executableAt)
	status.IsExecuted = request.IsExecuted
	return status, nil
}

// ActiveCount returns the number of active channels.
func (l *ChannelLedger) ActiveCount() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var n int64
	for _, entry := range l.channels {
		if entry.channel.IsActive {
			n++
		}
	}
	return n
}

func (l *ChannelLedger) verifyUpdateSignature(participant, newBalance string, nonce uint64, timestamp int64, sigHex string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrInputRejected)
	}
	digest := crypto.ChannelUpdateDigest(participant, newBalance, nonce, timestamp)
	if err := crypto.VerifyChannelSignature(participant, digest, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return nil
}

// checkBalanceBounds validates a balance string against the configured
// range. Balances are non-negative decimals.
func (l *ChannelLedger) checkBalanceBounds(balance string) error {
	value, ok := new(big.Rat).SetString(balance)
	if !ok {
		return fmt.Errorf("%w: balance is not a number", ErrInputRejected)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("%w: balance must be non-negative", ErrInputRejected)
	}
	if l.cfg.MinBalance != "" {
		if min, ok := new(big.Rat).SetString(l.cfg.MinBalance); ok && value.Cmp(min) < 0 {
			return fmt.Errorf("%w: balance below minimum %s", ErrInputRejected, l.cfg.MinBalance)
		}
	}
	if l.cfg.MaxBalance != "" {
		if max, ok := new(big.Rat).SetString(l.cfg.MaxBalance); ok && value.Cmp(max) > 0 {
			return fmt.Errorf("%w: balance above maximum %s", ErrInputRejected, l.cfg.MaxBalance)
		}
	}
	return nil
}

func (l *ChannelLedger) persist(ctx context.Context, channel *models.Channel) {
	if l.repo == nil {
		return
	}
	if err := l.repo.Save(ctx, channel); err != nil {
		logrus.WithError(err).WithField("channel_id", channel.ID).Error("❌ Failed to persist channel state")
	}
}

func (l *ChannelLedger) publish(subject string, payload interface{}) {
	if l.publisher != nil {
		l.publisher.Publish(subject, payload)
	}
}
