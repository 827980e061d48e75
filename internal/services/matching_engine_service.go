package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
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

// commitmentEntry is the in-memory side of a pending commitment. The
// database record mirrors it for audit; this map is authoritative.
type commitmentEntry struct {
	trader      string
	submittedAt time.Time
	status      models.CommitmentStatus
}

// MatchingEngine runs the commit-reveal intake and the epoch matching loop.
// All state transitions happen under one mutex; the epoch tick and the
// intake endpoints serialize through it, so an order is never half-inserted
// when a match pass runs.
type MatchingEngine struct {
	mu          sync.Mutex
	commitments map[common.Hash]*commitmentEntry
	revealQueue []models.EncryptedOrder
	book        *OrderBook

	epoch      uint64
	lastTickAt time.Time
	paused     bool

	cfg        *config.EngineConfig
	keys       KeyProvider
	pairs      *PairRegistry
	settlement Settlement
	orderRepo  repository.OrderRepository
	matchRepo  repository.MatchRepository
	publisher  *events.Publisher

	// now is swappable so epoch-window behavior is testable at exact
	// boundaries.
	now func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMatchingEngine wires the engine. Repositories and publisher may be nil
// in tests; persistence and events are then skipped.
func NewMatchingEngine(
	cfg *config.EngineConfig,
	keys KeyProvider,
	pairs *PairRegistry,
	settlement Settlement,
	orderRepo repository.OrderRepository,
	matchRepo repository.MatchRepository,
	publisher *events.Publisher,
) *MatchingEngine {
	return &MatchingEngine{
		commitments: make(map[common.Hash]*commitmentEntry),
		book:        NewOrderBook(),
		cfg:         cfg,
		keys:        keys,
		pairs:       pairs,
		settlement:  settlement,
		orderRepo:   orderRepo,
		matchRepo:   matchRepo,
		publisher:   publisher,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
}

// EnginePublicKeyHex exposes the reveal-encryption key for clients.
func (e *MatchingEngine) EnginePublicKeyHex() string {
	return e.keys.EnginePublicKeyHex()
}

// Start launches the epoch ticker.
func (e *MatchingEngine) Start() {
	interval := e.cfg.EpochIntervalDuration()
	logrus.WithFields(logrus.Fields{
		"epoch_interval": interval.String(),
		"commit_window":  e.cfg.CommitWindowDuration().String(),
		"reveal_window":  e.cfg.RevealWindowDuration().String(),
	}).Info("🚀 Matching engine started")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Tick(context.Background())
			case <-e.stopChan:
				return
			}
		}
	}()
}

// Stop halts the epoch ticker and waits for an in-flight tick to finish.
func (e *MatchingEngine) Stop() {
	close(e.stopChan)
	e.wg.Wait()
	logrus.Info("🛑 Matching engine stopped")
}

// Pause stops accepting commits and reveals. Resting orders keep matching.
func (e *MatchingEngine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	logrus.Warn("⚠️ Trading paused")
}

// Resume re-enables intake.
func (e *MatchingEngine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	logrus.Info("✅ Trading resumed")
}

// Commit registers a commitment hash. Returns a tx id on acceptance.
func (e *MatchingEngine) Commit(ctx context.Context, trader, commitmentHex string) (string, error) {
	commitment, err := crypto.ParseCommitment(commitmentHex)
	if err != nil {
		metrics.IntakeRejected.WithLabelValues("commit", "bad_commitment").Inc()
		return "", fmt.Errorf("%w: %v", ErrInputRejected, err)
	}
	if crypto.IsZeroCommitment(commitment) {
		metrics.IntakeRejected.WithLabelValues("commit", "zero_commitment").Inc()
		return "", fmt.Errorf("%w: zero commitment", ErrInputRejected)
	}
	trader = strings.ToLower(trader)
	if !common.IsHexAddress(trader) {
		metrics.IntakeRejected.WithLabelValues("commit", "bad_address").Inc()
		return "", fmt.Errorf("%w: invalid trader address", ErrInputRejected)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		metrics.IntakeRejected.WithLabelValues("commit", "paused").Inc()
		return "", ErrTradingPaused
	}
	if _, ok := e.commitments[commitment]; ok {
		metrics.IntakeRejected.WithLabelValues("commit", "duplicate").Inc()
		return "", fmt.Errorf("%w: duplicate commitment", ErrInputRejected)
	}

	submittedAt := e.now()
	e.commitments[commitment] = &commitmentEntry{
		trader:      trader,
		submittedAt: submittedAt,
		status:      models.CommitmentStatusPending,
	}

	if e.orderRepo != nil {
		record := &models.CommitmentRecord{
			Commitment:  commitment.Hex(),
			Trader:      trader,
			Status:      models.CommitmentStatusPending,
			SubmittedAt: submittedAt,
		}
		if err := e.orderRepo.CreateCommitment(ctx, record); err != nil {
			logrus.WithError(err).Error("❌ Failed to persist commitment record")
		}
	}

	txID := uuid.NewString()
	metrics.OrdersCommitted.Inc()
	e.publish(events.SubjectOrderCommitted, map[string]interface{}{
		"commitment":   commitment.Hex(),
		"trader":       trader,
		"submitted_at": submittedAt.Unix(),
		"tx_id":        txID,
	})

	logrus.WithFields(logrus.Fields{
		"commitment": commitment.Hex(),
		"trader":     trader,
	}).Info("📋 Commitment accepted")
	return txID, nil
}

// Reveal queues an encrypted order for the next epoch tick. Unknown
// commitments, consumed commitments and expired windows are rejected
// synchronously; everything about the payload itself is checked at the tick,
// after decryption.
func (e *MatchingEngine) Reveal(ctx context.Context, req *dto.RevealRequest) error {
	commitment, err := crypto.ParseCommitment(req.Commitment)
	if err != nil {
		metrics.IntakeRejected.WithLabelValues("reveal", "bad_commitment").Inc()
		return fmt.Errorf("%w: %v", ErrInputRejected, err)
	}
	ciphertext := strings.TrimPrefix(req.Ciphertext, "0x")
	if _, err := hex.DecodeString(ciphertext); err != nil {
		metrics.IntakeRejected.WithLabelValues("reveal", "bad_ciphertext").Inc()
		return fmt.Errorf("%w: ciphertext is not hex", ErrInputRejected)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		metrics.IntakeRejected.WithLabelValues("reveal", "paused").Inc()
		return ErrTradingPaused
	}

	entry, ok := e.commitments[commitment]
	if !ok {
		metrics.IntakeRejected.WithLabelValues("reveal", "unknown_commitment").Inc()
		return fmt.Errorf("%w: unknown commitment", ErrNotFound)
	}
	if entry.status != models.CommitmentStatusPending {
		metrics.IntakeRejected.WithLabelValues("reveal", "commitment_consumed").Inc()
		return fmt.Errorf("%w: commitment already %s", ErrInputRejected, entry.status)
	}
	if e.windowExpired(entry.submittedAt) {
		e.expireCommitment(ctx, commitment, entry)
		metrics.IntakeRejected.WithLabelValues("reveal", "window_expired").Inc()
		return ErrWindowExpired
	}

	e.revealQueue = append(e.revealQueue, models.EncryptedOrder{
		Commitment:  commitment.Hex(),
		Ciphertext:  ciphertext,
		Nonce:       req.Nonce,
		SubmittedAt: e.now(),
	})
	return nil
}

// Cancel withdraws a pending commitment. Only the committing trader may
// cancel, and only before the reveal is consumed.
func (e *MatchingEngine) Cancel(ctx context.Context, trader, commitmentHex string) error {
	commitment, err := crypto.ParseCommitment(commitmentHex)
	if err != nil {
		metrics.IntakeRejected.WithLabelValues("cancel", "bad_commitment").Inc()
		return fmt.Errorf("%w: %v", ErrInputRejected, err)
	}
	trader = strings.ToLower(trader)

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.commitments[commitment]
	if !ok {
		metrics.IntakeRejected.WithLabelValues("cancel", "unknown_commitment").Inc()
		return fmt.Errorf("%w: unknown commitment", ErrNotFound)
	}
	if entry.trader != trader {
		metrics.IntakeRejected.WithLabelValues("cancel", "wrong_trader").Inc()
		return fmt.Errorf("%w: commitment belongs to another trader", ErrInputRejected)
	}
	if entry.status != models.CommitmentStatusPending {
		metrics.IntakeRejected.WithLabelValues("cancel", "commitment_consumed").Inc()
		return fmt.Errorf("%w: commitment already %s", ErrInputRejected, entry.status)
	}
	if e.windowExpired(entry.submittedAt) {
		e.expireCommitment(ctx, commitment, entry)
		metrics.IntakeRejected.WithLabelValues("cancel", "window_expired").Inc()
		return ErrWindowExpired
	}

	entry.status = models.CommitmentStatusCancelled
	if e.orderRepo != nil {
		if err := e.orderRepo.UpdateCommitmentStatus(ctx, commitment.Hex(), models.CommitmentStatusCancelled); err != nil {
			logrus.WithError(err).Error("❌ Failed to persist commitment cancellation")
		}
	}

	metrics.OrdersCancelled.Inc()
	e.publish(events.SubjectOrderCancelled, map[string]interface{}{
		"commitment": commitment.Hex(),
		"trader":     trader,
	})
	return nil
}

// CommitmentStatus looks up the lifecycle state of a commitment, including
// whether its revealed order is still resting in the book.
func (e *MatchingEngine) CommitmentStatus(commitmentHex string) (*dto.CommitmentStatus, error) {
	commitment, err := crypto.ParseCommitment(commitmentHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputRejected, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.commitments[commitment]
	if !ok {
		return nil, fmt.Errorf("%w: unknown commitment", ErrNotFound)
	}
	resting := e.book.Get(commitment) != nil
	return &dto.CommitmentStatus{
		Commitment:  commitment.Hex(),
		Status:      string(entry.status),
		SubmittedAt: entry.submittedAt.UTC().Format(time.RFC3339),
		Resting:     resting,
	}, nil
}

// Depth reports resting order counts per side.
func (e *MatchingEngine) Depth() dto.BookDepth {
	e.mu.Lock()
	defer e.mu.Unlock()
	buys, sells := e.book.Depth()
	return dto.BookDepth{Buys: buys, Sells: sells}
}

// EpochInfo reports the scheduler position.
func (e *MatchingEngine) EpochInfo() dto.EpochInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	lastTick := ""
	if !e.lastTickAt.IsZero() {
		lastTick = e.lastTickAt.UTC().Format(time.RFC3339)
	}
	return dto.EpochInfo{
		CurrentEpoch:  e.epoch,
		LastTickAt:    lastTick,
		PendingReveal: len(e.revealQueue),
		Paused:        e.paused,
	}
}

// Tick runs one epoch: sweep stale resting orders, process queued reveals,
// then search for crossing matches and settle them.
func (e *MatchingEngine) Tick(ctx context.Context) {
	started := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.epoch++
	e.lastTickAt = e.now()

	swept := e.sweepStaleOrders(ctx)
	revealed := e.processReveals(ctx)
	matched := e.runMatchingPass(ctx)

	buys, sells := e.book.Depth()
	metrics.BookDepth.WithLabelValues("buy").Set(float64(buys))
	metrics.BookDepth.WithLabelValues("sell").Set(float64(sells))
	metrics.EpochsCompleted.Inc()
	metrics.EpochDuration.Observe(time.Since(started).Seconds())

	if swept > 0 || revealed > 0 || matched > 0 {
		logrus.WithFields(logrus.Fields{
			"epoch":    e.epoch,
			"swept":    swept,
			"revealed": revealed,
			"matched":  matched,
			"buys":     buys,
			"sells":    sells,
		}).Info("✅ Epoch completed")
	}

	e.publish(events.SubjectEpochCompleted, map[string]interface{}{
		"epoch":    e.epoch,
		"swept":    swept,
		"revealed": revealed,
		"matched":  matched,
		"buys":     buys,
		"sells":    sells,
	})
}

// windowExpired reports whether the commit window has lapsed for a
// commitment submitted at the given time. The boundary instant itself is
// still inside the window.
func (e *MatchingEngine) windowExpired(submittedAt time.Time) bool {
	return e.now().Sub(submittedAt) > e.cfg.CommitWindowDuration()
}

func (e *MatchingEngine) expireCommitment(ctx context.Context, commitment common.Hash, entry *commitmentEntry) {
	entry.status = models.CommitmentStatusExpired
	if e.orderRepo != nil {
		if err := e.orderRepo.UpdateCommitmentStatus(ctx, commitment.Hex(), models.CommitmentStatusExpired); err != nil {
			logrus.WithError(err).Error("❌ Failed to persist commitment expiry")
		}
	}
}

// sweepStaleOrders removes resting orders whose reveal window has lapsed.
// Runs before reveals and matching so a stale order can never match in the
// same tick that expires it.
func (e *MatchingEngine) sweepStaleOrders(ctx context.Context) int {
	window := e.cfg.RevealWindowDuration()
	now := e.now()

	swept := 0
	for _, order := range e.book.All() {
		if now.Sub(order.RevealedAt) <= window {
			continue
		}
		e.book.Remove(order.Commitment)
		swept++
		if e.orderRepo != nil {
			if err := e.orderRepo.UpdateOrderStatus(ctx, order.Commitment.Hex(), models.OrderStatusExpired); err != nil {
				logrus.WithError(err).Error("❌ Failed to persist order expiry")
			}
		}
	}
	if swept > 0 {
		metrics.OrdersSwept.Add(float64(swept))
	}
	return swept
}

// processReveals drains the reveal queue: decrypt each envelope, verify the
// plaintext against its commitment, validate the pair, and insert into the
// book. A reveal that fails any step is dropped with a counted reason; the
// trader already got a synchronous ack, so drops are visible only through
// metrics and the commitment's terminal status.
func (e *MatchingEngine) processReveals(ctx context.Context) int {
	queue := e.revealQueue
	e.revealQueue = nil

	inserted := 0
	for i := range queue {
		if e.insertReveal(ctx, &queue[i]) {
			inserted++
		}
	}
	return inserted
}

func (e *MatchingEngine) insertReveal(ctx context.Context, enc *models.EncryptedOrder) bool {
	commitment := common.HexToHash(enc.Commitment)
	entry, ok := e.commitments[commitment]
	if !ok || entry.status != models.CommitmentStatusPending {
		metrics.RevealsDropped.WithLabelValues("commitment_consumed").Inc()
		return false
	}

	// The window is re-checked here: time passes between the synchronous
	// accept and the tick that processes the queue.
	if e.windowExpired(entry.submittedAt) {
		e.expireCommitment(ctx, commitment, entry)
		metrics.RevealsDropped.WithLabelValues("window_expired").Inc()
		return false
	}

	ciphertext, err := hex.DecodeString(enc.Ciphertext)
	if err != nil {
		metrics.RevealsDropped.WithLabelValues("bad_ciphertext").Inc()
		return false
	}
	plaintext, err := crypto.DecryptEnvelope(e.keys.EnginePrivateKey(), ciphertext)
	if err != nil {
		logrus.WithField("commitment", enc.Commitment).Warn("⚠️ Undecryptable reveal dropped")
		metrics.RevealsDropped.WithLabelValues("undecryptable").Inc()
		return false
	}

	var payload dto.OrderPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		metrics.RevealsDropped.WithLabelValues("bad_payload").Inc()
		return false
	}

	order, err := e.validatePayload(entry, &payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"commitment": enc.Commitment,
			"error":      err.Error(),
		}).Warn("⚠️ Reveal validation failed")
		metrics.RevealsDropped.WithLabelValues(dropReason(err)).Inc()
		return false
	}

	// Binding check: the decrypted fields must hash back to the commitment.
	fields := crypto.OrderFields{
		Trader:    order.Trader,
		TokenIn:   order.TokenIn,
		TokenOut:  order.TokenOut,
		AmountIn:  order.AmountIn,
		AmountOut: order.AmountOut,
		IsBuy:     order.IsBuy,
	}
	if !crypto.Verify(commitment, fields, payload.SecretNonce) {
		logrus.WithField("commitment", enc.Commitment).Warn("⚠️ Commitment mismatch, reveal dropped")
		metrics.RevealsDropped.WithLabelValues("commitment_mismatch").Inc()
		return false
	}

	order.Commitment = commitment
	order.RevealedAt = e.now()
	if !e.book.Insert(order) {
		metrics.RevealsDropped.WithLabelValues("duplicate").Inc()
		return false
	}

	entry.status = models.CommitmentStatusRevealed
	if e.orderRepo != nil {
		if err := e.orderRepo.UpdateCommitmentStatus(ctx, commitment.Hex(), models.CommitmentStatusRevealed); err != nil {
			logrus.WithError(err).Error("❌ Failed to persist commitment reveal")
		}
		record := &models.Order{
			Commitment: commitment.Hex(),
			Trader:     order.Trader,
			TokenIn:    order.TokenIn,
			TokenOut:   order.TokenOut,
			AmountIn:   order.AmountIn.String(),
			AmountOut:  order.AmountOut.String(),
			IsBuy:      order.IsBuy,
			Status:     models.OrderStatusResting,
			RevealedAt: order.RevealedAt,
			Epoch:      e.epoch,
		}
		if err := e.orderRepo.CreateOrder(ctx, record); err != nil {
			logrus.WithError(err).Error("❌ Failed to persist revealed order")
		}
	}

	metrics.OrdersRevealed.Inc()
	e.publish(events.SubjectOrderRevealed, map[string]interface{}{
		"commitment": commitment.Hex(),
		"trader":     order.Trader,
		"is_buy":     order.IsBuy,
		"epoch":      e.epoch,
	})
	return true
}

// validatePayload checks the decrypted plaintext before the binding check.
func (e *MatchingEngine) validatePayload(entry *commitmentEntry, payload *dto.OrderPayload) (*BookOrder, error) {
	trader := strings.ToLower(payload.Trader)
	if trader != entry.trader {
		return nil, fmt.Errorf("%w: payload trader does not match committer", ErrVerificationFailed)
	}
	if payload.TokenIn == payload.TokenOut {
		return nil, fmt.Errorf("%w: same-token swap", ErrInputRejected)
	}
	amountIn, ok := new(big.Int).SetString(payload.AmountIn, 10)
	if !ok || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount_in must be a positive integer", ErrInputRejected)
	}
	amountOut, ok := new(big.Int).SetString(payload.AmountOut, 10)
	if !ok || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount_out must be a positive integer", ErrInputRejected)
	}
	if e.pairs != nil {
		if err := e.pairs.Validate(payload.TokenIn, payload.TokenOut, amountIn); err != nil {
			return nil, err
		}
	}
	return &BookOrder{
		Trader:    trader,
		TokenIn:   payload.TokenIn,
		TokenOut:  payload.TokenOut,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		IsBuy:     payload.IsBuy,
	}, nil
}

// runMatchingPass scans buys in reveal order and pairs each with the best
// crossing sell. Orders fill completely or not at all; a matched pair leaves
// the book atomically.
func (e *MatchingEngine) runMatchingPass(ctx context.Context) int {
	matched := 0
	for _, buy := range e.book.BuysInRevealOrder() {
		if e.book.Get(buy.Commitment) == nil {
			continue // consumed earlier in this pass
		}
		candidates := e.book.MatchesFor(buy)
		if len(candidates) == 0 {
			continue
		}
		sell := candidates[0]
		e.book.Remove(buy.Commitment)
		e.book.Remove(sell.Commitment)
		e.executeMatch(ctx, buy, sell)
		matched++
	}
	return matched
}

// matchPriceString renders the execution price, which is always the resting
// sell's quote: tokenOut per tokenIn with 18 decimal places.
func matchPriceString(sell *BookOrder) string {
	price := new(big.Rat).SetFrac(sell.AmountOut, sell.AmountIn)
	return price.FloatString(18)
}

func (e *MatchingEngine) executeMatch(ctx context.Context, buy, sell *BookOrder) {
	match := &models.Match{
		ID:             uuid.NewString(),
		Epoch:          e.epoch,
		BuyCommitment:  buy.Commitment.Hex(),
		SellCommitment: sell.Commitment.Hex(),
		BuyOrder:       orderSnapshot(buy),
		SellOrder:      orderSnapshot(sell),
		MatchPrice:     matchPriceString(sell),
		Volume:         sell.AmountOut.String(),
		Timestamp:      e.now(),
	}

	if err := e.settlement.ExecuteMatch(ctx, match); err != nil {
		logrus.WithFields(logrus.Fields{
			"match_id": match.ID,
			"error":    err.Error(),
		}).Error("❌ Match settlement failed")
		metrics.SettlementFailures.WithLabelValues("match").Inc()
		e.publish(events.SubjectSettlementFailed, map[string]interface{}{
			"match_id": match.ID,
			"error":    err.Error(),
		})
		return
	}

	for _, side := range []*BookOrder{buy, sell} {
		if e.orderRepo != nil {
			if err := e.orderRepo.UpdateOrderStatus(ctx, side.Commitment.Hex(), models.OrderStatusMatched); err != nil {
				logrus.WithError(err).Error("❌ Failed to persist matched order status")
			}
		}
	}
	if e.matchRepo != nil {
		if err := e.matchRepo.Create(ctx, match); err != nil {
			logrus.WithError(err).Error("❌ Failed to persist match")
		}
	}

	metrics.MatchesExecuted.Inc()
	logrus.WithFields(logrus.Fields{
		"match_id":    match.ID,
		"epoch":       match.Epoch,
		"match_price": match.MatchPrice,
	}).Info("✅ Match executed")
}

func orderSnapshot(order *BookOrder) string {
	snapshot, _ := json.Marshal(map[string]interface{}{
		"commitment":  order.Commitment.Hex(),
		"trader":      order.Trader,
		"token_in":    order.TokenIn,
		"token_out":   order.TokenOut,
		"amount_in":   order.AmountIn.String(),
		"amount_out":  order.AmountOut.String(),
		"is_buy":      order.IsBuy,
		"revealed_at": order.RevealedAt.UTC().Format(time.RFC3339),
	})
	return string(snapshot)
}

func (e *MatchingEngine) publish(subject string, payload interface{}) {
	if e.publisher != nil {
		e.publisher.Publish(subject, payload)
	}
}

func dropReason(err error) string {
	if errors.Is(err, ErrVerificationFailed) {
		return "trader_mismatch"
	}
	return "invalid_payload"
}
