package services

import (
	"context"

	"darkpool-backend/internal/events"
	"darkpool-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// Settlement is the external on-chain execution collaborator. Both calls are
// synchronous; a non-nil error is fatal for the item and is never retried
// here, as resubmission could double-apply effects.
type Settlement interface {
	ExecuteMatch(ctx context.Context, match *models.Match) error
	ExecuteChannelPayout(ctx context.Context, channel *models.Channel) error
}

// EventSettlement hands settlement work to the on-chain executor via the
// event bus and mirrors it to websocket subscribers. It is the default
// wiring; a real deployment attaches an executor consuming the published
// subjects.
type EventSettlement struct {
	publisher *events.Publisher
	push      *PushService
}

// NewEventSettlement creates the default settlement collaborator.
func NewEventSettlement(publisher *events.Publisher) *EventSettlement {
	return &EventSettlement{publisher: publisher}
}

// AttachPushService adds websocket fan-out. Called once at startup, before
// any settlement traffic.
func (s *EventSettlement) AttachPushService(push *PushService) {
	s.push = push
}

// ExecuteMatch publishes the match for on-chain execution.
func (s *EventSettlement) ExecuteMatch(ctx context.Context, match *models.Match) error {
	logrus.WithFields(logrus.Fields{
		"match_id":        match.ID,
		"epoch":           match.Epoch,
		"buy_commitment":  match.BuyCommitment,
		"sell_commitment": match.SellCommitment,
		"match_price":     match.MatchPrice,
	}).Info("⚖️ Handing match to settlement")

	s.publisher.Publish(events.SubjectMatchExecuted, match)

	if s.push != nil {
		// The public print carries price and epoch only; commitments and
		// trader identities stay out of the broadcast feed.
		s.push.PushPublic("match_executed", map[string]interface{}{
			"match_id":    match.ID,
			"epoch":       match.Epoch,
			"match_price": match.MatchPrice,
			"timestamp":   match.Timestamp,
		})
	}
	return nil
}

// ExecuteChannelPayout publishes the payout for on-chain execution.
func (s *EventSettlement) ExecuteChannelPayout(ctx context.Context, channel *models.Channel) error {
	logrus.WithFields(logrus.Fields{
		"channel_id":  channel.ID,
		"participant": channel.Participant,
		"balance":     channel.Balance,
	}).Info("💸 Handing channel payout to settlement")

	s.publisher.Publish(events.SubjectChannelClosed, channel)

	if s.push != nil {
		s.push.PushToTrader(channel.Participant, "channel_payout", map[string]interface{}{
			"channel_id":    channel.ID,
			"final_balance": channel.Balance,
			"status":        channel.Status,
		})
	}
	return nil
}
