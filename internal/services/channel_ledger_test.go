package services

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"

	"darkpool-backend/internal/config"
	"darkpool-backend/internal/crypto"
	"darkpool-backend/internal/dto"
	"darkpool-backend/internal/models"
)

func newTestLedger() (*ChannelLedger, *stubSettlement, *fakeClock) {
	cfg := &config.ChannelsConfig{
		MinBalance:      "0",
		MaxBalance:      "1000000",
		WithdrawalDelay: 86400,
	}
	settle := &stubSettlement{}
	clk := &fakeClock{t: time.Unix(1700000000, 0)}

	ledger := NewChannelLedger(cfg, nil, settle, nil)
	ledger.now = clk.now
	return ledger, settle, clk
}

func newParticipant(t *testing.T) (privHex, address string) {
	key, err := ethcrypto.GenerateKey()
	assert.NoError(t, err)
	return hex.EncodeToString(ethcrypto.FromECDSA(key)), ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

func signUpdate(t *testing.T, privHex, participant, newBalance string, nonce uint64, timestamp int64) string {
	digest := crypto.ChannelUpdateDigest(participant, newBalance, nonce, timestamp)
	sig, err := crypto.SignDigest(privHex, digest)
	assert.NoError(t, err)
	return hex.EncodeToString(sig)
}

func openChannel(t *testing.T, ledger *ChannelLedger, participant, balance string) *models.Channel {
	channel, err := ledger.Open(context.Background(), &dto.OpenChannelRequest{
		Participant:    participant,
		InitialBalance: balance,
	})
	assert.NoError(t, err)
	return channel
}

func TestOpenChannel(t *testing.T) {
	ledger, _, _ := newTestLedger()
	_, address := newParticipant(t)

	channel := openChannel(t, ledger, address, "10")
	assert.Equal(t, "10", channel.Balance)
	assert.Equal(t, uint64(0), channel.Nonce)
	assert.Equal(t, models.ChannelStatusOpen, channel.Status)
	assert.True(t, channel.IsActive)

	// One active channel per participant.
	_, err := ledger.Open(context.Background(), &dto.OpenChannelRequest{
		Participant:    address,
		InitialBalance: "5",
	})
	assert.ErrorIs(t, err, ErrInputRejected)
}

func TestOpenChannelValidation(t *testing.T) {
	ledger, _, _ := newTestLedger()

	_, err := ledger.Open(context.Background(), &dto.OpenChannelRequest{
		Participant: "not-an-address", InitialBalance: "10",
	})
	assert.ErrorIs(t, err, ErrInputRejected)

	_, address := newParticipant(t)
	_, err = ledger.Open(context.Background(), &dto.OpenChannelRequest{
		Participant: address, InitialBalance: "-1",
	})
	assert.ErrorIs(t, err, ErrInputRejected)

	_, err = ledger.Open(context.Background(), &dto.OpenChannelRequest{
		Participant: address, InitialBalance: "2000000", // above maxBalance
	})
	assert.ErrorIs(t, err, ErrInputRejected)
}

// The settlement example: open at 10, one signed update to 8.5, close pays
// out 8.5.
func TestSignedUpdateAndCloseFlow(t *testing.T) {
	ledger, settle, _ := newTestLedger()
	privHex, address := newParticipant(t)

	openChannel(t, ledger, address, "10")

	ts := int64(1700000100)
	channel, err := ledger.Update(context.Background(), &dto.UpdateChannelRequest{
		Participant: address,
		NewBalance:  "8.5",
		Timestamp:   ts,
		Signature:   signUpdate(t, privHex, address, "8.5", 1, ts),
	})
	assert.NoError(t, err)
	assert.Equal(t, "8.5", channel.Balance)
	assert.Equal(t, uint64(1), channel.Nonce)

	ts = int64(1700000200)
	closed, err := ledger.Close(context.Background(), &dto.CloseChannelRequest{
		Participant:  address,
		FinalBalance: "8.5",
		Timestamp:    ts,
		Signature:    signUpdate(t, privHex, address, "8.5", 2, ts),
	})
	assert.NoError(t, err)
	assert.Equal(t, models.ChannelStatusClosed, closed.Status)
	assert.False(t, closed.IsActive)
	assert.Equal(t, uint64(2), closed.Nonce)

	assert.Len(t, settle.payouts, 1)
	assert.Equal(t, "8.5", settle.payouts[0].Balance)

	// A closed channel accepts nothing further.
	ts = int64(1700000300)
	_, err = ledger.Update(context.Background(), &dto.UpdateChannelRequest{
		Participant: address,
		NewBalance:  "9",
		Timestamp:   ts,
		Signature:   signUpdate(t, privHex, address, "9", 3, ts),
	})
	assert.ErrorIs(t, err, ErrInputRejected)
}

func TestUpdateRejectsWrongNonce(t *testing.T) {
	ledger, _, _ := newTestLedger()
	privHex, address := newParticipant(t)
	openChannel(t, ledger, address, "10")

	ts := int64(1700000100)

	// Signature over nonce 2 when the channel expects 1.
	_, err := ledger.Update(context.Background(), &dto.UpdateChannelRequest{
		Participant: address,
		NewBalance:  "8.5",
		Timestamp:   ts,
		Signature:   signUpdate(t, privHex, address, "8.5", 2, ts),
	})
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestUpdateReplayRejected(t *testing.T) {
	ledger, _, _ := newTestLedger()
	privHex, address := newParticipant(t)
	openChannel(t, ledger, address, "10")

	ts := int64(1700000100)
	sig := signUpdate(t, privHex, address, "8.5", 1, ts)

	req := &dto.UpdateChannelRequest{
		Participant: address,
		NewBalance:  "8.5",
		Timestamp:   ts,
		Signature:   sig,
	}
	_, err := ledger.Update(context.Background(), req)
	assert.NoError(t, err)

	// The same signed message cannot apply twice: the nonce moved on.
	_, err = ledger.Update(context.Background(), req)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestUpdateRejectsForeignSignature(t *testing.T) {
	ledger, _, _ := newTestLedger()
	_, address := newParticipant(t)
	attackerPriv, _ := newParticipant(t)
	openChannel(t, ledger, address, "10")

	ts := int64(1700000100)
	_, err := ledger.Update(context.Background(), &dto.UpdateChannelRequest{
		Participant: address,
		NewBalance:  "0",
		Timestamp:   ts,
		Signature:   signUpdate(t, attackerPriv, address, "0", 1, ts),
	})
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestUpdateBalanceBounds(t *testing.T) {
	ledger, _, _ := newTestLedger()
	privHex, address := newParticipant(t)
	openChannel(t, ledger, address, "10")

	ts := int64(1700000100)
	_, err := ledger.Update(context.Background(), &dto.UpdateChannelRequest{
		Participant: address,
		NewBalance:  "2000000",
		Timestamp:   ts,
		Signature:   signUpdate(t, privHex, address, "2000000", 1, ts),
	})
	assert.ErrorIs(t, err, ErrInputRejected)
}

func TestEmergencyWithdrawTimelock(t *testing.T) {
	ledger, settle, clk := newTestLedger()
	_, address := newParticipant(t)
	openChannel(t, ledger, address, "10")

	request, err := ledger.RequestEmergencyWithdraw(context.Background(), &dto.EmergencyWithdrawRequest{
		Participant: address,
		Reason:      "counterparty unresponsive",
	})
	assert.NoError(t, err)
	assert.False(t, request.IsExecuted)

	channel, _ := ledger.Get(address)
	assert.Equal(t, models.ChannelStatusEmergencyPending, channel.Status)

	// A second request while one is pending is rejected.
	_, err = ledger.RequestEmergencyWithdraw(context.Background(), &dto.EmergencyWithdrawRequest{
		Participant: address,
	})
	assert.ErrorIs(t, err, ErrInputRejected)

	// Too early.
	clk.advance(86399 * time.Second)
	_, err = ledger.ExecuteEmergencyWithdraw(context.Background(), address)
	assert.ErrorIs(t, err, ErrTimelockNotElapsed)

	status, _ := ledger.EmergencyStatus(address)
	assert.True(t, status.Requested)
	assert.False(t, status.Executable)

	// At the boundary the delay has elapsed.
	clk.advance(time.Second)
	closed, err := ledger.ExecuteEmergencyWithdraw(context.Background(), address)
	assert.NoError(t, err)
	assert.Equal(t, models.ChannelStatusEmergencyClosed, closed.Status)
	assert.False(t, closed.IsActive)
	assert.Len(t, settle.payouts, 1)

	// Re-execution has nothing to act on.
	_, err = ledger.ExecuteEmergencyWithdraw(context.Background(), address)
	assert.ErrorIs(t, err, ErrInputRejected)
}

func TestEmergencyDoesNotBlockCooperativeClose(t *testing.T) {
	ledger, _, _ := newTestLedger()
	privHex, address := newParticipant(t)
	openChannel(t, ledger, address, "10")

	_, err := ledger.RequestEmergencyWithdraw(context.Background(), &dto.EmergencyWithdrawRequest{
		Participant: address,
	})
	assert.NoError(t, err)

	// During the delay a cooperative close still settles normally.
	ts := int64(1700000100)
	closed, err := ledger.Close(context.Background(), &dto.CloseChannelRequest{
		Participant:  address,
		FinalBalance: "10",
		Timestamp:    ts,
		Signature:    signUpdate(t, privHex, address, "10", 1, ts),
	})
	assert.NoError(t, err)
	assert.Equal(t, models.ChannelStatusClosed, closed.Status)

	// The close superseded the pending request entirely.
	status, err := ledger.EmergencyStatus(address)
	assert.NoError(t, err)
	assert.False(t, status.Requested)

	// The pending emergency can no longer execute against a closed channel.
	_, err = ledger.ExecuteEmergencyWithdraw(context.Background(), address)
	assert.ErrorIs(t, err, ErrInputRejected)
}

func TestClosePayoutFailureSurfaced(t *testing.T) {
	ledger, settle, _ := newTestLedger()
	privHex, address := newParticipant(t)
	openChannel(t, ledger, address, "10")

	settle.err = errors.New("executor unavailable")
	ts := int64(1700000100)
	closed, err := ledger.Close(context.Background(), &dto.CloseChannelRequest{
		Participant:  address,
		FinalBalance: "10",
		Timestamp:    ts,
		Signature:    signUpdate(t, privHex, address, "10", 1, ts),
	})
	assert.ErrorIs(t, err, ErrSettlementFailed)

	// The ledger state change is not rolled back.
	assert.NotNil(t, closed)
	assert.False(t, closed.IsActive)
	snapshot, err := ledger.Get(address)
	assert.NoError(t, err)
	assert.Equal(t, models.ChannelStatusClosed, snapshot.Status)
}

func TestEmergencyPayoutFailureSurfaced(t *testing.T) {
	ledger, settle, clk := newTestLedger()
	_, address := newParticipant(t)
	openChannel(t, ledger, address, "10")

	_, err := ledger.RequestEmergencyWithdraw(context.Background(), &dto.EmergencyWithdrawRequest{
		Participant: address,
	})
	assert.NoError(t, err)
	clk.advance(86401 * time.Second)

	settle.err = errors.New("executor unavailable")
	closed, err := ledger.ExecuteEmergencyWithdraw(context.Background(), address)
	assert.ErrorIs(t, err, ErrSettlementFailed)
	assert.NotNil(t, closed)
	assert.False(t, closed.IsActive)
	assert.Equal(t, models.ChannelStatusEmergencyClosed, closed.Status)
}

func TestGetUnknownChannel(t *testing.T) {
	ledger, _, _ := newTestLedger()
	_, err := ledger.Get("0x9999999999999999999999999999999999999999")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ledger.EmergencyStatus("0x9999999999999999999999999999999999999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveCount(t *testing.T) {
	ledger, _, _ := newTestLedger()
	_, a := newParticipant(t)
	privB, b := newParticipant(t)

	openChannel(t, ledger, a, "1")
	openChannel(t, ledger, b, "2")
	assert.Equal(t, int64(2), ledger.ActiveCount())

	ts := int64(1700000100)
	_, err := ledger.Close(context.Background(), &dto.CloseChannelRequest{
		Participant:  b,
		FinalBalance: "2",
		Timestamp:    ts,
		Signature:    signUpdate(t, privB, b, "2", 1, ts),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), ledger.ActiveCount())
}
