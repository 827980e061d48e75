package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/stretchr/testify/assert"

	"darkpool-backend/internal/config"
	"darkpool-backend/internal/crypto"
	"darkpool-backend/internal/dto"
	"darkpool-backend/internal/models"
)

const (
	buyTrader  = "0x1111111111111111111111111111111111111111"
	sellTrader = "0x2222222222222222222222222222222222222222"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type testKeys struct{ priv *ecies.PrivateKey }

func newTestKeys(t *testing.T) *testKeys {
	key, err := ethcrypto.GenerateKey()
	assert.NoError(t, err)
	return &testKeys{priv: ecies.ImportECDSA(key)}
}

func (k *testKeys) EnginePrivateKey() *ecies.PrivateKey { return k.priv }

func (k *testKeys) EnginePublicKeyHex() string { return crypto.PublicKeyHex(k.priv) }

type stubSettlement struct {
	matches []*models.Match
	payouts []*models.Channel
	err     error
}

func (s *stubSettlement) ExecuteMatch(ctx context.Context, match *models.Match) error {
	if s.err != nil {
		return s.err
	}
	s.matches = append(s.matches, match)
	return nil
}

func (s *stubSettlement) ExecuteChannelPayout(ctx context.Context, channel *models.Channel) error {
	if s.err != nil {
		return s.err
	}
	s.payouts = append(s.payouts, channel)
	return nil
}

func newTestEngine(t *testing.T) (*MatchingEngine, *stubSettlement, *fakeClock) {
	cfg := &config.EngineConfig{
		EpochInterval: 1000,
		CommitWindow:  300,
		RevealWindow:  600,
	}
	settle := &stubSettlement{}
	clk := &fakeClock{t: time.Unix(1700000000, 0)}

	engine := NewMatchingEngine(cfg, newTestKeys(t), nil, settle, nil, nil, nil)
	engine.now = clk.now
	return engine, settle, clk
}

// commitAndReveal runs the full client-side protocol: hash the order, submit
// the commitment, seal the payload to the engine key and submit the reveal.
func commitAndReveal(t *testing.T, engine *MatchingEngine, trader string, isBuy bool, amountIn, amountOut int64, secretNonce uint64) string {
	var tokenIn, tokenOut string
	if isBuy {
		tokenIn, tokenOut = tokenUSDC, tokenETH
	} else {
		tokenIn, tokenOut = tokenETH, tokenUSDC
	}

	fields := crypto.OrderFields{
		Trader:    trader,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  big.NewInt(amountIn),
		AmountOut: big.NewInt(amountOut),
		IsBuy:     isBuy,
	}
	commitment, err := crypto.Commit(fields, secretNonce)
	assert.NoError(t, err)

	_, err = engine.Commit(context.Background(), trader, commitment.Hex())
	assert.NoError(t, err)

	payload := dto.OrderPayload{
		Trader:      trader,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    big.NewInt(amountIn).String(),
		AmountOut:   big.NewInt(amountOut).String(),
		IsBuy:       isBuy,
		SecretNonce: secretNonce,
	}
	plaintext, err := json.Marshal(payload)
	assert.NoError(t, err)

	pub, err := crypto.ParseEnginePublicKey(engine.EnginePublicKeyHex())
	assert.NoError(t, err)
	ciphertext, err := crypto.EncryptEnvelope(pub, plaintext)
	assert.NoError(t, err)

	err = engine.Reveal(context.Background(), &dto.RevealRequest{
		Commitment: commitment.Hex(),
		Ciphertext: hex.EncodeToString(ciphertext),
	})
	assert.NoError(t, err)
	return commitment.Hex()
}

func TestCommitRevealMatchFullFlow(t *testing.T) {
	engine, settle, _ := newTestEngine(t)

	// Buy 1 ETH for 3000 USDC; sell 1 ETH asking 2900 USDC.
	buyCommitment := commitAndReveal(t, engine, buyTrader, true, 3000, 1, 11)
	sellCommitment := commitAndReveal(t, engine, sellTrader, false, 1, 2900, 22)

	engine.Tick(context.Background())

	assert.Len(t, settle.matches, 1)
	match := settle.matches[0]
	assert.Equal(t, buyCommitment, match.BuyCommitment)
	assert.Equal(t, sellCommitment, match.SellCommitment)
	// Execution at the resting sell's quote, favorable to the taker.
	assert.Equal(t, "2900.000000000000000000", match.MatchPrice)
	// Quote units exchanged at that price.
	assert.Equal(t, "2900", match.Volume)

	depth := engine.Depth()
	assert.Equal(t, 0, depth.Buys)
	assert.Equal(t, 0, depth.Sells)
}

func TestNonCrossingOrdersRest(t *testing.T) {
	engine, settle, _ := newTestEngine(t)

	commitAndReveal(t, engine, buyTrader, true, 2800, 1, 11)
	commitAndReveal(t, engine, sellTrader, false, 1, 2900, 22)

	engine.Tick(context.Background())

	assert.Empty(t, settle.matches)
	depth := engine.Depth()
	assert.Equal(t, 1, depth.Buys)
	assert.Equal(t, 1, depth.Sells)
}

func TestBestPricedSellWins(t *testing.T) {
	engine, settle, _ := newTestEngine(t)

	cheap := commitAndReveal(t, engine, sellTrader, false, 1, 2800, 22)
	commitAndReveal(t, engine, "0x3333333333333333333333333333333333333333", false, 1, 2900, 33)
	commitAndReveal(t, engine, buyTrader, true, 3000, 1, 11)

	engine.Tick(context.Background())

	assert.Len(t, settle.matches, 1)
	assert.Equal(t, cheap, settle.matches[0].SellCommitment)
	assert.Equal(t, "2800.000000000000000000", settle.matches[0].MatchPrice)

	depth := engine.Depth()
	assert.Equal(t, 1, depth.Sells)
}

func TestDuplicateCommitmentRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	c, _ := crypto.Commit(crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), IsBuy: true,
	}, 1)

	_, err := engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.NoError(t, err)
	_, err = engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.ErrorIs(t, err, ErrInputRejected)
}

func TestCommitRejectsMalformedInput(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Commit(context.Background(), buyTrader, "0x1234")
	assert.ErrorIs(t, err, ErrInputRejected)

	zero := "0x" + "0000000000000000000000000000000000000000000000000000000000000000"
	_, err = engine.Commit(context.Background(), buyTrader, zero)
	assert.ErrorIs(t, err, ErrInputRejected)

	c, _ := crypto.Commit(crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), IsBuy: true,
	}, 2)
	_, err = engine.Commit(context.Background(), "not-an-address", c.Hex())
	assert.ErrorIs(t, err, ErrInputRejected)
}

func TestRevealUnknownCommitment(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.Reveal(context.Background(), &dto.RevealRequest{
		Commitment: "0x" + "11111111111111111111111111111111111111111111111111111111111111aa",
		Ciphertext: "deadbeef",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevealWindowBoundary(t *testing.T) {
	engine, _, clk := newTestEngine(t)

	c, _ := crypto.Commit(crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), IsBuy: true,
	}, 3)
	_, err := engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.NoError(t, err)

	// Exactly at the deadline: still inside the window.
	clk.advance(300 * time.Second)
	err = engine.Reveal(context.Background(), &dto.RevealRequest{
		Commitment: c.Hex(),
		Ciphertext: "deadbeef",
	})
	assert.NoError(t, err)
}

func TestRevealAfterWindowExpires(t *testing.T) {
	engine, _, clk := newTestEngine(t)

	c, _ := crypto.Commit(crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), IsBuy: true,
	}, 4)
	_, err := engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.NoError(t, err)

	clk.advance(301 * time.Second)
	err = engine.Reveal(context.Background(), &dto.RevealRequest{
		Commitment: c.Hex(),
		Ciphertext: "deadbeef",
	})
	assert.ErrorIs(t, err, ErrWindowExpired)

	// The commitment is terminally expired; a second attempt is not a
	// window error anymore.
	err = engine.Reveal(context.Background(), &dto.RevealRequest{
		Commitment: c.Hex(),
		Ciphertext: "deadbeef",
	})
	assert.ErrorIs(t, err, ErrInputRejected)
}

func TestRevealMismatchedPayloadDropped(t *testing.T) {
	engine, settle, _ := newTestEngine(t)

	fields := crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(3000), AmountOut: big.NewInt(1), IsBuy: true,
	}
	commitment, _ := crypto.Commit(fields, 5)
	_, err := engine.Commit(context.Background(), buyTrader, commitment.Hex())
	assert.NoError(t, err)

	// Payload claims a different amount than was committed.
	payload := dto.OrderPayload{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: "9000", AmountOut: "1", IsBuy: true, SecretNonce: 5,
	}
	plaintext, _ := json.Marshal(payload)
	pub, _ := crypto.ParseEnginePublicKey(engine.EnginePublicKeyHex())
	ciphertext, _ := crypto.EncryptEnvelope(pub, plaintext)

	err = engine.Reveal(context.Background(), &dto.RevealRequest{
		Commitment: commitment.Hex(),
		Ciphertext: hex.EncodeToString(ciphertext),
	})
	assert.NoError(t, err)

	engine.Tick(context.Background())

	assert.Empty(t, settle.matches)
	depth := engine.Depth()
	assert.Equal(t, 0, depth.Buys)
}

func TestUndecryptableRevealDropped(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	c, _ := crypto.Commit(crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), IsBuy: true,
	}, 6)
	_, err := engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.NoError(t, err)

	err = engine.Reveal(context.Background(), &dto.RevealRequest{
		Commitment: c.Hex(),
		Ciphertext: "deadbeefdeadbeef",
	})
	assert.NoError(t, err)

	engine.Tick(context.Background())
	depth := engine.Depth()
	assert.Equal(t, 0, depth.Buys)
}

func TestCancel(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	c, _ := crypto.Commit(crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), IsBuy: true,
	}, 7)
	_, err := engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.NoError(t, err)

	// Another trader cannot cancel it.
	assert.ErrorIs(t, engine.Cancel(context.Background(), sellTrader, c.Hex()), ErrInputRejected)

	assert.NoError(t, engine.Cancel(context.Background(), buyTrader, c.Hex()))

	// Cancelled commitments cannot be revealed or re-cancelled.
	err = engine.Reveal(context.Background(), &dto.RevealRequest{Commitment: c.Hex(), Ciphertext: "ff"})
	assert.ErrorIs(t, err, ErrInputRejected)
	assert.ErrorIs(t, engine.Cancel(context.Background(), buyTrader, c.Hex()), ErrInputRejected)
}

func TestPauseBlocksIntake(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.Pause()

	c, _ := crypto.Commit(crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), IsBuy: true,
	}, 8)
	_, err := engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.ErrorIs(t, err, ErrTradingPaused)

	engine.Resume()
	_, err = engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.NoError(t, err)
}

func TestStaleOrdersSwept(t *testing.T) {
	engine, settle, clk := newTestEngine(t)

	commitAndReveal(t, engine, buyTrader, true, 2000, 1, 9)
	engine.Tick(context.Background())
	assert.Equal(t, 1, engine.Depth().Buys)

	// Past the reveal window the resting order is swept before matching, so
	// a late crossing sell cannot hit it.
	clk.advance(601 * time.Second)
	commitAndReveal(t, engine, sellTrader, false, 1, 1900, 10)
	engine.Tick(context.Background())

	assert.Empty(t, settle.matches)
	depth := engine.Depth()
	assert.Equal(t, 0, depth.Buys)
	assert.Equal(t, 1, depth.Sells)
}

func TestCancelAfterWindowExpires(t *testing.T) {
	engine, _, clk := newTestEngine(t)

	c, _ := crypto.Commit(crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), IsBuy: true,
	}, 5)
	_, err := engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.NoError(t, err)

	clk.advance(301 * time.Second)
	assert.ErrorIs(t, engine.Cancel(context.Background(), buyTrader, c.Hex()), ErrWindowExpired)

	// The late cancel terminally expired the commitment rather than
	// marking it cancelled.
	status, err := engine.CommitmentStatus(c.Hex())
	assert.NoError(t, err)
	assert.Equal(t, string(models.CommitmentStatusExpired), status.Status)
	assert.ErrorIs(t, engine.Cancel(context.Background(), buyTrader, c.Hex()), ErrInputRejected)
}

func TestCancelWindowBoundary(t *testing.T) {
	engine, _, clk := newTestEngine(t)

	c, _ := crypto.Commit(crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), IsBuy: true,
	}, 6)
	_, err := engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.NoError(t, err)

	// Exactly at the window edge a cancel is still accepted.
	clk.advance(300 * time.Second)
	assert.NoError(t, engine.Cancel(context.Background(), buyTrader, c.Hex()))
}

func TestCommitmentStatusQuery(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.CommitmentStatus("0xdeadbeef")
	assert.ErrorIs(t, err, ErrInputRejected)

	c, _ := crypto.Commit(crypto.OrderFields{
		Trader: buyTrader, TokenIn: tokenUSDC, TokenOut: tokenETH,
		AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), IsBuy: true,
	}, 11)
	_, err = engine.CommitmentStatus(c.Hex())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = engine.Commit(context.Background(), buyTrader, c.Hex())
	assert.NoError(t, err)

	status, err := engine.CommitmentStatus(c.Hex())
	assert.NoError(t, err)
	assert.Equal(t, string(models.CommitmentStatusPending), status.Status)
	assert.False(t, status.Resting)

	commitment := commitAndReveal(t, engine, buyTrader, true, 2900, 1, 12)
	engine.Tick(context.Background())

	status, err = engine.CommitmentStatus(commitment)
	assert.NoError(t, err)
	assert.Equal(t, string(models.CommitmentStatusRevealed), status.Status)
	assert.True(t, status.Resting)
}

func TestEpochInfoAdvances(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	info := engine.EpochInfo()
	assert.Equal(t, uint64(0), info.CurrentEpoch)

	engine.Tick(context.Background())
	engine.Tick(context.Background())

	info = engine.EpochInfo()
	assert.Equal(t, uint64(2), info.CurrentEpoch)
	assert.False(t, info.Paused)
	assert.NotEmpty(t, info.LastTickAt)
}

func TestSettlementFailureDoesNotRecordMatch(t *testing.T) {
	engine, settle, _ := newTestEngine(t)
	settle.err = ErrSettlementFailed

	commitAndReveal(t, engine, buyTrader, true, 3000, 1, 11)
	commitAndReveal(t, engine, sellTrader, false, 1, 2900, 22)

	engine.Tick(context.Background())

	assert.Empty(t, settle.matches)
	// Both orders left the book; the failure is terminal for the pair.
	depth := engine.Depth()
	assert.Equal(t, 0, depth.Buys)
	assert.Equal(t, 0, depth.Sells)
}
