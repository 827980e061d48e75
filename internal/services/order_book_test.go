package services

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

const (
	tokenETH  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tokenUSDC = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

var bookSeq int

func bookOrder(isBuy bool, amountIn, amountOut int64, revealedAt time.Time) *BookOrder {
	bookSeq++
	var in, out string
	if isBuy {
		in, out = tokenUSDC, tokenETH
	} else {
		in, out = tokenETH, tokenUSDC
	}
	return &BookOrder{
		Commitment: common.BytesToHash([]byte(fmt.Sprintf("order-%d", bookSeq))),
		Trader:     "0x1111111111111111111111111111111111111111",
		TokenIn:    in,
		TokenOut:   out,
		AmountIn:   big.NewInt(amountIn),
		AmountOut:  big.NewInt(amountOut),
		IsBuy:      isBuy,
		RevealedAt: revealedAt,
	}
}

func TestBookInsertAndSides(t *testing.T) {
	b := NewOrderBook()
	now := time.Now()

	buy := bookOrder(true, 3000, 1, now)
	sell := bookOrder(false, 1, 2900, now)

	assert.True(t, b.Insert(buy))
	assert.True(t, b.Insert(sell))

	buys, sells := b.Depth()
	assert.Equal(t, 1, buys)
	assert.Equal(t, 1, sells)

	// A commitment lives on exactly one side.
	assert.False(t, b.Insert(buy))
	dup := *buy
	dup.IsBuy = false
	assert.False(t, b.Insert(&dup))
}

func TestBookRemove(t *testing.T) {
	b := NewOrderBook()
	sell := bookOrder(false, 1, 2900, time.Now())
	b.Insert(sell)

	removed := b.Remove(sell.Commitment)
	assert.Equal(t, sell, removed)
	assert.Nil(t, b.Remove(sell.Commitment))
	assert.Nil(t, b.Get(sell.Commitment))

	_, sells := b.Depth()
	assert.Equal(t, 0, sells)
}

func TestCrossedExactArithmetic(t *testing.T) {
	// Buy pays 3000 USDC for 1 ETH; sell asks 2900 USDC per ETH: crossed.
	buy := bookOrder(true, 3000, 1, time.Now())
	sell := bookOrder(false, 1, 2900, time.Now())
	assert.True(t, crossed(buy, sell))

	// Ask above the bid: not crossed.
	sellHigh := bookOrder(false, 1, 3001, time.Now())
	assert.False(t, crossed(buy, sellHigh))

	// Exactly equal prices cross.
	sellEqual := bookOrder(false, 1, 3000, time.Now())
	assert.True(t, crossed(buy, sellEqual))
}

// Large amounts must not overflow; crossing uses exact integer products.
func TestCrossedBigAmounts(t *testing.T) {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	buy := bookOrder(true, 1, 1, time.Now())
	buy.AmountIn = new(big.Int).Mul(big.NewInt(3000), wei)
	buy.AmountOut = new(big.Int).Set(wei)

	sell := bookOrder(false, 1, 1, time.Now())
	sell.AmountIn = new(big.Int).Set(wei)
	sell.AmountOut = new(big.Int).Mul(big.NewInt(2999), wei)

	assert.True(t, crossed(buy, sell))

	sell.AmountOut = new(big.Int).Mul(big.NewInt(3001), wei)
	assert.False(t, crossed(buy, sell))
}

func TestMatchesForPriceTimePriority(t *testing.T) {
	b := NewOrderBook()
	base := time.Now()

	cheapLate := bookOrder(false, 1, 2800, base.Add(2*time.Second))
	cheapEarly := bookOrder(false, 1, 2800, base.Add(time.Second))
	expensive := bookOrder(false, 1, 2900, base)
	tooHigh := bookOrder(false, 1, 5000, base)

	b.Insert(cheapLate)
	b.Insert(cheapEarly)
	b.Insert(expensive)
	b.Insert(tooHigh)

	buy := bookOrder(true, 3000, 1, base)
	candidates := b.MatchesFor(buy)

	// Best price first; same price broken by earliest reveal; non-crossing
	// excluded entirely.
	assert.Len(t, candidates, 3)
	assert.Equal(t, cheapEarly.Commitment, candidates[0].Commitment)
	assert.Equal(t, cheapLate.Commitment, candidates[1].Commitment)
	assert.Equal(t, expensive.Commitment, candidates[2].Commitment)
}

func TestMatchesForMirroredTokensOnly(t *testing.T) {
	b := NewOrderBook()
	now := time.Now()

	sell := bookOrder(false, 1, 2900, now)
	sell.TokenIn = "0xcccccccccccccccccccccccccccccccccccccccc" // different pair
	b.Insert(sell)

	buy := bookOrder(true, 3000, 1, now)
	assert.Empty(t, b.MatchesFor(buy))
}

func TestMatchesForSellTaker(t *testing.T) {
	b := NewOrderBook()
	now := time.Now()

	lowBid := bookOrder(true, 2800, 1, now)
	highBid := bookOrder(true, 3000, 1, now)
	b.Insert(lowBid)
	b.Insert(highBid)

	sell := bookOrder(false, 1, 2900, now)
	candidates := b.MatchesFor(sell)

	// Only the 3000 bid crosses a 2900 ask, and a higher bid is the better
	// price for a sell taker.
	assert.Len(t, candidates, 1)
	assert.Equal(t, highBid.Commitment, candidates[0].Commitment)
}

func TestBuysInRevealOrder(t *testing.T) {
	b := NewOrderBook()
	base := time.Now()

	second := bookOrder(true, 3000, 1, base.Add(time.Second))
	first := bookOrder(true, 2000, 1, base)
	b.Insert(second)
	b.Insert(first)

	buys := b.BuysInRevealOrder()
	assert.Len(t, buys, 2)
	assert.Equal(t, first.Commitment, buys[0].Commitment)
	assert.Equal(t, second.Commitment, buys[1].Commitment)
}
