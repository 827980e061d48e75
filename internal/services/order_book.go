package services

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BookOrder is a revealed order resident in the book, with amounts parsed
// once at insertion so matching never re-parses strings.
type BookOrder struct {
	Commitment common.Hash
	Trader     string
	TokenIn    string
	TokenOut   string
	AmountIn   *big.Int
	AmountOut  *big.Int
	IsBuy      bool
	RevealedAt time.Time
	seq        uint64 // insertion order, breaks equal-timestamp ties
}

// Price-time candidate ordering and the crossing predicate work on exact
// integer cross-products; no floats anywhere in the matching path.

// crossed reports whether the buy and sell prices cross:
// buy.amountOut/buy.amountIn >= sell.amountOut/sell.amountIn.
func crossed(buy, sell *BookOrder) bool {
	left := new(big.Int).Mul(buy.AmountOut, sell.AmountIn)
	right := new(big.Int).Mul(sell.AmountOut, buy.AmountIn)
	return left.Cmp(right) >= 0
}

// tokensMirror reports whether the two orders trade the same pair in
// opposite directions.
func tokensMirror(buy, sell *BookOrder) bool {
	return buy.TokenIn == sell.TokenOut && buy.TokenOut == sell.TokenIn
}

// betterPriced reports whether candidate a offers a strictly better price
// than b for the opposite side (lower amountOut/amountIn).
func betterPriced(a, b *BookOrder) bool {
	left := new(big.Int).Mul(a.AmountOut, b.AmountIn)
	right := new(big.Int).Mul(b.AmountOut, a.AmountIn)
	return left.Cmp(right) < 0
}

// samePriced reports whether two candidates quote the same price.
func samePriced(a, b *BookOrder) bool {
	left := new(big.Int).Mul(a.AmountOut, b.AmountIn)
	right := new(big.Int).Mul(b.AmountOut, a.AmountIn)
	return left.Cmp(right) == 0
}

// OrderBook indexes revealed orders by commitment, split into buy and sell
// sides. A commitment is present on at most one side at any time. Not safe
// for concurrent use; the engine serializes access under its epoch lock.
type OrderBook struct {
	buys    map[common.Hash]*BookOrder
	sells   map[common.Hash]*BookOrder
	nextSeq uint64
}

// NewOrderBook creates an empty order book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		buys:  make(map[common.Hash]*BookOrder),
		sells: make(map[common.Hash]*BookOrder),
	}
}

// Insert adds an order to its side. Returns false if the commitment is
// already resident on either side.
func (b *OrderBook) Insert(order *BookOrder) bool {
	if _, ok := b.buys[order.Commitment]; ok {
		return false
	}
	if _, ok := b.sells[order.Commitment]; ok {
		return false
	}

	order.seq = b.nextSeq
	b.nextSeq++

	if order.IsBuy {
		b.buys[order.Commitment] = order
	} else {
		b.sells[order.Commitment] = order
	}
	return true
}

// Remove deletes the order from whichever side holds it and returns it, or
// nil if absent.
func (b *OrderBook) Remove(commitment common.Hash) *BookOrder {
	if order, ok := b.buys[commitment]; ok {
		delete(b.buys, commitment)
		return order
	}
	if order, ok := b.sells[commitment]; ok {
		delete(b.sells, commitment)
		return order
	}
	return nil
}

// Get returns the resident order for a commitment, or nil.
func (b *OrderBook) Get(commitment common.Hash) *BookOrder {
	if order, ok := b.buys[commitment]; ok {
		return order
	}
	if order, ok := b.sells[commitment]; ok {
		return order
	}
	return nil
}

// Depth returns the resting order count per side.
func (b *OrderBook) Depth() (buys, sells int) {
	return len(b.buys), len(b.sells)
}

// MatchesFor returns opposite-side candidates compatible with the order
// (mirrored tokens, crossed prices), best price first, equal prices broken by
// earliest reveal.
func (b *OrderBook) MatchesFor(order *BookOrder) []*BookOrder {
	var side map[common.Hash]*BookOrder
	if order.IsBuy {
		side = b.sells
	} else {
		side = b.buys
	}

	var candidates []*BookOrder
	for _, candidate := range side {
		var buy, sell *BookOrder
		if order.IsBuy {
			buy, sell = order, candidate
		} else {
			buy, sell = candidate, order
		}
		if tokensMirror(buy, sell) && crossed(buy, sell) {
			candidates = append(candidates, candidate)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, c := candidates[i], candidates[j]
		if samePriced(a, c) {
			if a.RevealedAt.Equal(c.RevealedAt) {
				return a.seq < c.seq
			}
			return a.RevealedAt.Before(c.RevealedAt)
		}
		return betterPriced(a, c)
	})
	return candidates
}

// BuysInRevealOrder returns the buy side in reveal-arrival order, the scan
// order for one matching pass.
func (b *OrderBook) BuysInRevealOrder() []*BookOrder {
	buys := make([]*BookOrder, 0, len(b.buys))
	for _, order := range b.buys {
		buys = append(buys, order)
	}
	sort.Slice(buys, func(i, j int) bool {
		if buys[i].RevealedAt.Equal(buys[j].RevealedAt) {
			return buys[i].seq < buys[j].seq
		}
		return buys[i].RevealedAt.Before(buys[j].RevealedAt)
	})
	return buys
}

// All returns every resident order, used by the stale-order sweep.
func (b *OrderBook) All() []*BookOrder {
	all := make([]*BookOrder, 0, len(b.buys)+len(b.sells))
	for _, order := range b.buys {
		all = append(all, order)
	}
	for _, order := range b.sells {
		all = append(all, order)
	}
	return all
}
