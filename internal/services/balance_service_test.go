package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestBalanceBook(t *testing.T) *BalanceBook {
	book, err := NewBalanceBook(context.Background(), nil)
	assert.NoError(t, err)
	return book
}

func TestBalanceBookSetAndList(t *testing.T) {
	book := newTestBalanceBook(t)
	user := "0x1111111111111111111111111111111111111111"

	assert.Empty(t, book.Balances(user))

	_, err := book.Set(context.Background(), user, tokenUSDC, "100.5")
	assert.NoError(t, err)
	_, err = book.Set(context.Background(), user, tokenETH, "2")
	assert.NoError(t, err)

	balances := book.Balances(user)
	assert.Len(t, balances, 2)

	// Absolute overwrite, not accumulation.
	_, err = book.Set(context.Background(), user, tokenUSDC, "40")
	assert.NoError(t, err)
	balances = book.Balances(user)
	assert.Len(t, balances, 2)
	for _, b := range balances {
		if b.Token == tokenUSDC {
			assert.Equal(t, "40", b.Amount)
		}
	}

	// Lookups are case-insensitive on the address.
	other := "0xAbCd111111111111111111111111111111111111"
	_, err = book.Set(context.Background(), other, tokenUSDC, "7")
	assert.NoError(t, err)
	assert.Len(t, book.Balances("0xabcd111111111111111111111111111111111111"), 1)
}

func TestBalanceBookValidation(t *testing.T) {
	book := newTestBalanceBook(t)
	user := "0x1111111111111111111111111111111111111111"

	_, err := book.Set(context.Background(), "not-an-address", tokenUSDC, "1")
	assert.ErrorIs(t, err, ErrInputRejected)
	_, err = book.Set(context.Background(), user, "not-a-token", "1")
	assert.ErrorIs(t, err, ErrInputRejected)
	_, err = book.Set(context.Background(), user, tokenUSDC, "-1")
	assert.ErrorIs(t, err, ErrInputRejected)
	_, err = book.Set(context.Background(), user, tokenUSDC, "abc")
	assert.ErrorIs(t, err, ErrInputRejected)
}
