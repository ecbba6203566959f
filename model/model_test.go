package model

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("exe")
	assert.True(t, strings.HasPrefix(id, "exe_"))
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("exe"))
}

func TestCreditsForTokens(t *testing.T) {
	rate := decimal.NewFromInt(2) // 2 credits per 1000 tokens

	assert.Equal(t, int64(0), CreditsForTokens(0, rate))
	assert.Equal(t, int64(0), CreditsForTokens(-10, rate))
	assert.Equal(t, int64(2), CreditsForTokens(1000, rate))
	// partial thousands round up
	assert.Equal(t, int64(1), CreditsForTokens(1, rate))
	assert.Equal(t, int64(3), CreditsForTokens(1001, rate))
}

func TestValidTransactionType(t *testing.T) {
	assert.True(t, ValidTransactionType(TransactionTypePurchase))
	assert.True(t, ValidTransactionType(TransactionTypeRedemption))
	assert.True(t, ValidTransactionType(TransactionTypeAdjustment))
	assert.True(t, ValidTransactionType(TransactionTypeRefund))
	assert.False(t, ValidTransactionType("chargeback"))
}
