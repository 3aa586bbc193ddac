package order

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumItems(t *testing.T) {
	items := []Item{
		{ItemID: "A", Price: 1250, Quantity: 1},
		{ItemID: "B", Price: 725, Quantity: 1},
	}
	assert.Equal(t, Money(1975), SumItems(items))
	assert.Equal(t, "19.75", SumItems(items).String())

	items = append(items, Item{ItemID: "C", Price: 300, Quantity: 3})
	assert.Equal(t, Money(2875), SumItems(items))
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Total Money `json:"total"`
	}{Total: 1975})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"19.75"}`, string(b))

	b, err = json.Marshal(Money(10000))
	require.NoError(t, err)
	assert.Equal(t, `"100.00"`, string(b))
}

func TestMoneyFromDecimal(t *testing.T) {
	m, err := MoneyFromDecimal(decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.Equal(t, Money(1250), m)

	_, err = MoneyFromDecimal(decimal.RequireFromString("0.001"))
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusPaid.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("refunded").Valid())
}
