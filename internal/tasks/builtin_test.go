package tasks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumTask(t *testing.T) {
	payload, _ := json.Marshal(SumPayload{Numbers: []float64{1, 2, 3}})

	result, err := SumTask(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "Sum is 6", result)
}

func TestFailTask(t *testing.T) {
	_, err := FailTask(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "This task always fails!", err.Error())
}

func TestGenerateMonthlyBillTask(t *testing.T) {
	payload, _ := json.Marshal(MonthlyBillPayload{
		BasePrice: 14.99,
		Purchases: []float64{3.99, 5.99},
	})

	result, err := GenerateMonthlyBillTask(context.Background(), payload)
	require.NoError(t, err)

	bill, ok := result.(MonthlyBill)
	require.True(t, ok)
	assert.Equal(t, 14.99, bill.SubscriptionCharge)
	assert.Equal(t, 9.98, bill.PurchasesTotal)
	assert.Equal(t, 24.97, bill.TotalCharge)
}

func TestGenerateMonthlyBillTask_NegativePurchase(t *testing.T) {
	payload, _ := json.Marshal(MonthlyBillPayload{
		BasePrice: 10,
		Purchases: []float64{-1},
	})

	_, err := GenerateMonthlyBillTask(context.Background(), payload)
	require.Error(t, err)
}

func TestGenerateMonthlyBillTask_MissingRequiredField(t *testing.T) {
	payload := []byte(`{"user_id":"u1","billing_period":"2026-01","subscription_plan":"pro","purchases":[1.0]}`)

	_, err := GenerateMonthlyBillTask(context.Background(), payload)
	require.Error(t, err)
	assert.Equal(t, "Missing required field: base_price", err.Error())
}

func TestGenerateMonthlyBillTask_PurchasesNotAList(t *testing.T) {
	payload := []byte(`{"user_id":"u1","billing_period":"2026-01","subscription_plan":"pro","base_price":10,"purchases":"oops"}`)

	_, err := GenerateMonthlyBillTask(context.Background(), payload)
	require.Error(t, err)
	assert.Equal(t, "purchases must be a list", err.Error())
}

func TestRegistry_LookupAfterFreeze(t *testing.T) {
	r := NewRegistry()
	Register(r)
	r.Freeze()

	fn, err := r.Lookup("sum")
	require.NoError(t, err)
	require.NotNil(t, fn)

	_, err = r.Lookup("does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownTask)
}
