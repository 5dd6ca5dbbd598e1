package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SumPayload is the payload for the "sum" task.
type SumPayload struct {
	Numbers []float64 `json:"numbers"`
}

// SleepPayload is the payload for the "sleep" task, used in tests and
// demos to exercise the timeout path end-to-end.
type SleepPayload struct {
	Seconds float64 `json:"seconds"`
}

// MonthlyBillPayload is the payload for "generate_monthly_bill". Every
// field must be present (see monthlyBillRequiredFields); UserID,
// BillingPeriod and SubscriptionPlan are passthrough metadata, and only
// BasePrice and Purchases affect the computed charge.
type MonthlyBillPayload struct {
	UserID           string    `json:"user_id"`
	BillingPeriod    string    `json:"billing_period"`
	SubscriptionPlan string    `json:"subscription_plan"`
	BasePrice        float64   `json:"base_price"`
	Purchases        []float64 `json:"purchases"`
}

// MonthlyBill is the result of "generate_monthly_bill".
type MonthlyBill struct {
	UserID             string  `json:"user_id"`
	BillingPeriod      string  `json:"billing_period"`
	SubscriptionPlan   string  `json:"subscription_plan"`
	SubscriptionCharge float64 `json:"subscription_charge"`
	PurchasesTotal     float64 `json:"purchases_total"`
	TotalCharge        float64 `json:"total_charge"`
}

// SumTask sums payload.numbers and returns a human-readable string,
// grounded on the original sum_task.
func SumTask(_ context.Context, raw json.RawMessage) (any, error) {
	var p SumPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	var total float64
	for _, n := range p.Numbers {
		total += n
	}

	return fmt.Sprintf("Sum is %s", trimFloat(total)), nil
}

// FailTask always fails, grounded on the original fail_task.
func FailTask(context.Context, json.RawMessage) (any, error) {
	return nil, errors.New("This task always fails!")
}

// SleepTask sleeps for payload.seconds, honoring cancellation so a
// timed-out invocation doesn't linger past the point its result would be
// discarded anyway.
func SleepTask(ctx context.Context, raw json.RawMessage) (any, error) {
	var p SleepPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	d := time.Duration(p.Seconds * float64(time.Second))

	select {
	case <-time.After(d):
		return fmt.Sprintf("Slept for %s seconds.", trimFloat(p.Seconds)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// monthlyBillRequiredFields lists the payload keys generate_monthly_bill
// rejects as missing, checked by presence rather than zero value so a
// caller can't satisfy the check by omitting a field that happens to
// decode to "" or 0.
var monthlyBillRequiredFields = []string{"user_id", "billing_period", "subscription_plan", "base_price", "purchases"}

// GenerateMonthlyBillTask computes a subscription bill, grounded on the
// original generate_monthly_bill.
func GenerateMonthlyBillTask(_ context.Context, raw json.RawMessage) (any, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	for _, name := range monthlyBillRequiredFields {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("Missing required field: %s", name)
		}
	}

	var purchases []float64
	if err := json.Unmarshal(fields["purchases"], &purchases); err != nil {
		return nil, errors.New("purchases must be a list")
	}

	var p MonthlyBillPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	if p.BasePrice < 0 {
		return nil, errors.New("base_price must be a non-negative number")
	}

	var purchasesTotal float64
	for _, price := range p.Purchases {
		if price < 0 {
			return nil, errors.New("Purchase price must be a non-negative number")
		}
		purchasesTotal += price
	}

	total := p.BasePrice + purchasesTotal

	return MonthlyBill{
		UserID:             p.UserID,
		BillingPeriod:      p.BillingPeriod,
		SubscriptionPlan:   p.SubscriptionPlan,
		SubscriptionCharge: round2(p.BasePrice),
		PurchasesTotal:     round2(purchasesTotal),
		TotalCharge:        round2(total),
	}, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// trimFloat renders a float without a trailing ".0" for whole numbers,
// matching the original Python f-string formatting.
func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// Register wires every built-in task into r.
func Register(r *Registry) {
	r.Register("sum", SumTask)
	r.Register("fail", FailTask)
	r.Register("sleep", SleepTask)
	r.Register("generate_monthly_bill", GenerateMonthlyBillTask)
}
