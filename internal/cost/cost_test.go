package cost

import (
	"errors"
	"math"
	"testing"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEstimateCostSubscriptionTracksSavingsNotCost(t *testing.T) {
	est := EstimateCost("anthropic", "claude-3-5-sonnet-20241022", 10000, 2000, BillingSubscription)
	if !est.RateFound {
		t.Fatal("RateFound = false, want true")
	}
	if est.CostUSD != 0 {
		t.Errorf("CostUSD = %v, want 0 under subscription billing", est.CostUSD)
	}
	want := (10000*3.0 + 2000*15.0) / 1_000_000
	if !approxEqual(est.SavingsUSD, want) {
		t.Errorf("SavingsUSD = %v, want ~%v", est.SavingsUSD, want)
	}
}

func TestEstimateCostAPIBillingChargesCost(t *testing.T) {
	est := EstimateCost("anthropic", "claude-3-5-sonnet-20241022", 10000, 2000, BillingAPI)
	want := (10000*3.0 + 2000*15.0) / 1_000_000
	if !approxEqual(est.CostUSD, want) {
		t.Errorf("CostUSD = %v, want ~%v", est.CostUSD, want)
	}
	if est.SavingsUSD != 0 {
		t.Errorf("SavingsUSD = %v, want 0 under API billing", est.SavingsUSD)
	}
}

func TestEstimateCostUnknownPairIsSafe(t *testing.T) {
	est := EstimateCost("unknown-provider", "unknown-model", 1000, 1000, BillingAPI)
	if est.RateFound {
		t.Fatal("RateFound = true for an unregistered provider/model pair")
	}
	if est.CostUSD != 0 || est.SavingsUSD != 0 {
		t.Errorf("unknown pair produced nonzero pricing: cost=%v savings=%v", est.CostUSD, est.SavingsUSD)
	}
}

func TestLookupRateResolvesProviderAndModelAliases(t *testing.T) {
	direct, ok := LookupRate("anthropic", "claude-3-5-sonnet-20241022")
	if !ok {
		t.Fatal("direct lookup failed")
	}
	aliased, ok := LookupRate("Claude", "Sonnet")
	if !ok {
		t.Fatal("aliased lookup failed")
	}
	if aliased != direct {
		t.Errorf("aliased rate %+v != direct rate %+v", aliased, direct)
	}
}

func TestCheckTaskBudgetExceeded(t *testing.T) {
	err := CheckTaskBudget("task-1", 1.00, 0.90, 0.20)
	var budgetErr *BudgetExceeded
	if !errors.As(err, &budgetErr) {
		t.Fatalf("CheckTaskBudget() error = %v, want *BudgetExceeded", err)
	}
	if budgetErr.Scope != "task" || budgetErr.ID != "task-1" {
		t.Errorf("BudgetExceeded = %+v, want scope=task id=task-1", budgetErr)
	}
}

func TestCheckTaskBudgetWithinLimitIsNil(t *testing.T) {
	if err := CheckTaskBudget("task-1", 1.00, 0.50, 0.20); err != nil {
		t.Errorf("CheckTaskBudget() = %v, want nil", err)
	}
}

func TestCheckBudgetUnboundedWhenZero(t *testing.T) {
	if err := CheckTaskBudget("task-1", 0, 1000, 1000); err != nil {
		t.Errorf("CheckTaskBudget() with zero budget = %v, want nil (unbounded)", err)
	}
	if err := CheckSessionBudget("session-1", 0, 1000, 1000); err != nil {
		t.Errorf("CheckSessionBudget() with zero budget = %v, want nil (unbounded)", err)
	}
}

func TestCheckSessionBudgetExceeded(t *testing.T) {
	err := CheckSessionBudget("session-1", 5.00, 4.90, 0.50)
	var budgetErr *BudgetExceeded
	if !errors.As(err, &budgetErr) {
		t.Fatalf("CheckSessionBudget() error = %v, want *BudgetExceeded", err)
	}
	if budgetErr.Scope != "session" {
		t.Errorf("Scope = %q, want session", budgetErr.Scope)
	}
}
