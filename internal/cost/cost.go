package cost

import "fmt"

// BillingMode distinguishes a flat-rate subscription task (no per-call
// API cost, but the would-be API cost is tracked as "savings") from
// pay-per-token API billing.
type BillingMode string

const (
	BillingSubscription BillingMode = "subscription"
	BillingAPI          BillingMode = "api"
)

// Estimate is the result of pricing one task's token usage.
type Estimate struct {
	Provider   string
	Model      string
	CostUSD    float64
	SavingsUSD float64
	RateFound  bool
}

// EstimateCost prices tIn/tOut tokens for provider/model under the
// given billing mode. Under subscription billing the task carries no
// direct cost, but the rate table still prices what the same usage
// would have cost via the API, recorded as SavingsUSD. Under API
// billing CostUSD carries the charge and SavingsUSD is zero. Unknown
// provider/model pairs price as zero with RateFound=false rather than
// erroring, since a task should never fail solely because its model
// is missing from the rate table.
func EstimateCost(provider, model string, tIn, tOut int64, mode BillingMode) Estimate {
	rate, found := LookupRate(provider, model)
	grossUSD := float64(tIn)*rate.InputPerMillionUSD/1_000_000 + float64(tOut)*rate.OutputPerMillionUSD/1_000_000

	est := Estimate{Provider: provider, Model: model, RateFound: found}
	if !found {
		return est
	}

	switch mode {
	case BillingSubscription:
		est.SavingsUSD = grossUSD
	default:
		est.CostUSD = grossUSD
	}
	return est
}

// BudgetExceeded reports which budget scope (task or session) was
// exhausted, so the orchestrator can react (pause, escalate) instead
// of a worker being killed outright.
type BudgetExceeded struct {
	Scope       string // "task" or "session"
	ID          string
	BudgetUSD   float64
	SpentUSD    float64
	AttemptedBy float64
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("%s %s budget exceeded: spent $%.4f + $%.4f > budget $%.4f", e.Scope, e.ID, e.SpentUSD, e.AttemptedBy, e.BudgetUSD)
}

// CheckTaskBudget returns a *BudgetExceeded if adding additionalUSD to
// spentUSD would exceed budgetUSD. A zero budgetUSD means unbounded
// (no task-level cap configured).
func CheckTaskBudget(taskID string, budgetUSD, spentUSD, additionalUSD float64) error {
	if budgetUSD <= 0 {
		return nil
	}
	if spentUSD+additionalUSD > budgetUSD {
		return &BudgetExceeded{Scope: "task", ID: taskID, BudgetUSD: budgetUSD, SpentUSD: spentUSD, AttemptedBy: additionalUSD}
	}
	return nil
}

// CheckSessionBudget is CheckTaskBudget's session-scoped counterpart.
func CheckSessionBudget(sessionID string, budgetUSD, spentUSD, additionalUSD float64) error {
	if budgetUSD <= 0 {
		return nil
	}
	if spentUSD+additionalUSD > budgetUSD {
		return &BudgetExceeded{Scope: "session", ID: sessionID, BudgetUSD: budgetUSD, SpentUSD: spentUSD, AttemptedBy: additionalUSD}
	}
	return nil
}
