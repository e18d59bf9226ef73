package billing

import (
	"context"
	"strings"

	"github.com/smallbiznis/membership/internal/config"
)

// PlanLimits is the read-only view of a subscription plan.
type PlanLimits struct {
	Plan       string `json:"plan"`
	MaxMembers int    `json:"max_members"`
}

// Plans answers plan questions for the membership flow. Real billing lives
// elsewhere; limits come from the policy file.
type Plans interface {
	DefaultPlan() string
	Limits(ctx context.Context, plan string) PlanLimits
}

type policyPlans struct {
	policy *config.PolicyHolder
}

func NewPolicyPlans(policy *config.PolicyHolder) Plans {
	return &policyPlans{policy: policy}
}

func (p *policyPlans) DefaultPlan() string {
	plan := strings.ToLower(strings.TrimSpace(p.policy.Get().Organization.DefaultPlan))
	if plan == "" {
		return "free"
	}
	return plan
}

func (p *policyPlans) Limits(_ context.Context, plan string) PlanLimits {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		plan = p.DefaultPlan()
	}
	return PlanLimits{
		Plan:       plan,
		MaxMembers: p.policy.Get().MaxMembers(plan),
	}
}
