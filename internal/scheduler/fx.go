package scheduler

import (
	"github.com/smallbiznis/membership/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
)

// ProvideConfig reads the scheduler section of the policy file.
func ProvideConfig(policy *config.PolicyHolder) Config {
	if policy == nil {
		return DefaultConfig()
	}
	p := policy.Get().Scheduler
	return Config{
		JobTimeout:  p.JobTimeout,
		EnabledJobs: p.EnabledJobs,
	}.withDefaults()
}
