package providers

import (
	"github.com/smallbiznis/membership/internal/providers/email"
	"github.com/smallbiznis/membership/internal/providers/sms"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	sms.Module,
)
