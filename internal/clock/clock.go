package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for services that make expiry and rate decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
