package chat

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultReloadDelay is the pause between an unclean close and the reload.
const DefaultReloadDelay = 5000 * time.Millisecond

// RecoveryMode selects what happens after an unclean close.
type RecoveryMode int

const (
	// RecoverReload discards the whole session after Delay: new state
	// machine, new socket, empty history.
	RecoverReload RecoveryMode = iota
	// RecoverRetry redials in place with bounded back-off and keeps the
	// rendered history.
	RecoverRetry
)

func (m RecoveryMode) String() string {
	switch m {
	case RecoverReload:
		return "reload"
	case RecoverRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Recovery configures the unclean-close path.
type Recovery struct {
	Mode RecoveryMode
	// Delay is the reload delay for RecoverReload.
	Delay time.Duration
	// NewBackOff builds the retry schedule for RecoverRetry. A schedule
	// returning backoff.Stop ends the retries.
	NewBackOff func() backoff.BackOff
}

// DefaultRecovery reloads after DefaultReloadDelay.
func DefaultRecovery() Recovery {
	return Recovery{Mode: RecoverReload, Delay: DefaultReloadDelay}
}

// RetryRecovery redials with exponential back-off, at most maxRetries times
// per outage.
func RetryRecovery(initial, maxInterval time.Duration, maxRetries uint64) Recovery {
	return Recovery{
		Mode: RecoverRetry,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = maxInterval
			b.MaxElapsedTime = 0
			b.Reset()
			return backoff.WithMaxRetries(b, maxRetries)
		},
	}
}
