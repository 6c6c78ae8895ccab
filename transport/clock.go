package transport

import "k8s.io/utils/clock"

// Clock is the monotonic time source used everywhere a pipeline needs "now":
// dead-node resurrection windows, retry-timeout budgets, and audit-trail
// timestamps. Production callers use RealClock; tests substitute a
// clock.FakeClock (k8s.io/utils/clock/testing) so that dead-timeout back-off
// and maxRetryTimeout budgets are observable without sleeping.
type Clock = clock.Clock

// RealClock is the default Clock, backed by the OS monotonic clock.
var RealClock clock.Clock = clock.RealClock{}
