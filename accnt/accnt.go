// Package accnt accumulates per-task time accounting.
package accnt

import "sync/atomic"

/// Accnt_t counts user and kernel runtime in nanoseconds. Counters are
/// atomic so reporting can snapshot them while the task runs.
type Accnt_t struct {
	Userns int64
	Sysns  int64
}

/// Utadd adds delta nanoseconds of user time.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

/// Systadd adds delta nanoseconds of kernel time.
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

/// Fetch returns a consistent (user, kernel) snapshot.
func (a *Accnt_t) Fetch() (int64, int64) {
	return atomic.LoadInt64(&a.Userns), atomic.LoadInt64(&a.Sysns)
}
