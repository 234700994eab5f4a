package health

import (
	"context"
	"runtime"
	"time"
)

// Pinger is satisfied by store.Client
type Pinger interface {
	Ping(ctx context.Context) error
}

// SimpleCheck always reports healthy
func SimpleCheck(name string) CheckFunc {
	return func(context.Context) Check {
		return Check{Name: name, Status: StatusHealthy}
	}
}

// StoreCheck pings the graph store, giving up after timeout.
func StoreCheck(backend string, p Pinger, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) Check {
		check := Check{
			Name:    "store",
			Details: map[string]any{"backend": backend},
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}
		return check
	}
}

// IntegrityCheck reports the result of the last integrity audit. errors > 0
// is degraded rather than unhealthy: the service still answers requests.
func IntegrityCheck(last func() (errors, warnings int, checkedAt time.Time, ok bool)) CheckFunc {
	return func(context.Context) Check {
		check := Check{Name: "integrity", Details: make(map[string]any)}

		errs, warnings, checkedAt, ok := last()
		if !ok {
			check.Status = StatusHealthy
			check.Message = "Not checked yet"
			return check
		}

		check.Details["errors"] = errs
		check.Details["warnings"] = warnings
		check.Details["checked_at"] = checkedAt

		if errs > 0 {
			check.Status = StatusDegraded
			check.Message = "Integrity violations found"
		} else {
			check.Status = StatusHealthy
			check.Message = "Graph consistent"
		}
		return check
	}
}

// MemoryCheck flags heap usage above 90% of memory obtained from the OS.
func MemoryCheck() CheckFunc {
	return func(context.Context) Check {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return memoryCheck(m.Alloc, m.Sys)
	}
}

func memoryCheck(alloc, sys uint64) Check {
	check := Check{
		Name: "memory",
		Details: map[string]any{
			"alloc_bytes": alloc,
			"sys_bytes":   sys,
		},
	}
	if sys > 0 && float64(alloc)/float64(sys) > 0.9 {
		check.Status = StatusDegraded
		check.Message = "High memory usage"
	} else {
		check.Status = StatusHealthy
		check.Message = "Memory usage normal"
	}
	return check
}
