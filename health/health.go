// Package health provides preflight checks for a generator run.
// It verifies catalog files, the output folder, the existing checklist and
// connectivity to the graph store and optional services.
package health

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/zero-day-ai/adchecklist/state"
)

// Health states.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// DefaultTimeout bounds a single connectivity check.
const DefaultTimeout = 10 * time.Second

// Status is the outcome of one check.
type Status struct {
	// Name identifies the check, e.g. "neo4j" or "catalog general".
	Name string `json:"name"`

	State   string         `json:"state"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy reports whether the state is healthy.
func (s Status) IsHealthy() bool { return s.State == StateHealthy }

// IsDegraded reports whether the state is degraded.
func (s Status) IsDegraded() bool { return s.State == StateDegraded }

// IsUnhealthy reports whether the state is unhealthy.
func (s Status) IsUnhealthy() bool { return s.State == StateUnhealthy }

func healthy(name, msg string) Status {
	return Status{Name: name, State: StateHealthy, Message: msg}
}

func degraded(name, msg string, details map[string]any) Status {
	return Status{Name: name, State: StateDegraded, Message: msg, Details: details}
}

func unhealthy(name, msg string, details map[string]any) Status {
	return Status{Name: name, State: StateUnhealthy, Message: msg, Details: details}
}

// FileCheck verifies that a catalog file exists and is readable. A missing
// optional file is degraded rather than unhealthy.
func FileCheck(name, path string, optional bool) Status {
	if path == "" {
		if optional {
			return healthy(name, "not configured")
		}
		return unhealthy(name, "path cannot be empty", nil)
	}

	f, err := os.Open(path)
	if err != nil {
		details := map[string]any{"path": path, "error": err.Error()}
		if os.IsNotExist(err) && optional {
			return degraded(name, fmt.Sprintf("'%s' does not exist and will be skipped", path), details)
		}
		return unhealthy(name, fmt.Sprintf("cannot read '%s'", path), details)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return unhealthy(name, fmt.Sprintf("failed to stat '%s'", path), map[string]any{"path": path, "error": err.Error()})
	}
	if info.IsDir() {
		return unhealthy(name, fmt.Sprintf("'%s' is a directory", path), map[string]any{"path": path})
	}
	return healthy(name, fmt.Sprintf("file '%s' is readable", path))
}

// DirWritableCheck verifies that dir exists, or can be created, and accepts
// new files.
func DirWritableCheck(name, dir string) Status {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return unhealthy(name, fmt.Sprintf("cannot create '%s'", dir), map[string]any{"path": dir, "error": err.Error()})
	}

	f, err := os.CreateTemp(dir, ".adchecklist-probe-*")
	if err != nil {
		return unhealthy(name, fmt.Sprintf("'%s' is not writable", dir), map[string]any{"path": dir, "error": err.Error()})
	}
	probe := f.Name()
	f.Close()
	os.Remove(probe)

	return healthy(name, fmt.Sprintf("directory '%s' is writable", dir))
}

// ChecklistCheck verifies that the checklist at path, if any, is one the
// generator can update. A foreign or corrupt document stops a run.
func ChecklistCheck(name, path string) Status {
	prior, err := state.Load(path)
	if err != nil {
		return unhealthy(name, "existing checklist cannot be updated", map[string]any{"path": path, "error": err.Error()})
	}
	if prior.Len() == 0 {
		return healthy(name, fmt.Sprintf("no tasks in '%s', a new checklist will be written", path))
	}
	return Status{
		Name:    name,
		State:   StateHealthy,
		Message: fmt.Sprintf("%d task(s), %d completed", prior.Len(), prior.Completed()),
		Details: map[string]any{"path": path, "tasks": prior.Len(), "completed": prior.Completed()},
	}
}

// Pinger verifies connectivity to a service.
type Pinger func(ctx context.Context) error

// PingCheck runs ping bounded by timeout (DefaultTimeout when zero).
// Optional services that fail are degraded.
func PingCheck(ctx context.Context, name string, timeout time.Duration, optional bool, ping Pinger) Status {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := ping(ctx); err != nil {
		details := map[string]any{"error": err.Error()}
		if optional {
			return degraded(name, fmt.Sprintf("%s unreachable", name), details)
		}
		return unhealthy(name, fmt.Sprintf("%s unreachable", name), details)
	}
	return Status{
		Name:    name,
		State:   StateHealthy,
		Message: fmt.Sprintf("%s reachable", name),
		Details: map[string]any{"latency_ms": time.Since(start).Milliseconds()},
	}
}

// Combine aggregates multiple checks into a single status.
// The result follows this priority:
//   - If any check is unhealthy, the result is unhealthy
//   - If any check is degraded (and none unhealthy), the result is degraded
//   - If all checks are healthy, the result is healthy
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return healthy("preflight", "no checks provided")
	}

	var unhealthyChecks []string
	var degradedChecks []string
	var healthyCount int

	for _, check := range checks {
		name := check.Name
		if name == "" {
			name = "unnamed check"
		}
		switch check.State {
		case StateUnhealthy:
			unhealthyChecks = append(unhealthyChecks, name)
		case StateDegraded:
			degradedChecks = append(degradedChecks, name)
		case StateHealthy:
			healthyCount++
		}
	}

	if len(unhealthyChecks) > 0 {
		return unhealthy("preflight", fmt.Sprintf("%d check(s) failed", len(unhealthyChecks)), map[string]any{
			"total":         len(checks),
			"unhealthy":     len(unhealthyChecks),
			"degraded":      len(degradedChecks),
			"healthy":       healthyCount,
			"failed_checks": unhealthyChecks,
		})
	}

	if len(degradedChecks) > 0 {
		return degraded("preflight", fmt.Sprintf("%d check(s) degraded", len(degradedChecks)), map[string]any{
			"total":           len(checks),
			"degraded":        len(degradedChecks),
			"healthy":         healthyCount,
			"degraded_checks": degradedChecks,
		})
	}

	return healthy("preflight", fmt.Sprintf("all %d check(s) passed", len(checks)))
}
