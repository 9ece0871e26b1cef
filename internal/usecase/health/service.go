package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a failing dependency; the service still accepts requests.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckSkipped indicates the component cannot be probed.
	CheckSkipped CheckResult = "skipped"
)

// Report aggregates health check results.
type Report struct {
	Status  Status
	Checks  map[string]CheckResult
	Version string
}

// Service coordinates health checks.
type Service struct {
	judge   JudgeChecker
	version string
}

// New creates a Service. judge can be nil when the capability has no probe.
func New(judge JudgeChecker, version string) *Service {
	return &Service{judge: judge, version: version}
}

// Check probes the judging capability.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 1)

	switch {
	case s.judge == nil:
		checks["judge"] = CheckSkipped
	case s.judge.HealthCheck(ctx) != nil:
		checks["judge"] = CheckError
	default:
		checks["judge"] = CheckOK
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Version: s.version}
}
