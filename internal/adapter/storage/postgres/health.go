package postgres

import "context"

// HealthChecker reports database liveness for the health endpoint.
type HealthChecker struct {
	pool Pool
}

func NewHealthChecker(pool Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

func (h *HealthChecker) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

func (h *HealthChecker) Name() string {
	return "postgres"
}
