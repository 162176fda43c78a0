package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/merliontechs/sales/framework/core"
)

// HealthCheckResult результат health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult результат отдельной проверки
type CheckResult struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthRegistry набор именованных проверок backend'ов
type HealthRegistry struct {
	checks  map[string]core.HealthCheckable
	timeout time.Duration
	mu      sync.RWMutex
}

// NewHealthRegistry создает реестр проверок
func NewHealthRegistry(timeout time.Duration) *HealthRegistry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthRegistry{
		checks:  make(map[string]core.HealthCheckable),
		timeout: timeout,
	}
}

// Register регистрирует проверку под именем
func (r *HealthRegistry) Register(name string, check core.HealthCheckable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// Check выполняет все проверки
func (r *HealthRegistry) Check(ctx context.Context) HealthCheckResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.mu.RLock()
	checks := make(map[string]core.HealthCheckable, len(r.checks))
	for name, check := range r.checks {
		checks[name] = check
	}
	r.mu.RUnlock()

	result := HealthCheckResult{
		Status:    "healthy",
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now().UTC(),
	}

	for name, check := range checks {
		start := time.Now()
		err := check.HealthCheck(ctx)
		cr := CheckResult{Status: "healthy", Duration: time.Since(start)}
		if err != nil {
			cr.Status = "unhealthy"
			cr.Message = err.Error()
			result.Status = "unhealthy"
		}
		result.Checks[name] = cr
	}

	return result
}

// Handler возвращает Gin handler для /health
func (r *HealthRegistry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := r.Check(c.Request.Context())
		if result.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
