package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

var Module = fx.Module("health",
	fx.Provide(
		grpchealth.NewServer,
		ProvideHealth,
	),
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	pingTimeout = 2 * time.Second
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type health struct {
	db       *gorm.DB
	redis    *redis.Client
	status   *grpchealth.Server
	services []string
}

type HealthParams struct {
	fx.In
	DB     *gorm.DB           `optional:"true"`
	Redis  *redis.Client      `optional:"true"`
	Status *grpchealth.Server `optional:"true"`
}

// Services reported by the grpc status server that readiness also checks.
var watched = []string{"engage.listener"}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:       p.DB,
		redis:    p.Redis,
		status:   p.Status,
		services: watched,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

func (h *health) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	deps := make([]Dependency, 0, 2+len(h.services))
	if h.db != nil {
		dep := Dependency{Name: "database", Status: StatusHealthy, Message: "OK"}
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			dep.Status, dep.Message = StatusUnhealthy, err.Error()
		}
		deps = append(deps, dep)
	}

	if h.redis != nil {
		dep := Dependency{Name: "redis", Status: StatusHealthy, Message: "OK"}
		if err := h.redis.Ping(ctx).Err(); err != nil {
			dep.Status, dep.Message = StatusUnhealthy, err.Error()
		}
		deps = append(deps, dep)
	}

	if h.status != nil {
		for _, svc := range h.services {
			resp, err := h.status.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
			if status.Code(err) == codes.NotFound {
				// not running in this process
				continue
			}
			dep := Dependency{Name: svc, Status: StatusHealthy, Message: "OK"}
			if err != nil {
				dep.Status, dep.Message = StatusUnhealthy, err.Error()
			} else if resp.Status != healthpb.HealthCheckResponse_SERVING {
				dep.Status, dep.Message = StatusUnhealthy, resp.Status.String()
			}
			deps = append(deps, dep)
		}
	}

	this := &Health{Status: StatusHealthy, Message: "OK", Deps: deps}
	code := http.StatusOK
	for _, dep := range deps {
		if dep.Status != StatusHealthy {
			this.Status, this.Message = StatusUnhealthy, dep.Name+" is not ready"
			code = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, this)
}
