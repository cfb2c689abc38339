package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Status 健康状态
type Status struct {
	NATS     string `json:"nats"`
	Redis    string `json:"redis"`
	Database string `json:"database"`
}

// Checker 健康检查器
type Checker struct {
	nc          *nats.Conn
	redisClient *redis.Client
	db          *pgxpool.Pool
}

// NewChecker 创建健康检查器
func NewChecker(nc *nats.Conn, redisClient *redis.Client, db *pgxpool.Pool) *Checker {
	return &Checker{
		nc:          nc,
		redisClient: redisClient,
		db:          db,
	}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{}

	if h.nc.IsConnected() {
		status.NATS = "connected"
	} else {
		status.NATS = "disconnected"
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 2*time.Second)
	defer redisCancel()

	if err := h.redisClient.Ping(redisCtx).Err(); err == nil {
		status.Redis = "connected"
	} else {
		status.Redis = "disconnected"
	}

	dbCtx, dbCancel := context.WithTimeout(ctx, 2*time.Second)
	defer dbCancel()

	if err := h.db.Ping(dbCtx); err == nil {
		status.Database = "connected"
	} else {
		status.Database = "disconnected"
	}

	return status
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	status := h.Check(ctx)
	return status.NATS == "connected" &&
		status.Redis == "connected" &&
		status.Database == "connected"
}

// Register 挂载健康检查路由
func (h *Checker) Register(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		status := h.Check(c.Request.Context())
		code := http.StatusOK
		if status.NATS != "connected" || status.Redis != "connected" || status.Database != "connected" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	r.GET("/ready", func(c *gin.Context) {
		if h.IsHealthy(c.Request.Context()) {
			c.String(http.StatusOK, "OK")
		} else {
			c.String(http.StatusServiceUnavailable, "Not Ready")
		}
	})
}
