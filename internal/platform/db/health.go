package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is a point-in-time snapshot of the connection pool.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats snapshots pool counters for the health endpoint.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

type healthResponse struct {
	Status    string     `json:"status"`
	CheckedAt time.Time  `json:"checked_at"`
	Error     string     `json:"error,omitempty"`
	Pool      *PoolStats `json:"pool"`
}

// HealthHandler answers the database health probe: a bounded ping plus
// the pool snapshot, 503 when the database is unreachable.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:    "healthy",
			CheckedAt: time.Now().UTC(),
			Pool:      GetPoolStats(pool),
		}

		if err := pool.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			resp.Pool.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}
