package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

type memoryStats struct {
	AllocBytes uint64 `json:"allocBytes"`
	SysBytes   uint64 `json:"sysBytes"`
	Goroutines int    `json:"goroutines"`
}

type healthResponse struct {
	Success     bool        `json:"success"`
	Database    string      `json:"database"`
	Cache       string      `json:"cache"`
	Environment string      `json:"environment"`
	Uptime      float64     `json:"uptime"`
	Memory      memoryStats `json:"memory"`
}

func (h HandlerSet) ping(ctx context.Context, name string, p Pinger) string {
	if p == nil {
		return "disconnected"
	}
	if err := p.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg(name + " ping failed")
		return "disconnected"
	}
	return "connected"
}

// Health reports 503 only when the database is unreachable; a cache outage degrades
// login throttling and jobs but not request serving.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := h.ping(ctx, "database", h.deps.DB)
	cacheStatus := h.ping(ctx, "redis", h.deps.Cache)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := http.StatusOK
	if dbStatus != "connected" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, healthResponse{
		Success:     status == http.StatusOK,
		Database:    dbStatus,
		Cache:       cacheStatus,
		Environment: h.cfg.Environment,
		Uptime:      time.Since(h.started).Seconds(),
		Memory: memoryStats{
			AllocBytes: mem.Alloc,
			SysBytes:   mem.Sys,
			Goroutines: runtime.NumGoroutine(),
		},
	})
}
