package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/watzon/tenantcore/internal/database"
	"github.com/watzon/tenantcore/internal/dispatch"
	"github.com/watzon/tenantcore/internal/platform"
)

type HealthHandlers struct {
	db       *database.DB
	registry *dispatch.Registry
	platform platform.Reader
	version  string
}

// NewHealthHandlers builds health checks. db may be nil.
func NewHealthHandlers(db *database.DB, registry *dispatch.Registry, reader platform.Reader, version string) *HealthHandlers {
	return &HealthHandlers{
		db:       db,
		registry: registry,
		platform: reader,
		version:  version,
	}
}

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Latency string       `json:"latency,omitempty"`
	Message string       `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

var startTime = time.Now()

const healthCheckTimeout = 5 * time.Second

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := make(map[string]ComponentHealth)
	overallStatus := HealthStatusHealthy

	if h.db != nil {
		dbHealth := h.checkDatabase(ctx)
		components["database"] = dbHealth
		if dbHealth.Status != HealthStatusHealthy {
			overallStatus = HealthStatusUnhealthy
		}
	}

	components["dispatch"] = h.checkDispatch()

	if h.platform != nil {
		platformHealth := h.checkPlatform(ctx)
		components["platform"] = platformHealth
		if platformHealth.Status != HealthStatusHealthy && overallStatus == HealthStatusHealthy {
			overallStatus = HealthStatusDegraded
		}
	}

	resp := HealthResponse{
		Status:     overallStatus,
		Version:    h.version,
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}

	status := http.StatusOK
	if overallStatus == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	JSON(w, status, resp)
}

func (h *HealthHandlers) checkDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := h.db.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Latency: latency.String(),
			Message: "database ping failed",
		}
	}

	return ComponentHealth{
		Status:  HealthStatusHealthy,
		Latency: latency.String(),
	}
}

func (h *HealthHandlers) checkDispatch() ComponentHealth {
	if h.registry == nil || len(h.registry.Names()) == 0 {
		return ComponentHealth{
			Status:  HealthStatusHealthy,
			Message: "no procedures registered",
		}
	}
	if !h.registry.Frozen() {
		return ComponentHealth{
			Status:  HealthStatusHealthy,
			Message: "registration open",
		}
	}
	return ComponentHealth{Status: HealthStatusHealthy}
}

func (h *HealthHandlers) checkPlatform(ctx context.Context) ComponentHealth {
	st, err := h.platform.Read(ctx)
	if err != nil {
		return ComponentHealth{
			Status:  HealthStatusDegraded,
			Message: "platform status unreadable",
		}
	}
	if !st.Operational() {
		return ComponentHealth{
			Status:  HealthStatusDegraded,
			Message: string(st.CurrentState),
		}
	}
	return ComponentHealth{Status: HealthStatusHealthy}
}

func (h *HealthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

func (h *HealthHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := map[string]any{
		"runtime": RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     m.Alloc,
			MemSys:       m.Sys,
			NumGC:        m.NumGC,
		},
		"uptime": time.Since(startTime).Round(time.Second).String(),
	}

	if h.registry != nil {
		resp["procedures"] = len(h.registry.Names())
	}

	if h.db != nil {
		dbStats := h.db.Stats()
		resp["database"] = map[string]any{
			"open_connections": dbStats.OpenConnections,
			"in_use":           dbStats.InUse,
			"idle":             dbStats.Idle,
			"max_open":         dbStats.MaxOpenConnections,
		}
	}

	JSON(w, http.StatusOK, resp)
}
