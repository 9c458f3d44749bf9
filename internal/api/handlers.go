package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jroosing/rootwalk/internal/resolvers"
	"github.com/jroosing/rootwalk/internal/server"
)

// Handler contains dependencies for API endpoints.
type Handler struct {
	stats     *server.DNSStats
	cache     *resolvers.CachingResolver // nil when caching is disabled
	startTime time.Time
}

// NewHandler creates the endpoint handler set. cache may be nil when the
// answer cache is disabled.
func NewHandler(stats *server.DNSStats, cache *resolvers.CachingResolver) *Handler {
	return &Handler{stats: stats, cache: cache, startTime: time.Now()}
}

// CPUStats reports system CPU usage.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
}

// MemoryStats reports system memory usage in megabytes.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// StatsResponse is the /stats payload.
type StatsResponse struct {
	Uptime        string      `json:"uptime"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     time.Time   `json:"start_time"`
	CPU           CPUStats    `json:"cpu"`
	Memory        MemoryStats `json:"memory"`

	QueriesTotal uint64  `json:"queries_total"`
	Answered     uint64  `json:"answered"`
	Errors       uint64  `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Health returns server liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats returns runtime statistics: system CPU and memory usage plus DNS
// query counters.
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := CPUStats{NumCPU: runtime.NumCPU()}
	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuStats.UsedPercent = cpuPercent[0]
	}

	resp := StatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		CPU:           cpuStats,
		Memory:        memStats,
	}
	if h.stats != nil {
		snap := h.stats.Snapshot()
		resp.QueriesTotal = snap.QueriesTotal
		resp.Answered = snap.Answered
		resp.Errors = snap.ResponsesErr
		resp.AvgLatencyMs = snap.AvgLatencyMs
	}

	c.JSON(http.StatusOK, resp)
}

// CacheStats returns answer-cache hit/miss counters.
func (h *Handler) CacheStats(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	s := h.cache.CacheStats()
	c.JSON(http.StatusOK, gin.H{
		"enabled": true,
		"hits":    s.Hits,
		"misses":  s.Misses,
		"entries": s.Entries,
	})
}

// PurgeCache drops every cached answer.
func (h *Handler) PurgeCache(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	h.cache.PurgeCache()
	c.JSON(http.StatusOK, gin.H{"purged": true})
}
