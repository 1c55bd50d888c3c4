package monitoring

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Metrics tracks process-wide health and backtest throughput for the
// daemon's /health and /metrics HTTP surface. A single instance is
// shared across all in-flight runs; per-run numbers (trade count,
// drawdown, Sharpe, ...) live in backtest.MetricsAccumulator and are
// reported through BacktestMetrics/RunResult instead.
type Metrics struct {
	mu sync.RWMutex

	// HTTP request metrics
	TotalRequests     int64
	FailedRequests    int64
	AvgResponseTimeMs float64

	// Backtest throughput across all runs owned by this process
	ActiveRuns          int
	TotalRunsStarted    int64
	TotalRunsCompleted  int64
	TotalRunsFailed     int64
	TotalBarsProcessed  int64
	TotalTradesExecuted int64

	// Database metrics
	DBConnections int
	DBQueryCount  int64
	DBSlowQueries int64

	// Process metrics
	StartTime       time.Time
	LastHealthCheck time.Time
	MemoryUsageMB   float64
	GoroutineCount  int

	// System metrics sourced from gopsutil, refreshed every 30s by
	// cmd/backtestd's runSystemMetricsLoop via RefreshSystemMetrics.
	CPUPercent      float64
	RAMTotalGB      float64
	RAMUsedGB       float64
	RAMUsedPercent  float64
	DiskTotalGB     float64
	DiskUsedGB      float64
	DiskUsedPercent float64

	// Error tracking
	Errors    []ErrorEntry
	MaxErrors int
}

// ErrorEntry represents a logged error
type ErrorEntry struct {
	Timestamp time.Time
	Component string
	Error     string
	RunID     string
	TraceID   string
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime: time.Now(),
		MaxErrors: 1000, // Keep last 1000 errors
		Errors:    make([]ErrorEntry, 0, 1000),
	}
}

// RecordRequest records an HTTP API request
func (m *Metrics) RecordRequest(durationMs float64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	if !success {
		m.FailedRequests++
	}

	if m.TotalRequests == 1 {
		m.AvgResponseTimeMs = durationMs
	} else {
		m.AvgResponseTimeMs = (m.AvgResponseTimeMs*float64(m.TotalRequests-1) + durationMs) / float64(m.TotalRequests)
	}
}

// RecordRunStarted marks a new backtest run as active.
func (m *Metrics) RecordRunStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ActiveRuns++
	m.TotalRunsStarted++
}

// RecordRunFinished marks a run as no longer active, tallying it as
// completed or failed.
func (m *Metrics) RecordRunFinished(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ActiveRuns--
	if m.ActiveRuns < 0 {
		m.ActiveRuns = 0
	}
	if failed {
		m.TotalRunsFailed++
	} else {
		m.TotalRunsCompleted++
	}
}

// RecordBar records one processed bar and the trades it produced.
func (m *Metrics) RecordBar(tradesExecuted int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalBarsProcessed++
	m.TotalTradesExecuted += int64(tradesExecuted)
}

// RecordError logs an error
func (m *Metrics) RecordError(component, errorMsg, runID, traceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := ErrorEntry{
		Timestamp: time.Now(),
		Component: component,
		Error:     errorMsg,
		RunID:     runID,
		TraceID:   traceID,
	}

	m.Errors = append(m.Errors, entry)

	if len(m.Errors) > m.MaxErrors {
		m.Errors = m.Errors[len(m.Errors)-m.MaxErrors:]
	}
}

// UpdateSystemMetrics updates process-level metrics
func (m *Metrics) UpdateSystemMetrics(memoryMB float64, goroutines int, dbConns int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MemoryUsageMB = memoryMB
	m.GoroutineCount = goroutines
	m.DBConnections = dbConns
	m.LastHealthCheck = time.Now()
}

// UpdateExtendedSystemMetrics updates host-level metrics (CPU, RAM, Disk)
func (m *Metrics) UpdateExtendedSystemMetrics(cpuPercent, ramTotalGB, ramUsedGB, ramUsedPercent, diskTotalGB, diskUsedGB, diskUsedPercent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CPUPercent = cpuPercent
	m.RAMTotalGB = ramTotalGB
	m.RAMUsedGB = ramUsedGB
	m.RAMUsedPercent = ramUsedPercent
	m.DiskTotalGB = diskTotalGB
	m.DiskUsedGB = diskUsedGB
	m.DiskUsedPercent = diskUsedPercent
}

// RefreshSystemMetrics polls gopsutil for host-level CPU/RAM/disk figures
// and the Go runtime for goroutine count, feeding both into m. Grounded on
// the teacher's SystemHealthController.GetHealth polling pattern.
func RefreshSystemMetrics(m *Metrics) {
	cpuPercent, _ := cpu.Percent(0, false)
	var cpuPct float64
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	var ramTotalGB, ramUsedGB, ramUsedPct float64
	if vmStat, err := mem.VirtualMemory(); err == nil {
		ramTotalGB = float64(vmStat.Total) / (1 << 30)
		ramUsedGB = float64(vmStat.Used) / (1 << 30)
		ramUsedPct = vmStat.UsedPercent
	}

	var diskTotalGB, diskUsedGB, diskUsedPct float64
	if diskStat, err := disk.Usage("/"); err == nil {
		diskTotalGB = float64(diskStat.Total) / (1 << 30)
		diskUsedGB = float64(diskStat.Used) / (1 << 30)
		diskUsedPct = diskStat.UsedPercent
	}

	m.UpdateExtendedSystemMetrics(cpuPct, ramTotalGB, ramUsedGB, ramUsedPct, diskTotalGB, diskUsedGB, diskUsedPct)
	m.UpdateSystemMetrics(ramUsedGB*1024, runtime.NumGoroutine(), 0)
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		StartTime:           m.StartTime,
		Uptime:              time.Since(m.StartTime).String(),
		TotalRequests:       m.TotalRequests,
		FailedRequests:      m.FailedRequests,
		SuccessRate:         m.calculateSuccessRate(),
		AvgResponseTimeMs:   m.AvgResponseTimeMs,
		ActiveRuns:          m.ActiveRuns,
		TotalRunsStarted:    m.TotalRunsStarted,
		TotalRunsCompleted:  m.TotalRunsCompleted,
		TotalRunsFailed:     m.TotalRunsFailed,
		TotalBarsProcessed:  m.TotalBarsProcessed,
		TotalTradesExecuted: m.TotalTradesExecuted,
		DBConnections:       m.DBConnections,
		DBQueryCount:        m.DBQueryCount,
		MemoryUsageMB:       m.MemoryUsageMB,
		GoroutineCount:      m.GoroutineCount,
		LastHealthCheck:     m.LastHealthCheck,
		CPUPercent:          m.CPUPercent,
		RAMTotalGB:          m.RAMTotalGB,
		RAMUsedGB:           m.RAMUsedGB,
		RAMUsedPercent:      m.RAMUsedPercent,
		DiskTotalGB:         m.DiskTotalGB,
		DiskUsedGB:          m.DiskUsedGB,
		DiskUsedPercent:     m.DiskUsedPercent,
		RecentErrors:        m.getRecentErrors(10),
	}
}

// MetricsSnapshot represents metrics at a point in time
type MetricsSnapshot struct {
	StartTime           time.Time
	Uptime              string
	TotalRequests       int64
	FailedRequests      int64
	SuccessRate         float64
	AvgResponseTimeMs   float64
	ActiveRuns          int
	TotalRunsStarted    int64
	TotalRunsCompleted  int64
	TotalRunsFailed     int64
	TotalBarsProcessed  int64
	TotalTradesExecuted int64
	DBConnections       int
	DBQueryCount        int64
	MemoryUsageMB       float64
	GoroutineCount      int
	LastHealthCheck     time.Time

	CPUPercent      float64
	RAMTotalGB      float64
	RAMUsedGB       float64
	RAMUsedPercent  float64
	DiskTotalGB     float64
	DiskUsedGB      float64
	DiskUsedPercent float64

	RecentErrors []ErrorEntry
}

func (m *Metrics) calculateSuccessRate() float64 {
	if m.TotalRequests == 0 {
		return 100.0
	}
	return float64(m.TotalRequests-m.FailedRequests) / float64(m.TotalRequests) * 100.0
}

func (m *Metrics) getRecentErrors(count int) []ErrorEntry {
	if len(m.Errors) == 0 {
		return []ErrorEntry{}
	}

	start := len(m.Errors) - count
	if start < 0 {
		start = 0
	}

	return m.Errors[start:]
}

// HealthStatus represents system health
type HealthStatus struct {
	Status    string                 `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]HealthCheck `json:"checks"`
}

// HealthCheck represents a single health check
type HealthCheck struct {
	Status  string `json:"status"` // pass, warn, fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// CheckHealth performs health checks
func (m *Metrics) CheckHealth() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	checks := make(map[string]HealthCheck)
	overallHealthy := true

	successRate := m.calculateSuccessRate()
	if successRate < 90 {
		checks["requests"] = HealthCheck{
			Status:  "fail",
			Message: "High error rate",
		}
		overallHealthy = false
	} else if successRate < 95 {
		checks["requests"] = HealthCheck{
			Status:  "warn",
			Message: "Elevated error rate",
		}
	} else {
		checks["requests"] = HealthCheck{
			Status:  "pass",
			Message: "Requests healthy",
		}
	}

	if m.MemoryUsageMB > 1000 {
		checks["memory"] = HealthCheck{
			Status:  "warn",
			Message: "High memory usage",
		}
	} else {
		checks["memory"] = HealthCheck{
			Status:  "pass",
			Message: "Memory usage normal",
		}
	}

	if m.TotalRunsFailed > 0 && m.ActiveRuns == 0 && m.TotalRunsCompleted == 0 {
		checks["runs"] = HealthCheck{
			Status:  "warn",
			Message: "Every run attempted so far has failed",
		}
	} else {
		checks["runs"] = HealthCheck{
			Status:  "pass",
			Message: "Run engine healthy",
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "unhealthy"
	} else {
		for _, check := range checks {
			if check.Status == "warn" {
				status = "degraded"
				break
			}
		}
	}

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}
