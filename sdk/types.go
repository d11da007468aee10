package codecsdk

import "time"

// HealthThresholds configures when BaseHealthService degrades a backend's
// reported status.
type HealthThresholds struct {
	MaxMemoryUsage      int64
	MaxCPUUsage         float64
	MaxErrorRate        float64
	MaxResponseTime     time.Duration
	HealthCheckInterval time.Duration
}

// HealthStatus is a point-in-time health report for a codec backend,
// returned by CodecBackend.Health.
type HealthStatus struct {
	Status       string            `json:"status"` // healthy | degraded | unhealthy
	Message      string            `json:"message"`
	LastCheck    time.Time         `json:"last_check"`
	Uptime       time.Duration     `json:"uptime"`
	MemoryUsage  int64             `json:"memory_usage"`
	CPUUsage     float64           `json:"cpu_usage"`
	ErrorRate    float64           `json:"error_rate"`
	ResponseTime time.Duration     `json:"response_time"`
	Details      map[string]string `json:"details,omitempty"`
}

// PluginMetrics is a snapshot of a backend's execution counters.
type PluginMetrics struct {
	ExecutionCount  int64                  `json:"execution_count"`
	SuccessCount    int64                  `json:"success_count"`
	ErrorCount      int64                  `json:"error_count"`
	AverageExecTime time.Duration          `json:"average_exec_time"`
	LastExecution   time.Time              `json:"last_execution"`
	BytesProcessed  int64                  `json:"bytes_processed"`
	ItemsProcessed  int64                  `json:"items_processed"`
	CacheHitRate    float64                `json:"cache_hit_rate"`
	CustomMetrics   map[string]interface{} `json:"custom_metrics,omitempty"`
}
