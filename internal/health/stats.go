package health

import "time"

// Status represents the health state of one server.
type Status string

// Per-server health states. Transitions are driven by consecutive probe
// outcomes: any success moves to online, failures move through degraded to
// offline once the failure threshold is reached.
const (
	StatusUnknown  Status = "unknown"
	StatusOnline   Status = "online"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
)

// OverallStatus classifies the whole server pool.
type OverallStatus string

// Aggregate states: unhealthy if any server is offline, degraded if any is
// degraded, healthy otherwise.
const (
	OverallHealthy   OverallStatus = "healthy"
	OverallDegraded  OverallStatus = "degraded"
	OverallUnhealthy OverallStatus = "unhealthy"
)

// Stats holds per-server rolling health statistics. The monitor owns the
// mutable state exclusively; callers only ever receive copies.
type Stats struct {
	ServerID            string        `json:"serverId"`
	TotalChecks         int64         `json:"totalChecks"`
	SuccessfulChecks    int64         `json:"successfulChecks"`
	FailedChecks        int64         `json:"failedChecks"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Status              Status        `json:"status"`
	LastHealthy         time.Time     `json:"lastHealthy,omitzero"`
	LastUnhealthy       time.Time     `json:"lastUnhealthy,omitzero"`
	AverageResponseTime time.Duration `json:"averageResponseTime"`
	UptimePercent       float64       `json:"uptimePercent"`
}

// CheckResult is the outcome of a single forced or scheduled health check.
type CheckResult struct {
	ServerID  string        `json:"serverId"`
	OK        bool          `json:"ok"`
	Status    Status        `json:"status"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// SystemHealth is the aggregate view exposed to operators.
type SystemHealth struct {
	OverallStatus   OverallStatus `json:"overallStatus"`
	TotalServers    int           `json:"totalServers"`
	OnlineServers   int           `json:"onlineServers"`
	OfflineServers  int           `json:"offlineServers"`
	DegradedServers int           `json:"degradedServers"`
	UnknownServers  int           `json:"unknownServers"`
	AverageUptime   float64       `json:"averageUptime"`
}
