package models

// RequestLog stores one completed gateway request for the admin surface.
// The table is bounded: once it exceeds the configured maximum, the oldest
// entries (by timestamp, ties by id) are evicted.
type RequestLog struct {
	ID          string `gorm:"primaryKey" json:"id"`   // UUID
	Timestamp   int64  `gorm:"index" json:"timestamp"` // unix milliseconds
	CallerIP    string `json:"ip"`
	Path        string `gorm:"index" json:"path"`
	Method      string `json:"method"`
	StatusCode  int    `json:"statusCode"`
	CallerKeyID string `json:"callerKeyId,omitempty"`
	Model       string `json:"model,omitempty"`
}

// SystemStats holds the aggregate counts shown on the admin dashboard.
type SystemStats struct {
	TotalCredentials   int64 `json:"totalCredentials"`
	ValidCredentials   int64 `json:"validCredentials"`
	InvalidCredentials int64 `json:"invalidCredentials"`
	TotalCallerKeys    int64 `json:"totalCallerKeys"`
	TotalRequests      int64 `json:"totalRequests"`
	ModelsRequests     int64 `json:"modelsRequests"`
}
