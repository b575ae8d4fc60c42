package client

import "time"

// Product is one catalog entry as returned by GET /products.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Platforms   []string `json:"platforms"`
	Download    struct {
		GitURL        string `json:"git_url"`
		Branch        string `json:"branch"`
		PythonVersion string `json:"python_version"`
	} `json:"download"`
	Install bool `json:"install"`
	Running bool `json:"running"`
}

// ProcessStats is the resource usage of a running product.
type ProcessStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// ProductStatus represents the status of a single product.
type ProductStatus struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Version    string        `json:"version,omitempty"`
	Install    bool          `json:"install"`
	Running    bool          `json:"running"`
	PID        int           `json:"pid,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	ExitCode   *int          `json:"exit_code,omitempty"`
	InstallDir string        `json:"install_dir"`
	Stats      *ProcessStats `json:"stats,omitempty"`
}

// Python is one uv-managed interpreter.
type Python struct {
	Key     string  `json:"key"`
	Version string  `json:"version"`
	Path    *string `json:"path"`
}

// Event is one lifecycle history record.
type Event struct {
	Type        string    `json:"type"`
	Product     string    `json:"product"`
	OperationID string    `json:"operation_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	PID         int       `json:"pid,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// HistoryQuery represents query parameters for the history endpoint.
type HistoryQuery struct {
	Product string
	Limit   int
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
