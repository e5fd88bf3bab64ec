package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// MaterializeResponse is the response body for POST /api/v1/projects.
type MaterializeResponse struct {
	ProjectName string `json:"project_name"`
	// Path is the project directory relative to the workspace. It can be
	// passed unchanged to the download endpoint.
	Path         string `json:"path"`
	FilesWritten int    `json:"files_written"`
	Created      bool   `json:"created"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	// Written lists files left on disk by a failed materialize call.
	Written []string `json:"written,omitempty"`
}
