package api

// HealthResponse is the body of /health
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse is the body of /readiness
type ReadinessResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the body of /version
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}
