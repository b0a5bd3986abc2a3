// Package responses defines API response types used by Confgate HTTP handlers.
package responses

import "time"

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
}

// LoginResponse carries a freshly minted token.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// MessageResponse is a generic acknowledgement.
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps a collection with its count.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// RollbackResponse reports the commit a rollback produced.
type RollbackResponse struct {
	Status string `json:"status"`
	Commit string `json:"commit"`
}

// EnvironmentsResponse lists the environments and their branches.
type EnvironmentsResponse struct {
	Environments []EnvironmentInfo `json:"environments"`
}

// EnvironmentInfo is one environment with its backing branch.
type EnvironmentInfo struct {
	Name   string `json:"name"`
	Branch string `json:"branch"`
}
