// Package server provides the HTTP API for cutting recorded sessions.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateCutRequest is the HTTP request body for cutting a session.
// An empty body cuts with the default strategy.
type CreateCutRequest struct {
	// Strategy is one of events, lengths, silence or offset.
	Strategy string `json:"strategy" validate:"omitempty,oneof=events lengths silence offset"`
	// Offset is the manual shift in seconds; it implies the offset strategy.
	Offset *float64 `json:"offset" validate:"omitempty,gte=-600,lte=600"`
}

// CreateCutResponse is the HTTP response after starting a cut.
type CreateCutResponse struct {
	// ID is the unique identifier of the batch.
	ID string `json:"id"`
	// Status is the initial batch status.
	Status string `json:"status"`
}

// SessionResponse describes one recorded session.
type SessionResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// SessionsResponse lists the recorded sessions, newest first.
type SessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// TrackResponse is one planned track of a batch.
type TrackResponse struct {
	Index       int     `json:"index"`
	Title       string  `json:"title,omitempty"`
	Artist      string  `json:"artist,omitempty"`
	Album       string  `json:"album,omitempty"`
	TrackNumber int     `json:"track_number,omitempty"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Status      string  `json:"status"`
	OutputPath  string  `json:"output_path"`
	// Location is where the track was published.
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResponse is the HTTP response for getting batch details.
type BatchResponse struct {
	ID       string `json:"id"`
	Session  string `json:"session"`
	Strategy string `json:"strategy"`
	Status   string `json:"status"`
	// Progress is the percentage of tracks already cut (0-100).
	Progress int `json:"progress"`
	// Discarded counts songs dropped because the recording ended before them.
	Discarded   int             `json:"discarded"`
	Error       string          `json:"error,omitempty"`
	Tracks      []TrackResponse `json:"tracks"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// BatchesResponse lists batches, oldest first.
type BatchesResponse struct {
	Batches []BatchResponse `json:"batches"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
