package api

import "time"

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	ErrorID string `json:"error_id"`
	Error   string `json:"error"`
}

// WhoAmIResponse describes the logged-in user.
type WhoAmIResponse struct {
	Subject     string    `json:"subject"`
	Name        string    `json:"name"`
	ValidBefore time.Time `json:"valid_before"`
}
