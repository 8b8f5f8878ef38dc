package models

import "time"

// AuditLog is an append-only event record.
type AuditLog struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Username     string    `json:"username"`
	Success      bool      `json:"success"`
	Details      string    `json:"details"` // JSON string
	ComputerName string    `json:"computer_name"`
	IPAddress    string    `json:"ip_address"`
	Platform     string    `json:"platform"`
}
