// Package model holds the row types shared by storage, services and HTTP
// handlers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an attestation request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Label is the French label shown in exports and emails.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "En attente"
	case StatusApproved:
		return "Approuvé"
	case StatusRejected:
		return "Rejeté"
	}
	return string(s)
}

// UserType distinguishes the two populations that sign in.
type UserType string

const (
	UserTypeStudent UserType = "student"
	UserTypeAdmin   UserType = "admin"
)

// Student is a roster entry.
type Student struct {
	ID                uuid.UUID `json:"id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	CIN               string    `json:"cin"`
	Email             string    `json:"email"`
	BirthDate         string    `json:"birth_date"`
	FormationLevel    string    `json:"formation_level"`
	Speciality        string    `json:"speciality"`
	Group             string    `json:"student_group"`
	InscriptionNumber string    `json:"inscription_number"`
	FormationType     string    `json:"formation_type"`
	FormationMode     string    `json:"formation_mode"`
	FormationYear     string    `json:"formation_year"`
	PasswordHash      string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// AttestationRequest is a student's request for an attestation.
type AttestationRequest struct {
	ID                uuid.UUID  `json:"id"`
	StudentID         *uuid.UUID `json:"student_id,omitempty"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	CIN               string     `json:"cin"`
	Phone             string     `json:"phone"`
	Group             string     `json:"student_group"`
	Status            Status     `json:"status"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	AttestationNumber *int64     `json:"attestation_number,omitempty"`
	YearRequested     int        `json:"year_requested"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// LoginAudit is one sign-in attempt. Rows are append-only.
type LoginAudit struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"user_email"`
	UserType   UserType  `json:"user_type"`
	IPAddress  string    `json:"ip_address"`
	City       string    `json:"city"`
	Country    string    `json:"country"`
	DeviceInfo string    `json:"device_info"`
	UserAgent  string    `json:"user_agent"`
	Success    bool      `json:"success"`
	Timestamp  time.Time `json:"login_timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

// VerificationCode is a short-lived numeric code emailed to a student.
type VerificationCode struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	Code      string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// StaffUser is an administrator account.
type StaffUser struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	Active       bool       `json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AuditLog is an administrative action trail entry.
type AuditLog struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource_type"`
	ResourceID string         `json:"resource_id"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	Context    map[string]any `json:"context,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
