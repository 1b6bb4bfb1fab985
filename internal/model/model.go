// Package model holds the plain value records exchanged with the application under test.
// Nothing here is persisted by the suite; every record belongs to the test that created it.
package model

import (
	"slices"
	"strings"
	"time"
)

// SourceType identifies the kind of knowledge source.
type SourceType string

const (
	SourceOneNote  SourceType = "ONENOTE"
	SourceGitHub   SourceType = "GITHUB"
	SourceCodeRepo SourceType = "CODE_REPO"
	SourceAIChat   SourceType = "AI_CHAT"
	SourceEmail    SourceType = "EMAIL"
)

// SourceTypes lists every type the API accepts, in display order.
var SourceTypes = []SourceType{SourceOneNote, SourceGitHub, SourceCodeRepo, SourceAIChat, SourceEmail}

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	return slices.Contains(SourceTypes, t)
}

// Source statuses reported by the API.
const (
	SourceStatusConfigured = "configured"
	SourceStatusActive     = "active"
	SourceStatusExtracting = "extracting"
	SourceStatusError      = "error"
)

// Source is a configured knowledge source.
type Source struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Type      SourceType     `json:"type"`
	Status    string         `json:"status,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Documents int            `json:"documentCount,omitempty"`
	CreatedAt time.Time      `json:"createdAt,omitzero"`
	UpdatedAt time.Time      `json:"updatedAt,omitzero"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	Limit       int  `json:"limit"`
	Offset      int  `json:"offset"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

// SourceList is the envelope returned by GET /api/sources.
type SourceList struct {
	Items      []Source   `json:"items"`
	Total      int        `json:"total"`
	Pagination Pagination `json:"pagination"`
}

// Validation is the result of POST /api/sources/{id}/validate.
type Validation struct {
	IsValid      bool     `json:"isValid"`
	Connectivity string   `json:"connectivity"`
	Permissions  string   `json:"permissions"`
	Errors       []string `json:"errors,omitempty"`
}

// Job statuses. Only JobRunning is non-terminal.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is an asynchronous extraction job.
type Job struct {
	JobID       string    `json:"jobId"`
	SourceID    string    `json:"sourceId,omitempty"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Documents   int       `json:"documents,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
}

// Terminal reports whether the job has stopped running.
func (j Job) Terminal() bool {
	return j.Status != JobRunning
}

// Health statuses.
const (
	Healthy   = "healthy"
	Degraded  = "degraded"
	Unhealthy = "unhealthy"
)

// HealthStatuses lists the allowed values for overall and per-service status.
var HealthStatuses = []string{Healthy, Degraded, Unhealthy}

// ServiceHealth is one dependency entry in a health report.
type ServiceHealth struct {
	Status       string  `json:"status"`
	ResponseTime float64 `json:"responseTime"`
}

// Health is the body of GET /health.
type Health struct {
	Status      string                   `json:"status"`
	Timestamp   time.Time                `json:"timestamp"`
	StartedAt   time.Time                `json:"startedAt"`
	Uptime      float64                  `json:"uptime"`
	Version     string                   `json:"version"`
	Environment string                   `json:"environment"`
	Services    map[string]ServiceHealth `json:"services"`
}

// ErrorBody is the JSON error envelope used by the API.
type ErrorBody struct {
	Error      string       `json:"error"`
	Code       string       `json:"code,omitempty"`
	Details    []string     `json:"details,omitempty"`
	ValidTypes []SourceType `json:"validTypes,omitempty"`
}

// StudentType distinguishes adult and child students.
type StudentType string

const (
	StudentAdult StudentType = "Adult"
	StudentChild StudentType = "Child"
)

// Student is a person enrolled through the UI.
// Parent is set if and only if Type is StudentChild.
type Student struct {
	FullName string      `json:"fullName" validate:"required"`
	Email    string      `json:"email" validate:"required,email"`
	Phone    string      `json:"phone" validate:"required"`
	Type     StudentType `json:"type" validate:"required,oneof=Adult Child"`
	Parent   string      `json:"parent,omitempty" validate:"required_if=Type Child,excluded_if=Type Adult"`
}

// SplitFullName splits "First Last" at the first space. Everything after it is the last name.
func SplitFullName(fullName string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(fullName), " ")
	return first, strings.TrimSpace(last)
}
