// Package testdata builds the fixture values the suite feeds into API and browser tests.
//
// Fixtures is constructed explicitly with NewFixtures and handed to tests; every call
// returns fresh maps and slices so one test cannot leak edits into another.
package testdata

import (
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/model"
)

// SourceFixtures are the canonical source payloads.
type SourceFixtures struct {
	Valid   model.Source
	Invalid model.Source
	GitHub  model.Source
}

// SearchQueries are canned search inputs, including hostile ones.
type SearchQueries struct {
	Simple       string
	Complex      string
	Semantic     string
	Empty        string
	SpecialChars string
	SQLInjection string
	XSS          string
	Long         string
}

// User is a login identity with its API token.
type User struct {
	Email    string
	Password string
	Role     string
	Token    string
}

// Users are the known identities of the application under test.
type Users struct {
	Admin        User
	Regular      User
	Unauthorized User
}

// DocumentMetadata describes a sample document.
type DocumentMetadata struct {
	Author  string
	Created time.Time
	Version string
}

// Document is a sample ingested document.
type Document struct {
	Title    string
	Content  string
	Source   string
	Metadata DocumentMetadata
}

// Documents holds sample document payloads.
type Documents struct {
	Sample Document
}

// Pagination holds list paging limits.
type Pagination struct {
	DefaultLimit int
	MaxLimit     int
	Offsets      []int
}

// Timeouts are the suite's named wait budgets.
type Timeouts struct {
	Short     time.Duration
	Medium    time.Duration
	Long      time.Duration
	ExtraLong time.Duration
}

// ErrorStatuses are the HTTP statuses tests expect for each failure class.
type ErrorStatuses struct {
	BadRequest   int
	Unauthorized int
	Forbidden    int
	NotFound     int
	Conflict     int
	ServerError  int
}

// Fixtures is the full set of static test data.
type Fixtures struct {
	Sources       SourceFixtures
	SearchQueries SearchQueries
	Users         Users
	Documents     Documents
	Pagination    Pagination
	Timeouts      Timeouts
	Errors        ErrorStatuses
}

// NewFixtures returns a fresh copy of the static test data.
func NewFixtures() Fixtures {
	f := Fixtures{
		Sources: SourceFixtures{
			Valid: model.Source{
				Name: "Test Knowledge Source",
				Type: model.SourceOneNote,
				Config: map[string]any{
					"notebook": "Test Notebook",
					"section":  "Test Section",
					"credentials": map[string]any{
						"clientId":     "test-client-id",
						"tenantId":     "test-tenant-id",
						"clientSecret": "test-secret",
					},
				},
				Metadata: map[string]any{
					"owner":      "qa-tester@example.com",
					"department": "QA",
					"tags":       []any{"test", "automation", "qa"},
				},
			},
			Invalid: model.Source{
				Name:   "",
				Type:   "INVALID_TYPE",
				Config: map[string]any{},
			},
			GitHub: model.Source{
				Name: "GitHub Test Source",
				Type: model.SourceGitHub,
				Config: map[string]any{
					"repository": "test-org/test-repo",
					"branch":     "main",
					"token":      "github-test-token",
				},
			},
		},
		SearchQueries: SearchQueries{
			Simple:       "test query",
			Complex:      "scheduling AND (conflict OR overlap) NOT resolved",
			Semantic:     "how to handle concurrent bookings",
			Empty:        "",
			SpecialChars: "test!@#$%^&*()",
			SQLInjection: "'; DROP TABLE users; --",
			XSS:          `<script>alert("XSS")</script>`,
			Long:         strings.Repeat("a", 1000),
		},
		Users: Users{
			Admin:        User{Email: "admin@example.com", Password: "Admin123!", Role: "admin", Token: "admin-test-token"},
			Regular:      User{Email: "user@example.com", Password: "User123!", Role: "user", Token: "user-test-token"},
			Unauthorized: User{Email: "unauthorized@example.com", Password: "Invalid123!", Role: "none", Token: "invalid-token"},
		},
		Pagination: Pagination{
			DefaultLimit: 10,
			MaxLimit:     100,
			Offsets:      []int{0, 10, 20, 50, 100},
		},
		Timeouts: Timeouts{
			Short:     5 * time.Second,
			Medium:    15 * time.Second,
			Long:      30 * time.Second,
			ExtraLong: 60 * time.Second,
		},
		Errors: ErrorStatuses{
			BadRequest:   http.StatusBadRequest,
			Unauthorized: http.StatusUnauthorized,
			Forbidden:    http.StatusForbidden,
			NotFound:     http.StatusNotFound,
			Conflict:     http.StatusConflict,
			ServerError:  http.StatusInternalServerError,
		},
	}
	f.Documents.Sample = Document{
		Title:   "Test Document",
		Content: "This is a test document for automated testing.",
		Source:  "TEST",
		Metadata: DocumentMetadata{
			Author:  "QA Team",
			Created: time.Now().UTC(),
			Version: "1.0.0",
		},
	}
	return f
}
