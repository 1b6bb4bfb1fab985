package testdata

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/kuitang/knowledge-e2e/internal/model"
)

// SourceNamePrefix starts every generated source name; the sweep command keys on it.
const SourceNamePrefix = "Test Source "

var lastStamp atomic.Int64

// uniqueStamp returns the current Unix time in nanoseconds, bumped past the previous
// value when the clock has not advanced, so two calls in one process never collide.
func uniqueStamp() int64 {
	for {
		now := time.Now().UnixNano()
		prev := lastStamp.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastStamp.CompareAndSwap(prev, now) {
			return now
		}
	}
}

// GenerateRandomSource returns the valid source fixture with a unique timestamped name,
// shallow-merged with overrides keyed by JSON field name ("name", "type", "config", ...).
// An override replaces the whole top-level field. Keys with no Source field are dropped.
func (f Fixtures) GenerateRandomSource(overrides map[string]any) model.Source {
	base := f.Sources.Valid
	base.Name = fmt.Sprintf("%s%d", SourceNamePrefix, uniqueStamp())

	raw, err := json.Marshal(base)
	if err != nil {
		panic("testdata: marshal source fixture: " + err.Error())
	}
	merged := map[string]any{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		panic("testdata: unmarshal source fixture: " + err.Error())
	}
	for k, v := range overrides {
		merged[k] = v
	}

	raw, err = json.Marshal(merged)
	if err != nil {
		panic("testdata: marshal source overrides: " + err.Error())
	}
	var out model.Source
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("testdata: override has the wrong shape for a source: %v", err))
	}
	return out
}

// GenerateRandomSource is a shortcut for NewFixtures().GenerateRandomSource.
func GenerateRandomSource(overrides map[string]any) model.Source {
	return NewFixtures().GenerateRandomSource(overrides)
}

// QueryKind selects a family of search queries.
type QueryKind string

const (
	QuerySimple   QueryKind = "simple"
	QueryComplex  QueryKind = "complex"
	QuerySemantic QueryKind = "semantic"
)

var queriesByKind = map[QueryKind][]string{
	QuerySimple:   {"lesson", "schedule", "teacher", "student", "booking"},
	QueryComplex:  {"lesson AND teacher", "schedule OR availability", "conflict NOT resolved"},
	QuerySemantic: {"how to book a lesson", "finding available teachers", "resolving scheduling conflicts"},
}

// GenerateSearchQuery picks a random query of the given kind; unknown kinds fall back to simple.
func GenerateSearchQuery(kind QueryKind) string {
	set, ok := queriesByKind[kind]
	if !ok {
		set = queriesByKind[QuerySimple]
	}
	return gofakeit.RandomString(set)
}

// SearchQueryCandidates returns every query GenerateSearchQuery may return for kind.
func SearchQueryCandidates(kind QueryKind) []string {
	return append([]string(nil), queriesByKind[kind]...)
}
