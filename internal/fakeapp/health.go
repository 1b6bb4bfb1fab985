package fakeapp

import (
	"context"
	"net/http"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/model"
)

var healthRank = map[string]int{model.Healthy: 0, model.Degraded: 1, model.Unhealthy: 2}

// health answers GET and HEAD /health. The overall status is the worst service status;
// an unhealthy service turns the response into a 503. HEAD gets headers only.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	report := s.healthReport(r.Context())

	status := http.StatusOK
	if report.Status == model.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, report)
}

func (s *Server) healthReport(ctx context.Context) model.Health {
	services := map[string]model.ServiceHealth{}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if rtt, err := s.store.Ping(ctx); err != nil {
		services["database"] = model.ServiceHealth{Status: model.Unhealthy}
	} else {
		services["database"] = model.ServiceHealth{Status: model.Healthy, ResponseTime: msFloat(rtt)}
	}
	for _, name := range []string{"vectorDb", "cache"} {
		st := model.Healthy
		if override, ok := s.opts.ServiceStatus[name]; ok {
			st = override
		}
		services[name] = model.ServiceHealth{Status: st}
	}

	overall := model.Healthy
	for _, svc := range services {
		if healthRank[svc.Status] > healthRank[overall] {
			overall = svc.Status
		}
	}

	now := s.opts.Now().UTC()
	uptime := now.Sub(s.startedAt).Seconds()
	if uptime <= 0 {
		// A report built in the same instant as startup still reports a positive uptime.
		uptime = 0.001
	}
	return model.Health{
		Status:      overall,
		Timestamp:   now,
		StartedAt:   s.startedAt,
		Uptime:      uptime,
		Version:     s.opts.Version,
		Environment: s.opts.Environment,
		Services:    services,
	}
}

func msFloat(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
