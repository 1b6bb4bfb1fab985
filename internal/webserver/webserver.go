// Package webserver makes the application under test reachable before the suite runs.
//
// Outside CI, when APP_IMAGE is set and nothing already answers on BASE_URL, the image is
// started in a container and the suite is pointed at its mapped port. In CI the target is
// assumed to be deployed already.
package webserver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/kuitang/knowledge-e2e/internal/config"
	"github.com/kuitang/knowledge-e2e/internal/obs"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// HealthPath is polled to decide that the application is up.
const HealthPath = "/health"

// Server is a reachable application. Stop is a no-op unless Start launched a container.
type Server struct {
	BaseURL   string
	container testcontainers.Container
}

// Started reports whether Start launched a container.
func (s *Server) Started() bool {
	return s.container != nil
}

// Stop terminates the container started by Start.
func (s *Server) Stop(ctx context.Context) error {
	if s.container == nil {
		return nil
	}
	return s.container.Terminate(ctx)
}

// Start returns the application to test, launching APP_IMAGE when needed.
func Start(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger := obs.Pkg("webserver")
	if !cfg.ShouldStartWebServer() {
		return &Server{BaseURL: cfg.BaseURL}, nil
	}

	if Healthy(ctx, cfg.BaseURL, 2*time.Second) {
		logger.Info("reusing_existing_server", "base_url", cfg.BaseURL)
		return &Server{BaseURL: cfg.BaseURL}, nil
	}

	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	port := nat.Port(cfg.AppPort)
	if !strings.Contains(cfg.AppPort, "/") {
		port = nat.Port(cfg.AppPort + "/tcp")
	}
	logger.Info("starting_app_container", "image", cfg.AppImage, "port", port, "timeout", cfg.WebServerTimeout)

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        cfg.AppImage,
			ExposedPorts: []string{string(port)},
			WaitingFor: wait.ForHTTP(HealthPath).
				WithPort(port).
				WithStatusCodeMatcher(func(status int) bool { return status == http.StatusOK }).
				WithStartupTimeout(cfg.WebServerTimeout),
		},
		Started: true,
	})
	if err != nil {
		if c != nil {
			_ = c.Terminate(ctx)
		}
		return nil, fmt.Errorf("start %s: %w", cfg.AppImage, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("container host: %w", err)
	}
	// testcontainers may report "null" as host in some environments.
	if host == "" || host == "null" {
		host = "localhost"
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("container port: %w", err)
	}

	baseURL := fmt.Sprintf("http://%s:%s", host, mapped.Port())
	logger.Info("app_container_ready", "base_url", baseURL)
	return &Server{BaseURL: baseURL, container: c}, nil
}

// Healthy reports whether baseURL answers GET /health with 200 within timeout.
func Healthy(ctx context.Context, baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+HealthPath, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
