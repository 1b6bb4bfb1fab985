package fakeapp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/kuitang/knowledge-e2e/internal/model"
)

// Connectivity and permission results.
const (
	connectivityOK      = "ok"
	connectivityFailed  = "failed"
	connectivityTimeout = "timeout"

	permissionsGranted = "granted"
	permissionsMissing = "missing"
)

// validateSource probes config.endpoint, when present, and checks that the source carries
// the credentials its type needs. A probe that runs out of time answers 408.
func (s *Server) validateSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.store.GetSource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	result := model.Validation{
		IsValid:      true,
		Connectivity: connectivityOK,
		Permissions:  permissionsGranted,
	}

	if endpoint, _ := src.Config["endpoint"].(string); endpoint != "" {
		switch err := s.probe(r.Context(), endpoint); {
		case err == nil:
		case isTimeout(err):
			result.IsValid = false
			result.Connectivity = connectivityTimeout
			result.Errors = append(result.Errors, "connection to "+endpoint+" timed out")
			writeJSON(w, http.StatusRequestTimeout, result)
			return
		default:
			result.IsValid = false
			result.Connectivity = connectivityFailed
			result.Errors = append(result.Errors, "cannot reach "+endpoint+": "+err.Error())
		}
	}

	if !hasCredentials(src) {
		result.IsValid = false
		result.Permissions = permissionsMissing
		result.Errors = append(result.Errors, "source has no credentials")
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) probe(ctx context.Context, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	if u.Hostname() == "" {
		return errors.New("endpoint has no host")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ValidateTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return err
	}
	return conn.Close()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func hasCredentials(src *model.Source) bool {
	switch src.Type {
	case model.SourceOneNote:
		creds, ok := src.Config["credentials"].(map[string]any)
		return ok && len(creds) > 0
	case model.SourceGitHub, model.SourceCodeRepo:
		token, _ := src.Config["token"].(string)
		return token != ""
	default:
		return true
	}
}
