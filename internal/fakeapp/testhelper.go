package fakeapp

import (
	"net/http/httptest"
	"testing"
)

// StartTestServer runs a fake API on a loopback port for the duration of the test
// and returns it with its base URL.
func StartTestServer(tb testing.TB, opts Options) (*Server, string) {
	tb.Helper()
	srv, err := New(opts)
	if err != nil {
		tb.Fatalf("start fake api: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	tb.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return srv, ts.URL
}
