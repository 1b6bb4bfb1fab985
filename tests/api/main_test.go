// Package api holds the REST API tests. They run against API_URL when E2E_REMOTE=1 and
// against the in-process fake service otherwise.
package api

import (
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/apiclient"
	"github.com/kuitang/knowledge-e2e/internal/config"
	"github.com/kuitang/knowledge-e2e/internal/fakeapp"
	"github.com/kuitang/knowledge-e2e/internal/testdata"
)

var (
	client   *apiclient.Client
	apiURL   string
	fixtures = testdata.NewFixtures()
	// pollInterval is the job poll spacing; the fake advances per poll so it can be short.
	pollInterval = apiclient.DefaultJobInterval
)

func TestMain(m *testing.M) {
	cleanup := func() {}
	if os.Getenv("E2E_REMOTE") == "1" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		client = apiclient.FromConfig(cfg)
		apiURL = cfg.APIURL
	} else {
		srv, err := fakeapp.New(fakeapp.Options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "start fake api: %v\n", err)
			os.Exit(1)
		}
		ts := httptest.NewServer(srv.Handler())
		cleanup = func() {
			ts.Close()
			_ = srv.Close()
		}
		apiURL = ts.URL
		client = apiclient.New(apiclient.Options{BaseURL: ts.URL, Timeout: 10 * time.Second})
		pollInterval = 20 * time.Millisecond
	}

	code := m.Run()
	cleanup()
	os.Exit(code)
}
