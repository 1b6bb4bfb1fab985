package e2e

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/apiclient"
	"github.com/kuitang/knowledge-e2e/internal/browser"
	"github.com/kuitang/knowledge-e2e/internal/pages"
	"github.com/kuitang/knowledge-e2e/internal/testdata"
)

var seq atomic.Int64

// newBase opens a fresh page in the suite's browser profile. The test is skipped when no
// browser can be launched.
func newBase(t *testing.T) *pages.Base {
	t.Helper()
	s := browser.Shared(t, suiteCfg, profile, nil)
	b := pages.NewBase(s.NewPage(t), suiteCfg.BaseURL)
	b.Timeout = suiteCfg.ActionTimeout
	return b
}

// sourceName returns a source name unique to this run.
func sourceName() string {
	return fmt.Sprintf("%s%d-%d", testdata.SourceNamePrefix, time.Now().UnixNano(), seq.Add(1))
}

// sweepSources deletes every source whose name contains one of names once the test ends.
// Sources the test already removed are skipped.
func sweepSources(t *testing.T, names ...string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, name := range names {
			list, err := client.ListSources(ctx, apiclient.ListParams{Search: name, Limit: 100})
			if err != nil {
				t.Logf("sweep %q: %v", name, err)
				continue
			}
			for _, src := range list.Items {
				if err := client.DeleteSource(ctx, src.ID); err != nil {
					t.Logf("sweep %q: %v", src.Name, err)
				}
			}
		}
	})
}

// openSources opens the sources screen and fails the test if it does not load.
func openSources(t *testing.T) *pages.SourcesPage {
	t.Helper()
	sp := pages.NewSourcesPage(newBase(t))
	if err := sp.Goto(); err != nil {
		t.Fatal(err)
	}
	return sp
}

// addSource creates a source through the dialog.
func addSource(t *testing.T, sp *pages.SourcesPage, form pages.SourceForm) {
	t.Helper()
	if err := sp.ClickAddSource(); err != nil {
		t.Fatal(err)
	}
	if err := sp.FillSourceForm(form); err != nil {
		t.Fatal(err)
	}
	if err := sp.SubmitSourceForm(); err != nil {
		t.Fatalf("submit %q: %v", form.Name, err)
	}
	if err := sp.SourceByName(form.Name).WaitFor(); err != nil {
		t.Fatalf("source %q never appeared: %v", form.Name, err)
	}
}

// login signs in as the configured test user and waits for the dashboard.
func login(t *testing.T, b *pages.Base) {
	t.Helper()
	lp := pages.NewLoginPage(b)
	if err := lp.Goto(); err != nil {
		t.Fatal(err)
	}
	if err := lp.Login(suiteCfg.TestUserEmail, suiteCfg.TestUserPassword); err != nil {
		t.Fatal(err)
	}
	dash := pages.NewDashboardPage(b)
	if err := dash.WaitUntilVisible(); err != nil {
		t.Fatalf("dashboard not shown after login: %v", err)
	}
}
