package pages_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/artifacts"
	"github.com/kuitang/knowledge-e2e/internal/browser"
	"github.com/kuitang/knowledge-e2e/internal/config"
	"github.com/kuitang/knowledge-e2e/internal/fakeapp"
	"github.com/kuitang/knowledge-e2e/internal/model"
	"github.com/kuitang/knowledge-e2e/internal/pages"
	"github.com/playwright-community/playwright-go"
)

var (
	suiteCfg *config.Config
	fake     *fakeapp.Server
	seq      atomic.Int64
)

func TestMain(m *testing.M) {
	srv, err := fakeapp.New(fakeapp.Options{JobStep: 50})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start fake app: %v\n", err)
		os.Exit(1)
	}
	ts := httptest.NewServer(srv.Handler())
	dir, err := os.MkdirTemp("", "pages-artifacts-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "artifacts dir: %v\n", err)
		os.Exit(1)
	}

	fake = srv
	suiteCfg = &config.Config{
		BaseURL:           ts.URL,
		Headless:          true,
		ActionTimeout:     10 * time.Second,
		NavigationTimeout: 15 * time.Second,
		ArtifactsDir:      dir,
		Screenshot:        config.CaptureOnlyOnFailure,
		Video:             config.CaptureOff,
		Trace:             config.CaptureOff,
		Profiles:          config.DefaultProfiles("test-token"),
	}

	code := m.Run()

	browser.CloseShared()
	ts.Close()
	_ = srv.Close()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func newBase(t *testing.T) *pages.Base {
	t.Helper()
	s := browser.Shared(t, suiteCfg, "chromium", nil)
	b := pages.NewBase(s.NewPage(t), suiteCfg.BaseURL)
	b.Timeout = 10 * time.Second
	b.Artifacts = artifacts.NewDirSink(t.TempDir())
	return b
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s %d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

func TestBase_NavigateTitleAndURL(t *testing.T) {
	b := newBase(t)
	if got := b.URL("sources"); got != suiteCfg.BaseURL+"/sources" {
		t.Fatalf("URL(sources) = %q", got)
	}
	if got := b.URL("https://elsewhere.test/x"); got != "https://elsewhere.test/x" {
		t.Fatalf("absolute URL rewritten: %q", got)
	}
	if err := b.Navigate(pages.SourcesPath); err != nil {
		t.Fatal(err)
	}
	if err := b.WaitForLoadComplete(); err != nil {
		t.Fatal(err)
	}
	title, err := b.Title()
	if err != nil || title != "Knowledge Sources" {
		t.Fatalf("title = %q, %v", title, err)
	}
	heading, err := b.GetElementText(`[data-testid="page-title"]`)
	if err != nil || heading != "Knowledge Sources" {
		t.Fatalf("heading = %q, %v", heading, err)
	}
}

func TestBase_ScreenshotGoesToSink(t *testing.T) {
	b := newBase(t)
	dir := t.TempDir()
	b.Artifacts = artifacts.NewDirSink(dir)
	if err := b.Navigate(pages.LoginPath); err != nil {
		t.Fatal(err)
	}
	where, err := b.TakeScreenshot(context.Background(), "login page")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(where, dir) || !strings.HasSuffix(where, "screenshots/login_page.png") {
		t.Fatalf("screenshot stored at %q", where)
	}
}

func TestBase_LocalStorageAndCookies(t *testing.T) {
	b := newBase(t)
	if err := b.Navigate(pages.LoginPath); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := b.LocalStorageItem("apiToken"); err != nil || ok {
		t.Fatalf("fresh context should have no apiToken: ok=%v err=%v", ok, err)
	}
	if err := b.SetLocalStorageItem("apiToken", "user-test-token"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := b.LocalStorageItem("apiToken")
	if err != nil || !ok || v != "user-test-token" {
		t.Fatalf("apiToken = %q ok=%v err=%v", v, ok, err)
	}
	if err := b.ClearLocalStorage(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.LocalStorageItem("apiToken"); ok {
		t.Fatal("ClearLocalStorage left apiToken behind")
	}

	if err := b.SetCookie("session", "carol%40example.com"); err != nil {
		t.Fatal(err)
	}
	dash := pages.NewDashboardPage(b)
	if err := b.Navigate(pages.DashboardPath); err != nil {
		t.Fatal(err)
	}
	welcome, err := dash.WelcomeMessage()
	if err != nil || welcome != "Welcome, carol@example.com" {
		t.Fatalf("welcome = %q, %v", welcome, err)
	}
	if err := b.ClearCookies(); err != nil {
		t.Fatal(err)
	}
	cookies, err := b.Cookies()
	if err != nil || len(cookies) != 0 {
		t.Fatalf("cookies after clear = %v, %v", cookies, err)
	}
}

func TestLogin_ReachesDashboardAndLogsOut(t *testing.T) {
	b := newBase(t)
	login := pages.NewLoginPage(b)
	if err := login.Goto(); err != nil {
		t.Fatal(err)
	}
	if visible, err := login.IsLoginButtonVisible(); err != nil || !visible {
		t.Fatalf("login button visible = %v, %v", visible, err)
	}
	if err := login.Login("dana@example.com", "secret"); err != nil {
		t.Fatal(err)
	}

	dash := pages.NewDashboardPage(b)
	if err := dash.WaitUntilVisible(); err != nil {
		t.Fatal(err)
	}
	if welcome, _ := dash.WelcomeMessage(); !strings.Contains(welcome, "dana@example.com") {
		t.Fatalf("welcome = %q", welcome)
	}
	if err := dash.Logout(); err != nil {
		t.Fatal(err)
	}
	if err := b.WaitForNavigation("**" + pages.LoginPath + "**"); err != nil {
		t.Fatal(err)
	}
}

func TestLogin_RejectsEmptyPassword(t *testing.T) {
	b := newBase(t)
	login := pages.NewLoginPage(b)
	if err := login.Goto(); err != nil {
		t.Fatal(err)
	}
	if err := login.Login("erin@example.com", ""); err != nil {
		t.Fatal(err)
	}
	msg, err := login.LoginError()
	if err != nil || msg == "" {
		t.Fatalf("expected a login error, got %q, %v", msg, err)
	}
	if err := login.Login("", "x"); err == nil {
		t.Fatal("empty email should be rejected before submitting")
	}
}

func openSources(t *testing.T) *pages.SourcesPage {
	t.Helper()
	p := pages.NewSourcesPage(newBase(t))
	if err := p.Goto(); err != nil {
		t.Fatal(err)
	}
	return p
}

func addSource(t *testing.T, p *pages.SourcesPage, name string) {
	t.Helper()
	if err := p.ClickAddSource(); err != nil {
		t.Fatal(err)
	}
	if err := p.FillSourceForm(pages.SourceForm{
		Name:     name,
		Type:     model.SourceOneNote,
		Notebook: "Test Notebook",
		Section:  "Test Section",
	}); err != nil {
		t.Fatal(err)
	}
	if err := p.SubmitSourceForm(); err != nil {
		t.Fatal(err)
	}
	if err := p.SourceByName(name).WaitFor(); err != nil {
		t.Fatalf("row for %q never appeared: %v", name, err)
	}
}

func TestSources_AddValidateExtractDelete(t *testing.T) {
	p := openSources(t)
	name := uniqueName("Test Source")
	addSource(t, p, name)

	status, err := p.WaitForValidation()
	if err != nil || status != "Validated" {
		t.Fatalf("validation = %q, %v", status, err)
	}
	if toast, err := p.WaitForToast(pages.ToastSuccess); err != nil || !strings.Contains(toast, "Source created") {
		t.Fatalf("toast = %q, %v", toast, err)
	}

	if err := p.SearchSources(name); err != nil {
		t.Fatal(err)
	}
	if n, err := p.SourceCount(); err != nil || n != 1 {
		t.Fatalf("search for %q shows %d rows, %v", name, n, err)
	}
	if ok, err := p.ValidateSource(name); err != nil || !ok {
		t.Fatalf("ValidateSource = %v, %v", ok, err)
	}

	if err := p.ClickExtractForSource(name); err != nil {
		t.Fatal(err)
	}
	if err := p.WaitForExtractionComplete(20 * time.Second); err != nil {
		t.Fatal(err)
	}
	if progress, err := p.ExtractionProgress(); err != nil || progress != 100 {
		t.Fatalf("progress = %d, %v", progress, err)
	}
	if status, err := p.SourceStatus(name); err != nil || status != "Active" {
		t.Fatalf("status = %q, %v", status, err)
	}
	if docs, err := p.DocumentCount(name); err != nil || docs <= 0 {
		t.Fatalf("documents = %d, %v", docs, err)
	}

	if err := p.DeleteSource(name); err != nil {
		t.Fatal(err)
	}
	if err := p.SourceByName(name).WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateHidden,
	}); err != nil {
		t.Fatalf("row for %q still shown after delete: %v", name, err)
	}
	if err := p.WaitForElement(`[data-testid="empty-state"]`); err != nil {
		t.Fatal(err)
	}
	if empty, err := p.HasEmptyState(); err != nil || !empty {
		t.Fatalf("empty state after deleting the only match = %v, %v", empty, err)
	}
}

func TestSources_FormValidationMessages(t *testing.T) {
	p := openSources(t)
	if err := p.ClickAddSource(); err != nil {
		t.Fatal(err)
	}
	if err := p.SubmitButton().Click(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Name is required", "Type is required"} {
		loc := p.Page.GetByText(want)
		if err := loc.WaitFor(); err != nil {
			t.Fatalf("missing message %q: %v", want, err)
		}
	}

	if err := p.FillInput(`[name="sourceName"]`, strings.Repeat("a", 256)); err != nil {
		t.Fatal(err)
	}
	if err := p.Page.GetByText("Name must be less than 255 characters").WaitFor(); err != nil {
		t.Fatal(err)
	}
	if err := p.CancelSourceForm(); err != nil {
		t.Fatal(err)
	}
	if err := p.WaitForElementHidden(`[data-testid="source-form"]`); err != nil {
		t.Fatal(err)
	}
}

func TestSources_MockedExtractionFailure(t *testing.T) {
	p := openSources(t)
	name := uniqueName("Test Source")
	addSource(t, p, name)
	if err := p.SearchSources(name); err != nil {
		t.Fatal(err)
	}

	if err := p.MockAPIResponse("api/extract/**", model.ErrorBody{Error: "Internal server error"}, 500); err != nil {
		t.Fatal(err)
	}
	if err := p.ClickExtractForSource(name); err != nil {
		t.Fatal(err)
	}
	msg, err := p.WaitForToast(pages.ToastError)
	if err != nil || !strings.Contains(msg, "Extraction failed") {
		t.Fatalf("error toast = %q, %v", msg, err)
	}
	if err := p.DismissToast(); err != nil {
		t.Fatal(err)
	}
	if status, err := p.SourceStatus(name); err != nil || status != "Error" {
		t.Fatalf("status = %q, %v", status, err)
	}
	if visible, err := p.SourceByName(name).Locator(`[data-testid="retry-extraction"]`).IsVisible(); err != nil || !visible {
		t.Fatalf("retry button visible = %v, %v", visible, err)
	}
}

func TestSources_FilterAndBulkDelete(t *testing.T) {
	ctx := context.Background()
	tag := uniqueName("Bulk")
	names := []string{tag + " a", tag + " b"}
	for _, n := range names {
		if _, err := fake.Store().CreateSource(ctx, model.Source{
			Name:   n,
			Type:   model.SourceGitHub,
			Config: map[string]any{"repository": "org/repo", "token": "t"},
		}); err != nil {
			t.Fatal(err)
		}
	}

	p := openSources(t)
	if err := p.FilterByType(model.SourceGitHub); err != nil {
		t.Fatal(err)
	}
	if err := p.SearchSources(tag); err != nil {
		t.Fatal(err)
	}
	if n, err := p.SourceCount(); err != nil || n != 2 {
		t.Fatalf("rows = %d, %v", n, err)
	}
	if err := p.SortBy(pages.SortByName); err != nil {
		t.Fatal(err)
	}
	first, err := p.SourcesList().Locator(".name").First().TextContent()
	if err != nil || first != names[0] {
		t.Fatalf("first row after sort = %q, %v", first, err)
	}

	if err := p.BulkSelect(names...); err != nil {
		t.Fatal(err)
	}
	if err := p.BulkDelete(); err != nil {
		t.Fatal(err)
	}
	if err := p.WaitForElement(`[data-testid="empty-state"]`); err != nil {
		t.Fatal(err)
	}
	items, _, err := fake.Store().ListSources(ctx, fakeapp.ListFilter{Search: tag, Limit: 10})
	if err != nil || len(items) != 0 {
		t.Fatalf("sources left after bulk delete: %v, %v", items, err)
	}
}

func TestStudents_AddFindInspectDelete(t *testing.T) {
	b := newBase(t)
	form := pages.NewStudentFormPage(b)
	if err := form.Goto(); err != nil {
		t.Fatal(err)
	}
	email := fmt.Sprintf("child.%d@example.com", seq.Add(1))
	if err := form.AddStudent(model.Student{
		FullName: "Jamie Rivera",
		Email:    email,
		Type:     model.StudentChild,
		Parent:   "Alex Rivera",
	}); err != nil {
		t.Fatal(err)
	}
	// AddStudent returns only once the form has confirmed the save.
	if shown, err := b.IsVisible(".alert-success"); err != nil || !shown {
		t.Fatalf("success alert not shown when AddStudent returned: %v, %v", shown, err)
	}
	if msg, err := form.SuccessMessage(); err != nil || !strings.Contains(msg, "added") {
		t.Fatalf("success = %q, %v", msg, err)
	}

	list := pages.NewStudentListPage(b)
	if err := list.NavigateToList(); err != nil {
		t.Fatal(err)
	}
	if err := list.SearchStudent("jamie"); err != nil {
		t.Fatal(err)
	}
	if err := list.WaitForStudent("Jamie Rivera"); err != nil {
		t.Fatal(err)
	}
	if err := list.OpenStudentDetails("Jamie Rivera"); err != nil {
		t.Fatal(err)
	}
	details, err := pages.NewStudentDetailsPage(b).Details()
	if err != nil {
		t.Fatal(err)
	}
	want := pages.StudentDetails{Name: "Jamie Rivera", Email: email, Phone: "-", Type: "Child", Parent: "Alex Rivera"}
	if details != want {
		t.Fatalf("details = %+v, want %+v", details, want)
	}

	if err := list.NavigateToList(); err != nil {
		t.Fatal(err)
	}
	if err := list.DeleteStudent("Jamie Rivera"); err != nil {
		t.Fatal(err)
	}
	if present, err := list.IsStudentPresent("Jamie Rivera"); err != nil || present {
		t.Fatalf("student still present = %v, %v", present, err)
	}
}

func TestStudents_SaveReportsFormErrors(t *testing.T) {
	form := pages.NewStudentFormPage(newBase(t))
	if err := form.Goto(); err != nil {
		t.Fatal(err)
	}
	err := form.AddAdultStudent("Pat Kim", "", "555-0100")
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("saving without an email should surface the form error, got %v", err)
	}
}

func TestStudents_ChildWithoutParentIsRejected(t *testing.T) {
	form := pages.NewStudentFormPage(newBase(t))
	if err := form.AddChildStudent("Sam Lee", "sam@example.com", ""); err == nil {
		t.Fatal("AddChildStudent without a parent should fail before touching the page")
	}
}
