package pages

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/model"
	"github.com/playwright-community/playwright-go"
)

// Sources page selectors.
const (
	SourcesPath = "/sources"

	selAddSource       = `[data-testid="add-source-btn"]`
	selSourcesList     = `[data-testid="sources-list"]`
	selSearchSources   = `[data-testid="search-sources"]`
	selFilterSources   = `[data-testid="filter-sources"]`
	selSourceForm      = `[data-testid="source-form"]`
	selSourceName      = `[name="sourceName"]`
	selSourceType      = `[name="sourceType"]`
	selNotebook        = `[name="notebook"]`
	selSection         = `[name="section"]`
	selRepository      = `[name="repository"]`
	selSubmitSource    = `[data-testid="submit-source-btn"]`
	selCancel          = `[data-testid="cancel-btn"]`
	selValidation      = `[data-testid="validation-status"]`
	selProgressBar     = `[role="progressbar"]`
	selSourceRow       = `[data-testid^="source-item"]`
	selConfirmDelete   = `[data-testid="confirm-delete"]`
	selEmptyState      = `[data-testid="empty-state"]`
	selBulkDelete      = `[data-testid="bulk-delete"]`
	selConfirmBulk     = `[data-testid="confirm-bulk-delete"]`
	selExtractionDone  = `[data-testid="extraction-status"]:has-text("Completed")`
	selRowExtract      = `[data-testid="extract-btn"]`
	selRowDelete       = `[data-testid="delete-btn"]`
	selRowEdit         = `[data-testid="edit-btn"]`
	selRowValidate     = `[data-testid="validate-btn"]`
	selRowStatus       = `[data-testid="source-status"]`
	selRowDocCount     = `[data-testid="doc-count"]`
	selRowCheckbox     = `[type="checkbox"]`
	sourcesAPIFragment = "/api/sources"
)

// SortColumn is a sortable column of the sources table.
type SortColumn string

const (
	SortByName    SortColumn = "name"
	SortByType    SortColumn = "type"
	SortByStatus  SortColumn = "status"
	SortByUpdated SortColumn = "updated"
)

// SourceForm is the data entered in the add/edit source dialog.
// Type-specific fields are only filled for the matching type.
type SourceForm struct {
	Name       string
	Type       model.SourceType
	Notebook   string
	Section    string
	Repository string
}

// SourcesPage drives the knowledge sources screen.
type SourcesPage struct {
	*Base
}

// NewSourcesPage binds the sources screen to page.
func NewSourcesPage(base *Base) *SourcesPage {
	return &SourcesPage{Base: base}
}

// Locators used directly by tests for assertions.

func (p *SourcesPage) SourcesList() playwright.Locator      { return p.Page.Locator(selSourcesList) }
func (p *SourcesPage) SearchInput() playwright.Locator      { return p.Page.Locator(selSearchSources) }
func (p *SourcesPage) SourceNameInput() playwright.Locator  { return p.Page.Locator(selSourceName) }
func (p *SourcesPage) SourceTypeSelect() playwright.Locator { return p.Page.Locator(selSourceType) }
func (p *SourcesPage) SubmitButton() playwright.Locator     { return p.Page.Locator(selSubmitSource) }
func (p *SourcesPage) ValidationStatus() playwright.Locator { return p.Page.Locator(selValidation) }
func (p *SourcesPage) ProgressBar() playwright.Locator      { return p.Page.Locator(selProgressBar).First() }

// Goto opens the sources screen and waits for it to settle.
func (p *SourcesPage) Goto() error {
	if err := p.Navigate(SourcesPath); err != nil {
		return err
	}
	return p.WaitForLoadComplete()
}

// ClickAddSource opens the add source dialog.
func (p *SourcesPage) ClickAddSource() error {
	if err := p.ClickElement(selAddSource); err != nil {
		return err
	}
	return p.WaitForElement(selSourceForm)
}

// FillSourceForm fills the dialog. Notebook and section apply to ONENOTE, repository to GITHUB.
func (p *SourcesPage) FillSourceForm(form SourceForm) error {
	if err := p.FillInput(selSourceName, form.Name); err != nil {
		return err
	}
	if err := p.SelectOption(selSourceType, string(form.Type)); err != nil {
		return err
	}

	switch form.Type {
	case model.SourceOneNote:
		if form.Notebook == "" {
			return nil
		}
		if err := p.FillInput(selNotebook, form.Notebook); err != nil {
			return err
		}
		if form.Section != "" {
			return p.FillInput(selSection, form.Section)
		}
	case model.SourceGitHub:
		if form.Repository != "" {
			return p.FillInput(selRepository, form.Repository)
		}
	}
	return nil
}

// SubmitSourceForm submits the dialog and waits for the API to answer 201.
func (p *SourcesPage) SubmitSourceForm() error {
	_, err := p.WaitForAPIResponse(ResponseMatch{URLContains: sourcesAPIFragment, Status: 201}, func() error {
		return p.ClickElement(selSubmitSource)
	})
	return err
}

// CancelSourceForm closes the dialog without saving.
func (p *SourcesPage) CancelSourceForm() error {
	return p.ClickElement(selCancel)
}

// WaitForValidation waits for the validation badge to settle and returns its text.
func (p *SourcesPage) WaitForValidation() (string, error) {
	loc := p.Page.Locator(selValidation).Filter(playwright.LocatorFilterOptions{HasNotText: "Validating"})
	if err := p.waitFor(loc, selValidation, playwright.WaitForSelectorStateVisible); err != nil {
		return "", err
	}
	text, err := loc.TextContent(playwright.LocatorTextContentOptions{Timeout: p.timeoutMS()})
	if err != nil {
		return "", fmt.Errorf("read validation status: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// SearchSources types query into the search box, submits it and waits out the debounce.
func (p *SourcesPage) SearchSources(query string) error {
	if err := p.FillInput(selSearchSources, query); err != nil {
		return err
	}
	if err := p.Page.Keyboard().Press("Enter"); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	p.pause()
	return nil
}

// ClearSearch empties the search box and resubmits.
func (p *SourcesPage) ClearSearch() error {
	return p.SearchSources("")
}

// FilterByType narrows the list to one source type.
func (p *SourcesPage) FilterByType(t model.SourceType) error {
	if err := p.SelectOption(selFilterSources, string(t)); err != nil {
		return err
	}
	p.pause()
	return nil
}

// SourceCount returns the number of source rows currently rendered.
func (p *SourcesPage) SourceCount() (int, error) {
	return p.Page.Locator(selSourceRow).Count()
}

// SourceByName returns the row whose text contains name.
func (p *SourcesPage) SourceByName(name string) playwright.Locator {
	return p.Page.Locator(selSourceRow).Filter(playwright.LocatorFilterOptions{
		HasText: name,
	}).First()
}

func (p *SourcesPage) clickInRow(name, selector string) error {
	if err := p.SourceByName(name).Locator(selector).Click(playwright.LocatorClickOptions{Timeout: p.timeoutMS()}); err != nil {
		return fmt.Errorf("click %s for source %q: %w", selector, name, err)
	}
	return nil
}

// ClickExtractForSource starts extraction from the source's row.
func (p *SourcesPage) ClickExtractForSource(name string) error {
	return p.clickInRow(name, selRowExtract)
}

// WaitForExtractionComplete waits for any extraction badge to read "Completed".
// timeout of 0 uses a minute, matching the extraction budget.
func (p *SourcesPage) WaitForExtractionComplete(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = time.Minute
	}
	err := p.Page.Locator(selExtractionDone).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("wait for extraction to complete: %w", err)
	}
	return nil
}

// ExtractionProgress reads aria-valuenow from the first progress bar. A missing or
// non-numeric value reads as 0.
func (p *SourcesPage) ExtractionProgress() (int, error) {
	raw, err := p.ProgressBar().GetAttribute("aria-valuenow", playwright.LocatorGetAttributeOptions{Timeout: p.timeoutMS()})
	if err != nil {
		return 0, fmt.Errorf("read progress: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// DeleteSource deletes the source's row, confirming when asked, and waits for the 204.
func (p *SourcesPage) DeleteSource(name string) error {
	_, err := p.WaitForAPIResponse(ResponseMatch{URLContains: sourcesAPIFragment, Status: 204}, func() error {
		if err := p.clickInRow(name, selRowDelete); err != nil {
			return err
		}
		confirm := p.Page.Locator(selConfirmDelete)
		if err := confirm.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(1000),
		}); err != nil {
			// No confirmation dialog on this build.
			return nil
		}
		return confirm.Click()
	})
	return err
}

// EditSource opens the edit dialog for a source.
func (p *SourcesPage) EditSource(name string) error {
	if err := p.clickInRow(name, selRowEdit); err != nil {
		return err
	}
	return p.WaitForElement(selSourceForm)
}

// ValidateSource clicks validate on the row and returns isValid from the API's answer.
func (p *SourcesPage) ValidateSource(name string) (bool, error) {
	var result model.Validation
	err := p.WaitForAPIJSON(ResponseMatch{URLContains: "/validate"}, &result, func() error {
		return p.clickInRow(name, selRowValidate)
	})
	return result.IsValid, err
}

func (p *SourcesPage) rowText(name, selector string) (string, error) {
	text, err := p.SourceByName(name).Locator(selector).TextContent(playwright.LocatorTextContentOptions{Timeout: p.timeoutMS()})
	if err != nil {
		return "", fmt.Errorf("read %s for source %q: %w", selector, name, err)
	}
	return strings.TrimSpace(text), nil
}

// SourceStatus returns the status badge text of a source row.
func (p *SourcesPage) SourceStatus(name string) (string, error) {
	return p.rowText(name, selRowStatus)
}

// DocumentCount returns the document count of a source row; non-numeric text reads as 0.
func (p *SourcesPage) DocumentCount(name string) (int, error) {
	text, err := p.rowText(name, selRowDocCount)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// SortBy clicks a column header and waits for the re-render.
func (p *SourcesPage) SortBy(column SortColumn) error {
	if err := p.ClickElement(fmt.Sprintf(`[data-testid="sort-%s"]`, column)); err != nil {
		return err
	}
	p.pause()
	return nil
}

// HasEmptyState reports whether the empty-state placeholder is showing.
func (p *SourcesPage) HasEmptyState() (bool, error) {
	return p.IsVisible(selEmptyState)
}

// BulkSelect ticks the checkbox on each named row.
func (p *SourcesPage) BulkSelect(names ...string) error {
	for _, name := range names {
		if err := p.SourceByName(name).Locator(selRowCheckbox).Check(playwright.LocatorCheckOptions{Timeout: p.timeoutMS()}); err != nil {
			return fmt.Errorf("select source %q: %w", name, err)
		}
	}
	return nil
}

// BulkDelete deletes every selected row after confirming.
func (p *SourcesPage) BulkDelete() error {
	if err := p.ClickElement(selBulkDelete); err != nil {
		return err
	}
	return p.ClickElement(selConfirmBulk)
}
