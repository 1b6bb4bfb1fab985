package pages

import (
	"fmt"

	"github.com/kuitang/knowledge-e2e/internal/model"
	"github.com/playwright-community/playwright-go"
)

const (
	StudentListPath = "/Teacher/v2/en/students"
	StudentAddPath  = "/Teacher/v2/en/students/add"

	// DefaultStudentPhone is entered when an adult is added without a phone number.
	DefaultStudentPhone = "1234567890"

	selFirstName     = "#FirstName"
	selLastName      = "#LastName"
	selEmail         = "#Email"
	selPhone         = "#Phone"
	selStudentType   = "#StudentType"
	selParentName    = "#ParentName"
	selSave          = `button:has-text("Save")`
	selSuccessAlert  = ".alert-success"
	selDangerAlert   = ".alert-danger"
	selStudentSearch = "#studentSearch"
	selStudentRow    = ".student-row"
	selDeleteStudent = `[data-testid="delete-student"], .delete-student, button:has-text("Delete")`

	selDetailName   = "#studentName"
	selDetailEmail  = "#studentEmail"
	selDetailPhone  = "#studentPhone"
	selDetailType   = "#studentType"
	selDetailParent = "#parentName"
)

// StudentFormPage drives the add student form.
type StudentFormPage struct {
	*Base
}

func NewStudentFormPage(base *Base) *StudentFormPage {
	return &StudentFormPage{Base: base}
}

// Goto opens the add student form.
func (p *StudentFormPage) Goto() error {
	return p.Navigate(StudentAddPath)
}

func (p *StudentFormPage) fillPerson(fullName, email string) error {
	first, last := model.SplitFullName(fullName)
	for _, field := range []struct{ selector, value string }{
		{selFirstName, first},
		{selLastName, last},
		{selEmail, email},
	} {
		if err := p.FillInput(field.selector, field.value); err != nil {
			return err
		}
	}
	return nil
}

// AddAdultStudent fills and saves the form for an adult. An empty phone uses DefaultStudentPhone.
func (p *StudentFormPage) AddAdultStudent(fullName, email, phone string) error {
	if phone == "" {
		phone = DefaultStudentPhone
	}
	if err := p.fillPerson(fullName, email); err != nil {
		return err
	}
	if err := p.FillInput(selPhone, phone); err != nil {
		return err
	}
	if err := p.SelectOption(selStudentType, string(model.StudentAdult)); err != nil {
		return err
	}
	return p.save()
}

// AddChildStudent fills and saves the form for a child with a parent.
func (p *StudentFormPage) AddChildStudent(fullName, email, parent string) error {
	if parent == "" {
		return fmt.Errorf("add child student %q: parent is required", fullName)
	}
	if err := p.fillPerson(fullName, email); err != nil {
		return err
	}
	if err := p.SelectOption(selStudentType, string(model.StudentChild)); err != nil {
		return err
	}
	if err := p.FillInput(selParentName, parent); err != nil {
		return err
	}
	return p.save()
}

// save clicks Save and waits until the form shows its success or error alert.
// A visible error alert is returned as an error.
func (p *StudentFormPage) save() error {
	if err := p.ClickElement(selSave); err != nil {
		return err
	}
	outcome := p.Page.Locator(selSuccessAlert + ":visible, " + selDangerAlert + ":visible").First()
	if err := p.waitFor(outcome, "student save result", playwright.WaitForSelectorStateVisible); err != nil {
		return err
	}
	failed, err := p.IsVisible(selDangerAlert)
	if err != nil || !failed {
		return err
	}
	text, err := p.GetElementText(selDangerAlert)
	if err != nil {
		return err
	}
	return fmt.Errorf("save student: %s", text)
}

// AddStudent dispatches on the student's type.
func (p *StudentFormPage) AddStudent(s model.Student) error {
	if s.Type == model.StudentChild {
		return p.AddChildStudent(s.FullName, s.Email, s.Parent)
	}
	return p.AddAdultStudent(s.FullName, s.Email, s.Phone)
}

// SuccessMessage waits for the success alert and returns its text.
func (p *StudentFormPage) SuccessMessage() (string, error) {
	return p.GetElementText(selSuccessAlert)
}

// StudentListPage drives the student list.
type StudentListPage struct {
	*Base
}

func NewStudentListPage(base *Base) *StudentListPage {
	return &StudentListPage{Base: base}
}

// NavigateToList opens the student list.
func (p *StudentListPage) NavigateToList() error {
	return p.Navigate(StudentListPath)
}

// SearchStudent searches by name or email.
func (p *StudentListPage) SearchStudent(query string) error {
	if err := p.FillInput(selStudentSearch, query); err != nil {
		return err
	}
	if err := p.Page.Keyboard().Press("Enter"); err != nil {
		return fmt.Errorf("submit student search: %w", err)
	}
	return nil
}

func (p *StudentListPage) row(name string) playwright.Locator {
	return p.Page.Locator(selStudentRow).Filter(playwright.LocatorFilterOptions{HasText: name}).First()
}

// IsStudentPresent reports whether a row containing name is visible now.
func (p *StudentListPage) IsStudentPresent(name string) (bool, error) {
	return p.row(name).IsVisible()
}

// WaitForStudent waits for a row containing name to appear.
func (p *StudentListPage) WaitForStudent(name string) error {
	return p.waitFor(p.row(name), "student "+name, playwright.WaitForSelectorStateVisible)
}

// OpenStudentDetails clicks the student's row.
func (p *StudentListPage) OpenStudentDetails(name string) error {
	if err := p.row(name).Click(playwright.LocatorClickOptions{Timeout: p.timeoutMS()}); err != nil {
		return fmt.Errorf("open student %q: %w", name, err)
	}
	return nil
}

// DeleteStudent deletes the student's row, confirming when asked, and waits for the row to go away.
func (p *StudentListPage) DeleteStudent(name string) error {
	row := p.row(name)
	if err := row.Locator(selDeleteStudent).First().Click(playwright.LocatorClickOptions{Timeout: p.timeoutMS()}); err != nil {
		return fmt.Errorf("delete student %q: %w", name, err)
	}
	confirm := p.Page.Locator(selConfirmDelete)
	if err := confirm.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(1000),
	}); err == nil {
		if err := confirm.Click(); err != nil {
			return fmt.Errorf("confirm delete of %q: %w", name, err)
		}
	}
	return p.waitFor(row, "student "+name, playwright.WaitForSelectorStateHidden)
}

// StudentDetails is what the details screen shows.
type StudentDetails struct {
	Name   string
	Email  string
	Phone  string
	Type   model.StudentType
	Parent string
}

// StudentDetailsPage reads the student details screen.
type StudentDetailsPage struct {
	*Base
}

func NewStudentDetailsPage(base *Base) *StudentDetailsPage {
	return &StudentDetailsPage{Base: base}
}

// Details reads every field. Parent is only read for children.
func (p *StudentDetailsPage) Details() (StudentDetails, error) {
	var d StudentDetails
	var typ string
	for _, field := range []struct {
		selector string
		dst      *string
	}{
		{selDetailName, &d.Name},
		{selDetailEmail, &d.Email},
		{selDetailPhone, &d.Phone},
		{selDetailType, &typ},
	} {
		text, err := p.GetElementText(field.selector)
		if err != nil {
			return StudentDetails{}, err
		}
		*field.dst = text
	}
	d.Type = model.StudentType(typ)

	if d.Type == model.StudentChild {
		parent, err := p.GetElementText(selDetailParent)
		if err != nil {
			return StudentDetails{}, err
		}
		d.Parent = parent
	}
	return d, nil
}
