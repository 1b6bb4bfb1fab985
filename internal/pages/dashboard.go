package pages

const (
	DashboardPath = "/dashboard"

	selWelcome  = "h1"
	selLogout   = "#logout-button"
	selUserMenu = "#user-menu"
)

// DashboardPage is the landing screen after login.
type DashboardPage struct {
	*Base
}

func NewDashboardPage(base *Base) *DashboardPage {
	return &DashboardPage{Base: base}
}

// WelcomeMessage returns the heading text.
func (p *DashboardPage) WelcomeMessage() (string, error) {
	return p.GetElementText(selWelcome)
}

// WaitUntilVisible waits for the dashboard heading. Use it right after login,
// where IsDashboardVisible would race the redirect.
func (p *DashboardPage) WaitUntilVisible() error {
	return p.WaitForElement(selWelcome)
}

func (p *DashboardPage) IsDashboardVisible() (bool, error) {
	return p.IsElementVisible(selWelcome)
}

// Logout signs out, opening the user menu first when the build has one.
func (p *DashboardPage) Logout() error {
	open, err := p.IsElementVisible(selUserMenu)
	if err != nil {
		return err
	}
	if open {
		if err := p.ClickElement(selUserMenu); err != nil {
			return err
		}
	}
	return p.ClickElement(selLogout)
}
