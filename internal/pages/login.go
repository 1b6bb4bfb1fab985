package pages

import "fmt"

const (
	LoginPath = "/login"

	selLoginEmail    = "#email"
	selLoginPassword = "#password"
	selLoginButton   = "#login-button"
	selLoginError    = ".error-message"
)

// LoginPage drives the sign-in form.
type LoginPage struct {
	*Base
}

func NewLoginPage(base *Base) *LoginPage {
	return &LoginPage{Base: base}
}

// Goto opens the login form.
func (p *LoginPage) Goto() error {
	return p.Navigate(LoginPath)
}

// Login submits the form with the given credentials.
func (p *LoginPage) Login(email, password string) error {
	if email == "" {
		return fmt.Errorf("login: empty email")
	}
	if err := p.FillInput(selLoginEmail, email); err != nil {
		return err
	}
	if err := p.FillInput(selLoginPassword, password); err != nil {
		return err
	}
	return p.ClickElement(selLoginButton)
}

// LoginError waits for the login error text.
func (p *LoginPage) LoginError() (string, error) {
	return p.GetElementText(selLoginError)
}

func (p *LoginPage) IsLoginButtonVisible() (bool, error) {
	return p.IsElementVisible(selLoginButton)
}
