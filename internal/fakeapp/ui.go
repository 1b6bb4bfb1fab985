package fakeapp

import (
	"embed"
	"net/http"
	"net/url"
	"strings"
)

//go:embed ui
var uiFiles embed.FS

const sessionCookie = "session"

var uiPages = map[string]string{
	"/login":                          "ui/login.html",
	"/dashboard":                      "ui/dashboard.html",
	"/sources":                        "ui/sources.html",
	"/Teacher/v2/en/students":         "ui/student_list.html",
	"/Teacher/v2/en/students/add":     "ui/student_form.html",
	"/Teacher/v2/en/students/details": "ui/student_details.html",
}

// registerUI mounts the browser screens. They talk to the same API as the tests, so
// browser tests can run against the fake as well.
func (s *Server) registerUI(mux *http.ServeMux) {
	for path, file := range uiPages {
		mux.HandleFunc("GET "+path, s.servePage(file))
	}
	mux.Handle("GET /ui/", http.FileServerFS(uiFiles))
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("POST /logout", s.logout)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})
}

func (s *Server) servePage(file string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := uiFiles.ReadFile(file)
		if err != nil {
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
	}
}

// login accepts any non-empty email and password and remembers the email in a cookie.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error="+url.QueryEscape("Invalid form"), http.StatusSeeOther)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	if email == "" || password == "" {
		http.Redirect(w, r, "/login?error="+url.QueryEscape("Email and password are required"), http.StatusSeeOther)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    url.QueryEscape(email),
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
