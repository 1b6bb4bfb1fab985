package e2e

import (
	"strings"
	"testing"

	"github.com/kuitang/knowledge-e2e/internal/model"
	"github.com/kuitang/knowledge-e2e/internal/pages"
	"github.com/kuitang/knowledge-e2e/internal/testdata"
)

var students = testdata.NewStudentFactory(0)

func TestStudentOnboarding(t *testing.T) {
	tests := []struct {
		name    string
		student func() model.Student
	}{
		{"adult", students.GenerateAdultStudent},
		{"child with parent", students.GenerateChildStudent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			student := tt.student()
			if err := testdata.ValidateStudent(student); err != nil {
				t.Fatalf("generated student is invalid: %v", err)
			}

			b := newBase(t)
			login(t, b)

			form := pages.NewStudentFormPage(b)
			if err := form.Goto(); err != nil {
				t.Fatal(err)
			}
			if err := form.AddStudent(student); err != nil {
				t.Fatal(err)
			}
			msg, err := form.SuccessMessage()
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(msg, "Student added successfully") {
				t.Fatalf("success message = %q", msg)
			}

			list := pages.NewStudentListPage(b)
			if err := list.NavigateToList(); err != nil {
				t.Fatal(err)
			}
			if err := list.SearchStudent(student.FullName); err != nil {
				t.Fatal(err)
			}
			if err := list.WaitForStudent(student.FullName); err != nil {
				t.Fatal(err)
			}

			if err := list.OpenStudentDetails(student.FullName); err != nil {
				t.Fatal(err)
			}
			got, err := pages.NewStudentDetailsPage(b).Details()
			if err != nil {
				t.Fatal(err)
			}
			if got.Name != student.FullName || got.Email != student.Email || got.Type != student.Type {
				t.Fatalf("details = %+v, want %+v", got, student)
			}
			switch student.Type {
			case model.StudentAdult:
				if got.Phone != student.Phone {
					t.Fatalf("phone = %q, want %q", got.Phone, student.Phone)
				}
			case model.StudentChild:
				if got.Parent != student.Parent {
					t.Fatalf("parent = %q, want %q", got.Parent, student.Parent)
				}
			}

			if err := list.NavigateToList(); err != nil {
				t.Fatal(err)
			}
			if err := list.DeleteStudent(student.FullName); err != nil {
				t.Fatal(err)
			}
			present, err := list.IsStudentPresent(student.FullName)
			if err != nil {
				t.Fatal(err)
			}
			if present {
				t.Fatalf("%q still listed after delete", student.FullName)
			}
		})
	}
}

func TestStudentOnboarding_DashboardGreetsUser(t *testing.T) {
	b := newBase(t)
	login(t, b)

	welcome, err := pages.NewDashboardPage(b).WelcomeMessage()
	if err != nil {
		t.Fatal(err)
	}
	if welcome == "" {
		t.Fatal("empty welcome message")
	}
}
