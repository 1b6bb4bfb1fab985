package testdata

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/go-playground/validator/v10"
	"github.com/kuitang/knowledge-e2e/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStudent checks field formats and that Parent is set only for children.
func ValidateStudent(s model.Student) error {
	return validate.Struct(s)
}

// StudentFactory generates randomized students. It is safe for concurrent use.
type StudentFactory struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
}

// NewStudentFactory returns a factory. A zero seed draws from a random source;
// any other seed makes the sequence reproducible.
func NewStudentFactory(seed uint64) *StudentFactory {
	return &StudentFactory{faker: gofakeit.New(seed)}
}

// GenerateAdultStudent returns an adult with no parent.
func (f *StudentFactory) GenerateAdultStudent() model.Student {
	f.mu.Lock()
	defer f.mu.Unlock()

	first, last := f.namePart(f.faker.FirstName()), f.namePart(f.faker.LastName())
	return model.Student{
		FullName: first + " " + last,
		Email:    f.emailFor(first, last),
		Phone:    f.phone(),
		Type:     model.StudentAdult,
	}
}

// GenerateChildStudent returns a child with a generated parent name.
func (f *StudentFactory) GenerateChildStudent() model.Student {
	f.mu.Lock()
	defer f.mu.Unlock()

	first, last := f.namePart(f.faker.FirstName()), f.namePart(f.faker.LastName())
	parent := f.namePart(f.faker.FirstName()) + " " + f.namePart(f.faker.LastName())
	return model.Student{
		FullName: first + " " + last,
		Email:    f.emailFor(first, last),
		Phone:    f.phone(),
		Type:     model.StudentChild,
		Parent:   parent,
	}
}

// namePart strips spaces so a full name always splits back into exactly two parts.
func (f *StudentFactory) namePart(s string) string {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return "Alex"
	}
	return s
}

func (f *StudentFactory) emailFor(first, last string) string {
	return fmt.Sprintf("%s.%s%d@example.com", emailLocal(first), emailLocal(last), f.faker.Number(1, 9999))
}

func emailLocal(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "student"
	}
	return b.String()
}

// phone formats ten digits in the US national style, e.g. (555) 123-4567.
func (f *StudentFactory) phone() string {
	digits := f.faker.Numerify("##########")
	return fmt.Sprintf("(%s) %s-%s", digits[0:3], digits[3:6], digits[6:10])
}
