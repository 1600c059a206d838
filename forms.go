package registration

import (
	"context"
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// ContextValidator is implemented by forms whose rules need the store
type ContextValidator interface {
	ValidateWithContext(ctx context.Context) error
}

// ValidateForm runs the context aware validation when the form supports it
func ValidateForm(ctx context.Context, form Form) error {
	if form == nil {
		return nil
	}
	if cv, ok := form.(ContextValidator); ok {
		return cv.ValidateWithContext(ctx)
	}
	return form.Validate()
}

// EmailChecker reports if an email already belongs to an account
type EmailChecker interface {
	EmailExists(ctx context.Context, email string) (bool, error)
}

// UsernameChecker reports if a username is taken
type UsernameChecker interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// BaseRegistrationForm requires a single valid email
type BaseRegistrationForm struct {
	Email string `form:"email" json:"email"`
}

var _ RegistrationForm = (*BaseRegistrationForm)(nil)

// GetEmail implements RegistrationForm
func (f *BaseRegistrationForm) GetEmail() string {
	return f.Email
}

// Validate will run validation rules
func (f *BaseRegistrationForm) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Email, validation.Required, validation.Length(3, 75), is.Email),
	)
}

// NewBaseRegistrationForm is a FormFactory for BaseRegistrationForm
func NewBaseRegistrationForm() RegistrationForm {
	return &BaseRegistrationForm{}
}

// UniqueEmailRegistrationForm rejects emails that already have an account
type UniqueEmailRegistrationForm struct {
	BaseRegistrationForm
	checker EmailChecker
}

var _ ContextValidator = (*UniqueEmailRegistrationForm)(nil)

// UniqueEmailRegistrationFormFactory builds forms checking against checker
func UniqueEmailRegistrationFormFactory(checker EmailChecker) FormFactory[RegistrationForm] {
	return func() RegistrationForm {
		return &UniqueEmailRegistrationForm{checker: checker}
	}
}

// ValidateWithContext implements ContextValidator
func (f *UniqueEmailRegistrationForm) ValidateWithContext(ctx context.Context) error {
	if err := f.Validate(); err != nil {
		return err
	}

	if f.checker == nil {
		return nil
	}

	exists, err := f.checker.EmailExists(ctx, f.Email)
	if err != nil {
		return err
	}

	if exists {
		return validation.Errors{
			"email": errors.New("this email address is already in use, please supply a different email address"),
		}
	}

	return nil
}

// BaseActivationForm asks for the password twice
type BaseActivationForm struct {
	Password1 string `form:"password1" json:"password1"`
	Password2 string `form:"password2" json:"password2"`
}

var _ ActivationForm = (*BaseActivationForm)(nil)

// Validate will run validation rules
func (f *BaseActivationForm) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Password1, validation.Required),
		validation.Field(
			&f.Password2,
			validation.Required,
			validation.By(ValidateStringEquals(f.Password1)),
		),
	)
}

// Values implements ActivationForm
func (f *BaseActivationForm) Values() map[string]any {
	return map[string]any{
		"password1": f.Password1,
	}
}

// NewBaseActivationForm is a FormFactory for BaseActivationForm
func NewBaseActivationForm() ActivationForm {
	return &BaseActivationForm{}
}

var usernameRe = regexp.MustCompile(`^[\w.@+-]+$`)

// AccountActivationForm picks the username and password of the new account
type AccountActivationForm struct {
	Username string `form:"username" json:"username"`
	BaseActivationForm
	checker UsernameChecker
}

var (
	_ ActivationForm   = (*AccountActivationForm)(nil)
	_ ContextValidator = (*AccountActivationForm)(nil)
)

// AccountActivationFormFactory builds forms checking usernames against checker
func AccountActivationFormFactory(checker UsernameChecker) FormFactory[ActivationForm] {
	return func() ActivationForm {
		return &AccountActivationForm{checker: checker}
	}
}

// Validate will run validation rules
func (f *AccountActivationForm) Validate() error {
	errs := validation.Errors{}

	if err := validation.Validate(f.Username,
		validation.Required,
		validation.Length(1, 30),
		validation.Match(usernameRe).Error("may contain only letters, numbers and @/./+/-/_ characters"),
	); err != nil {
		errs["username"] = err
	}

	if err := f.BaseActivationForm.Validate(); err != nil {
		var fieldErrs validation.Errors
		if errors.As(err, &fieldErrs) {
			for k, v := range fieldErrs {
				errs[k] = v
			}
		} else {
			return err
		}
	}

	return errs.Filter()
}

// ValidateWithContext implements ContextValidator
func (f *AccountActivationForm) ValidateWithContext(ctx context.Context) error {
	if err := f.Validate(); err != nil {
		return err
	}

	if f.checker == nil {
		return nil
	}

	taken, err := f.checker.UsernameExists(ctx, f.Username)
	if err != nil {
		return err
	}

	if taken {
		return validation.Errors{
			"username": errors.New("a user with that username already exists"),
		}
	}

	return nil
}

// Values implements ActivationForm
func (f *AccountActivationForm) Values() map[string]any {
	return map[string]any{
		"username":  f.Username,
		"password1": f.Password1,
	}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("the two password fields didn't match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens validation errors into field messages.
// Errors that are not field errors end up under "form".
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		for field, ferr := range fieldErrs {
			if ferr == nil {
				continue
			}
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
