package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// Validate checks the login payload locally.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, validation.Length(3, 100), is.Email),
		validation.Field(&c.Password, validation.Required),
	)
}

// Validate checks the sign up payload locally. A confirmation mismatch is
// reported as ErrPasswordMismatch so callers can match on it. Phone numbers
// without a country prefix are read in the default region.
func (r RegisterPayload) Validate() error {
	return r.validate(DefaultOptions().PhoneRegion)
}

func (r RegisterPayload) validate(region string) error {
	if r.Password != r.ConfirmPassword {
		return ErrPasswordMismatch
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber(region))),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// ValidateStringEquals returns a rule that matches a fixed string.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values do not match")
		}
		return nil
	}
}

// ValidatePhoneNumber returns a rule accepting numbers that are valid in
// region or carry an international prefix. Empty values pass.
func ValidatePhoneNumber(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, region)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

func invalidPayload(err error) error {
	if err == nil {
		return nil
	}
	if richErr, ok := asRich(err); ok {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid payload").
		WithTextCode(TextCodeInvalidPayload).
		WithCode(goerrors.CodeBadRequest)
}

func validateEmail(email string) error {
	return validation.Validate(email, validation.Required, validation.Length(3, 100), is.Email)
}

func validateReset(token, password string) error {
	return validation.Errors{
		"token":    validation.Validate(token, validation.Required),
		"password": validation.Validate(password, validation.Required, validation.Length(6, 100)),
	}.Filter()
}
