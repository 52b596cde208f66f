// Package admin holds the store-side operations on identities: creating,
// revoking, restoring and deleting users, and registering native programs.
// It has no HTTP surface; cmd/syphaxctl drives it.
package admin

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/syphax/syphax/internal/plugins/auth"
)

// CreateUserInput is the data needed to create a user.
type CreateUserInput struct {
	Name     string
	Email    string
	Mobile   string
	Image    string
	Password string
}

// Validate implements validation.Validatable. Mobile format is checked
// separately since it depends on the default region.
func (in CreateUserInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&in.Image, validation.Length(0, 255)),
	)
}

// RegisterProgramInput is the data needed to register a native program.
type RegisterProgramInput struct {
	OwnerEmail string
	Name       string
}

// Validate implements validation.Validatable.
func (in RegisterProgramInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.OwnerEmail, validation.Required, is.Email),
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
	)
}

// ProgramCredentials is returned once, at registration. The secret is not
// stored anywhere in clear and cannot be recovered later.
type ProgramCredentials struct {
	Program auth.Program
	Key     string
	Secret  string
}
