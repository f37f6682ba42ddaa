package auth

import (
	"krysselista/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type viewerIdentity struct {
	ID    string `validate:"required"`
	Email string `validate:"omitempty,email"`
	Role  string `validate:"required,oneof=staff guardian"`
}

func validateViewer(v domain.Viewer) error {
	return validate.Struct(viewerIdentity{ID: v.ID, Email: v.Email, Role: string(v.Role)})
}
