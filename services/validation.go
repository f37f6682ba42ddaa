package services

import (
	"fmt"
	"krysselista/domain"
	"krysselista/errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateBody trims the body and checks it against maxLength runes, 0 meaning unbounded.
func validateBody(body string, maxLength int) (string, error) {
	body = strings.TrimSpace(body)
	tag := "required"
	if maxLength > 0 {
		tag = fmt.Sprintf("required,max=%d", maxLength)
	}
	err := validate.Var(body, tag)
	if err == nil {
		return body, nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && fieldErrs[0].Tag() == "max" {
		return "", errors.ErrBodyTooLong
	}
	return "", errors.ErrEmptyBody
}

func validateTransition(cmd domain.TransitionCommand) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if fe.Field() == "SubjectID" {
				return errors.ErrUnknownSubject
			}
		}
	}
	return errors.ErrInvalidAction
}
