package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate checks the tagged service inputs. The "username" and "invitekey"
// tags restrict the character set; lengths come from min/max.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	for tag, fn := range map[string]validator.Func{
		"username":  charset(isUsernameRune),
		"invitekey": charset(isInviteKeyRune),
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}
	return v
}

func charset(allowed func(rune) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.IndexFunc(s, func(r rune) bool { return !allowed(r) }) < 0
	}
}

func isUsernameRune(r rune) bool {
	return r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func isInviteKeyRune(r rune) bool {
	return r == '_' || r == '-' || ('0' <= r && r <= '9') || ('A' <= r && r <= 'Z')
}

// fieldErrors runs the validator and returns the failures keyed by struct
// field name. Only the first failing tag of each field is reported.
func fieldErrors(v any) (map[string]validator.FieldError, error) {
	err := validate.Struct(v)
	if err == nil {
		return nil, nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return nil, err
	}
	out := make(map[string]validator.FieldError, len(ves))
	for _, fe := range ves {
		out[fe.StructField()] = fe
	}
	return out, nil
}
