package config

import (
	stderrors "errors"

	"github.com/go-playground/validator/v10"

	"github.com/logflow/pmcore/pkg/errors"
)

// validate caches struct metadata; validator.Validate is safe for concurrent use.
var validate = validator.New()

// Validate checks the `validate` struct tags of v and converts the first
// violation into a CodeInvalidParameter error.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errors.InvalidParameter(fe.Namespace(), fe.Value(), "violates "+fe.Tag()+" "+fe.Param())
	}
	return errors.Wrap(err, errors.CodeInvalidParameter, "invalid parameters")
}
