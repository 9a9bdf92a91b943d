package types

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios.
// Identifiers come from token subjects, so emails and dotted ids pass;
// whitespace and control characters never do.
var idRegex = regexp.MustCompile(`^[[:graph:]]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// entityid covers user, student and class identifiers alike
	if err := v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
		return IsValidID(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register entityid validation: %v", err))
	}
	return v
}

// Struct validates any struct carrying `validate` tags with the shared
// validator, including the entityid rule.
func Struct(v interface{}) error {
	return validate.Struct(v)
}

// Validate checks a MARK payload. The returned error wraps ErrInvalidPayload.
func (p *MarkPayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Validate ensures the class meets creation requirements.
func (c *Class) Validate() error {
	if len(c.Name) < 2 || len(c.Name) > 100 {
		return ErrInvalidClassName
	}
	if !IsValidID(c.TeacherID) {
		return ErrInvalidID
	}
	for _, id := range c.StudentIDs {
		if !IsValidID(id) {
			return ErrInvalidID
		}
	}
	return nil
}

// IsValidID checks if an identifier meets format requirements.
// FUNCTIONAL DISCOVERY: 64 characters fits both UUIDs and 24-char object ids
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidRole reports whether the role is one the protocol understands.
func IsValidRole(role Role) bool {
	return role == RoleTeacher || role == RoleStudent
}

// IsValidStatus reports whether the status may be stored as a mark.
func IsValidStatus(status Status) bool {
	return status == StatusPresent || status == StatusAbsent
}
