package rtb

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotInitialized is wrapped by every ConfigError.
	ErrNotInitialized = errors.New("rtb: client must be initialized before use")
	ErrNilListener    = errors.New("rtb: listener is nil")
)

var validate = validator.New()

// ConfigError reports a missing credential. It is returned synchronously because it
// indicates a setup mistake, not a runtime condition.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s is empty", ErrNotInitialized, e.Field)
}

func (e *ConfigError) Unwrap() error { return ErrNotInitialized }

// Validate returns a *ConfigError naming the first empty field.
func (c Credentials) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ConfigError{Field: verrs[0].Field()}
	}
	return fmt.Errorf("validate credentials: %w", err)
}

// Validate reports the slot fields that make it unusable.
func (s Slot) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	return nil
}
