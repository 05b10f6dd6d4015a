package recommend

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// decodeSettings decodes free-form source settings into out, applies
// defaults and validates the result.
func decodeSettings(settings map[string]any, out any) error {
	if settings != nil {
		if err := mapstructure.Decode(settings, out); err != nil {
			return errors.Wrap(err, "failed to decode settings")
		}
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
