package config

import (
	"errors"

	"github.com/kiosk404/spark/internal/sparkd/options"
)

// Config is the running configuration structure of the sparkd daemon.
type Config struct {
	*options.Options
}

// CreateConfigFromOptions completes and validates opts, returning the
// running Config or the combined validation errors.
func CreateConfigFromOptions(opts *options.Options) (*Config, error) {
	if err := opts.Complete(); err != nil {
		return nil, err
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Config{opts}, nil
}
