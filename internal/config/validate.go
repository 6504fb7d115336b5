package config

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rileyhilliard/instsync/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML path (push.url), not the Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the config and returns a structured error naming the first
// offending key.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but instsync only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade instsync, or lower the version in .instsync.yaml.")
	}

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return errors.WrapWithCode(err, errors.ErrConfig, "Invalid config", "Check your .instsync.yaml.")
	}

	return validatePushURL(cfg.Push)
}

// fieldError turns a validator failure into the friendly form.
func fieldError(fe validator.FieldError) error {
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	section := strings.SplitN(key, ".", 2)[0]
	suggestion := fmt.Sprintf("Check the '%s' section in your .instsync.yaml.", section)

	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("'%s' is required", key)
	case "oneof":
		msg = fmt.Sprintf("'%s' must be one of: %s (got %q)", key, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "url", "http_url":
		msg = fmt.Sprintf("'%s' is not a valid URL: %v", key, fe.Value())
	case "startswith":
		msg = fmt.Sprintf("'%s' must start with %q", key, fe.Param())
	case "gt":
		msg = fmt.Sprintf("'%s' must be greater than %s, got %v", key, fe.Param(), fe.Value())
	case "gte":
		msg = fmt.Sprintf("'%s' can't be negative, got %v", key, fe.Value())
	case "lte":
		msg = fmt.Sprintf("'%s' must be at most %s, got %v", key, fe.Param(), fe.Value())
	default:
		msg = fmt.Sprintf("'%s' failed %s validation", key, fe.Tag())
	}
	return errors.New(errors.ErrConfig, msg, suggestion)
}

// validatePushURL checks that the URL scheme matches the transport.
func validatePushURL(p PushConfig) error {
	u, err := url.Parse(p.URL)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'push.url' is not a valid URL: %s", p.URL),
			"Check the 'push' section in your .instsync.yaml.")
	}

	var allowed []string
	switch p.Transport {
	case TransportWebSocket:
		allowed = []string{"ws", "wss"}
	case TransportNATS:
		allowed = []string{"nats", "tls"}
	}
	for _, s := range allowed {
		if u.Scheme == s {
			return nil
		}
	}
	return errors.New(errors.ErrConfig,
		fmt.Sprintf("'push.url' scheme %q doesn't match transport %q", u.Scheme, p.Transport),
		fmt.Sprintf("Use a %s:// URL, or change push.transport.", strings.Join(allowed, ":// or ")))
}
