package router

import "fmt"

// SerializationError reports content or meta that cannot be encoded for
// the store, or a stored payload that cannot be decoded.
type SerializationError struct {
	Field string
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", e.Field, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// DispatchError reports a failed handler invocation.
type DispatchError struct {
	Channel string
	Handler string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("handler %s for channel %q: %v", e.Handler, e.Channel, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports an unusable channel registration.
type ConfigurationError struct {
	Channel string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid channel registration %q: %s", e.Channel, e.Reason)
}
