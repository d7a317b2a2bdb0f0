package settings

import (
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
)

// NotificationConfig is the per-merchant notification settings document.
type NotificationConfig struct {
	ConfigID    string    `dynamodbav:"config_id" json:"config_id"` // PK
	Enabled     bool      `dynamodbav:"enabled" json:"enabled"`
	Destination string    `dynamodbav:"destination,omitempty" json:"destination,omitempty"`
	UpdatedAt   time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

var destinationValidator = validatorv10.New()

// ValidDestination reports whether addr passes the address-shape check.
func ValidDestination(addr string) bool {
	return destinationValidator.Var(strings.TrimSpace(addr), "required,email") == nil
}

// Available reports whether notifications can be sent with this config.
// Disabled, empty and malformed destinations all count as unavailable.
func (c NotificationConfig) Available() bool {
	return c.Enabled && ValidDestination(c.Destination)
}

// Address returns the trimmed destination.
func (c NotificationConfig) Address() string {
	return strings.TrimSpace(c.Destination)
}

// Equal compares the fields that matter to dispatch.
func (c NotificationConfig) Equal(o NotificationConfig) bool {
	return c.Enabled == o.Enabled && c.Address() == o.Address()
}
