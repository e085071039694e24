// Package storage holds what the secret store implementations share.
package storage

import (
	"regexp"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
)

var secretName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// ValidateSecret checks the identity and name of a secret before it is
// written. Names must be identifier-like.
func ValidateSecret(identity, name string) error {
	if identity == "" {
		return domain.ErrInvalidRequest("identity is required").WithParam("identity")
	}
	if !secretName.MatchString(name) {
		return domain.ErrInvalidRequest("invalid secret name: " + name).WithParam("name")
	}
	return nil
}
