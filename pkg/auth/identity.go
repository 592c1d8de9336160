// Package auth verifies request credentials and resolves them to a
// tenant identity. Two modes are supported: API keys issued by the
// credentials service, and OIDC bearer tokens from the identity
// provider that fronts the management console.
package auth

import (
	"github.com/vberkoz/kvgate/pkg/credentials"
	"github.com/vberkoz/kvgate/pkg/plans"
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	TenantID     string
	Email        string
	Plan         plans.Tier
	CredentialID string
	// Permissions is the grant set of the presenting API key. Empty
	// means unrestricted, including bearer-token identities.
	Permissions []credentials.Permission
}

// Allows reports whether the identity may perform the given operation.
func (id *Identity) Allows(p credentials.Permission) bool {
	if len(id.Permissions) == 0 {
		return true
	}
	for _, granted := range id.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}
