package authguard

import "context"

// ProviderIdentity is what an OAuth provider vouches for after a code
// exchange.
type ProviderIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// OAuthProvider abstracts an external identity provider. The HTTP exchange
// lives in the implementation; the Manager only consumes the identity.
type OAuthProvider interface {
	Name() string
	Exchange(ctx context.Context, code string) (*ProviderIdentity, error)
}
