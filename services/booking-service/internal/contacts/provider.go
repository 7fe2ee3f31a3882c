package contacts

import "context"

// Provider links a booking customer to the platform's contact directory by
// email. A failed or impossible link never blocks a booking; callers treat
// the returned contact id as optional enrichment.
type Provider interface {
	LinkContact(ctx context.Context, email string) (string, error)
}

type disabledProvider struct{}

// NewStaticDisabled returns a provider that links nothing, for builds and
// deployments without a contact directory.
func NewStaticDisabled() Provider {
	return disabledProvider{}
}

func (disabledProvider) LinkContact(context.Context, string) (string, error) {
	return "", nil
}
