//go:build !protogen

package contacts

// NewProvider without generated protos always returns the disabled provider;
// bookings are simply created unlinked.
func NewProvider(_ string) (Provider, error) {
	return NewStaticDisabled(), nil
}
