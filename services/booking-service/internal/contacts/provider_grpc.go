//go:build protogen

package contacts

import (
	"context"
	"time"

	"github.com/breederbook/scheduling/libs/grpcx"
	contactsv1 "github.com/breederbook/scheduling/protos/gen/contacts/v1"
)

type grpcProvider struct {
	client contactsv1.ContactDirectoryClient
}

func NewProvider(addr string) (Provider, error) {
	if addr == "" {
		return NewStaticDisabled(), nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: contactsv1.NewContactDirectoryClient(conn)}, nil
}

func (p *grpcProvider) LinkContact(ctx context.Context, email string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := p.client.LinkContact(ctx, &contactsv1.LinkContactRequest{Email: email})
	if err != nil {
		return "", err
	}
	return resp.GetContactId(), nil
}
