// Package directory implements the LDAP authentication client: service
// bind, user search, credential bind, group lookup, role mapping, and
// reconciliation of the local user record.
package directory

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Conn is the subset of the LDAP connection the authenticator uses.
// Abstracted so tests can script the protocol sequence without a server.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SetTimeout(timeout time.Duration)
	Close() error
}

// DialFunc opens a directory connection. The context bounds the dial; the
// returned connection must already enforce the connect timeout.
type DialFunc func(ctx context.Context, url string, connectTimeout time.Duration) (Conn, error)

// Dial is the production DialFunc backed by go-ldap.
func Dial(ctx context.Context, url string, connectTimeout time.Duration) (Conn, error) {
	dialer := &net.Dialer{Timeout: connectTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	conn, err := ldap.DialURL(url, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, fmt.Errorf("dialing directory %s: %w", url, err)
	}
	return conn, nil
}
