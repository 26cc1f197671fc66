// Package hostinfo collects the identity of the machine a recording was made on.
package hostinfo

import (
	"errors"
	"fmt"
	"os"
	"os/user"
)

// Info is the host identity written to the metadata trailer.
type Info struct {
	User    string
	System  string
	Node    string
	Release string
	Version string
	Machine string
}

// Provider returns the current host identity.
type Provider interface {
	Collect() (Info, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() (Info, error)

func (f ProviderFunc) Collect() (Info, error) { return f() }

// Local reads the identity of the running host.
type Local struct{}

// Collect returns the logged-in user and the kernel identification.
func (Local) Collect() (Info, error) {
	name, err := username()
	if err != nil {
		return Info{}, err
	}

	info, err := uname()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read system identity: %w", err)
	}
	info.User = name
	return info, nil
}

func username() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return "", errors.New("could not determine current user")
}
