// Package targets holds the list of game servers to poll: parsing, the YAML
// targets file, a deduplicated set and a file watcher for hot reload.
package targets

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalidTarget is wrapped by every parse and validation error.
var ErrInvalidTarget = errors.New("invalid target")

// Target is one game server query endpoint.
type Target struct {
	Name string `yaml:"name" json:"name"`
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Address returns host:port, bracketing IPv6 literals.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Key identifies the endpoint regardless of the display name and host case.
func (t Target) Key() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.ToLower(t.Address())))
}

func (t Target) String() string {
	if t.Name == "" || t.Name == t.Address() {
		return t.Address()
	}

	return t.Name + " (" + t.Address() + ")"
}

// Validate checks the host and the port and fills a missing name with the address.
func (t *Target) Validate() error {
	t.Host = strings.TrimSpace(t.Host)
	t.Name = strings.TrimSpace(t.Name)

	if t.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidTarget)
	}
	if strings.ContainsAny(t.Host, " /[]") {
		return fmt.Errorf("%w: bad host %q", ErrInvalidTarget, t.Host)
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidTarget, t.Port)
	}
	if t.Name == "" {
		t.Name = t.Address()
	}

	return nil
}

// Parse reads "host:port" or "name=host:port". IPv6 hosts go in brackets, e.g. "[::1]:27015".
func Parse(s string) (Target, error) {
	var t Target

	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "="); i >= 0 {
		t.Name, s = s[:i], s[i+1:]
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q: %v", ErrInvalidTarget, s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Target{}, fmt.Errorf("%w: port %q is not a number", ErrInvalidTarget, portStr)
	}

	t.Host, t.Port = host, port
	if err := t.Validate(); err != nil {
		return Target{}, err
	}

	return t, nil
}

// ParseList parses every entry, skipping blanks.
func ParseList(list []string) ([]Target, error) {
	out := make([]Target, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}

		t, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	return out, nil
}
