package graph

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrCredentialRef marks an unusable credential reference.
var ErrCredentialRef = errors.New("invalid credential reference")

// resolveCredentialRef loads a bearer credential from a reference string.
//
// Supported forms:
//   - env:NAME
//   - file:/path/to/token
//   - raw:literal-value (tests/dev only)
func resolveCredentialRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", fmt.Errorf("%w: empty", ErrCredentialRef)
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimSpace(strings.TrimPrefix(ref, "env:"))
		if name == "" {
			return "", fmt.Errorf("%w: env var name is empty", ErrCredentialRef)
		}
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return "", fmt.Errorf("%w: env var %s is empty or unset", ErrCredentialRef, name)
		}
		return v, nil
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimSpace(strings.TrimPrefix(ref, "file:"))
		if path == "" {
			return "", fmt.Errorf("%w: file path is empty", ErrCredentialRef)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCredentialRef, err)
		}
		v := strings.TrimSpace(string(b))
		if v == "" {
			return "", fmt.Errorf("%w: file %s is empty", ErrCredentialRef, path)
		}
		return v, nil
	case strings.HasPrefix(ref, "raw:"):
		v := strings.TrimPrefix(ref, "raw:")
		if v == "" {
			return "", fmt.Errorf("%w: raw value is empty", ErrCredentialRef)
		}
		return v, nil
	default:
		return "", fmt.Errorf("%w: unsupported scheme (use env:, file:, or raw:)", ErrCredentialRef)
	}
}

// TokenProvider resolves the bearer credential a tenant's calls run under.
type TokenProvider interface {
	Token(tenantID string) (string, error)
}

// RefTokenProvider resolves tokens from credential references: a per-tenant
// ref first, then a configured global ref. Resolved values are cached.
type RefTokenProvider struct {
	// TenantRef returns the credential ref configured for a tenant, if any.
	TenantRef func(tenantID string) (string, bool)
	// GlobalRef is the fallback credential ref.
	GlobalRef string

	cache sync.Map // ref -> string
}

func (p *RefTokenProvider) Token(tenantID string) (string, error) {
	if p.TenantRef != nil {
		if ref, ok := p.TenantRef(tenantID); ok {
			return p.resolve(ref)
		}
	}
	if strings.TrimSpace(p.GlobalRef) != "" {
		return p.resolve(p.GlobalRef)
	}
	return "", fmt.Errorf("no credential configured for tenant %s and no global credential set", tenantID)
}

func (p *RefTokenProvider) resolve(ref string) (string, error) {
	if v, ok := p.cache.Load(ref); ok {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	token, err := resolveCredentialRef(ref)
	if err != nil {
		return "", err
	}
	p.cache.Store(ref, token)
	return token, nil
}
