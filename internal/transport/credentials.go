package transport

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	namespacePrefix = "session-"
	namespaceSuffix = ".db"
)

// ErrInvalidTenant is returned for tenant IDs that cannot name a namespace.
var ErrInvalidTenant = errors.New("transport: invalid tenant id")

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidTenantID reports whether id can be used as a credential namespace key.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// CredentialStore maps tenants to their durable credential namespace: one
// sqlite file per tenant under Dir, named session-<tenantID>.db.
type CredentialStore struct {
	Dir string
}

// NewCredentialStore returns a store rooted at dir, creating it if needed.
func NewCredentialStore(dir string) (*CredentialStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("transport: credential dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("transport: create credential dir %s: %w", dir, err)
	}
	return &CredentialStore{Dir: dir}, nil
}

// Path returns the namespace file for tenantID.
func (s *CredentialStore) Path(tenantID string) (string, error) {
	if !ValidTenantID(tenantID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTenant, tenantID)
	}
	return filepath.Join(s.Dir, namespacePrefix+tenantID+namespaceSuffix), nil
}

// Exists reports whether a namespace file is present for tenantID.
func (s *CredentialStore) Exists(tenantID string) bool {
	p, err := s.Path(tenantID)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// List returns the tenant IDs of every namespace on disk, sorted.
func (s *CredentialStore) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, namespacePrefix+"*"+namespaceSuffix))
	if err != nil {
		return nil, fmt.Errorf("transport: list namespaces: %w", err)
	}
	var tenants []string
	for _, m := range matches {
		name := filepath.Base(m)
		id := strings.TrimSuffix(strings.TrimPrefix(name, namespacePrefix), namespaceSuffix)
		if !ValidTenantID(id) {
			continue
		}
		tenants = append(tenants, id)
	}
	sort.Strings(tenants)
	return tenants, nil
}

// Purge deletes the tenant's namespace file and its sqlite sidecars.
// Purging a missing namespace is not an error.
func (s *CredentialStore) Purge(tenantID string) error {
	p, err := s.Path(tenantID)
	if err != nil {
		return err
	}
	for _, f := range []string{p, p + "-wal", p + "-shm", p + "-journal"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("transport: purge %s: %w", f, err)
		}
	}
	return nil
}
