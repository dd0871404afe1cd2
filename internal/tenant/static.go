package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// RegistryFile is the on-disk shape of the static tenant registry.
type RegistryFile struct {
	Tenants map[string]TenantEntry `yaml:"tenants"`
}

// TenantEntry declares the external assets one tenant owns.
type TenantEntry struct {
	Accounts []string `yaml:"accounts"`
	Pages    []string `yaml:"pages"`
	// CredentialRef resolves the tenant's bearer credential (env:NAME,
	// file:/path, raw:value).
	CredentialRef string `yaml:"credential_ref"`
	// DisplayName is used as the compliance fallback for beneficiary/payor.
	DisplayName string `yaml:"display_name"`
}

// snapshot is the immutable, normalized view the guard reads from. Reload
// swaps the whole snapshot atomically.
type snapshot struct {
	accountsByTenant map[string]map[string]struct{}
	pagesByTenant    map[string]map[string]struct{}
	tenantsByAccount map[string][]string
	credentialRefs   map[string]string
	displayNames     map[string]string
}

// StaticRegistry is the configuration-map backend of AccountIsolationGuard.
// It reads a YAML file once and optionally hot reloads it on change.
type StaticRegistry struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[snapshot]
}

// NewStaticRegistry loads the registry file at path.
func NewStaticRegistry(path string, logger *slog.Logger) (*StaticRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &StaticRegistry{path: path, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseRegistryFile parses and validates registry YAML.
func ParseRegistryFile(data []byte) (*RegistryFile, error) {
	var file RegistryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tenant registry: %w", err)
	}
	if len(file.Tenants) == 0 {
		return nil, fmt.Errorf("tenant registry declares no tenants")
	}
	for id, entry := range file.Tenants {
		if id == "" {
			return nil, fmt.Errorf("tenant registry contains an empty tenant id")
		}
		if len(entry.Accounts) == 0 {
			return nil, fmt.Errorf("tenant %s declares no accounts", id)
		}
	}
	return &file, nil
}

// Reload re-reads the registry file and swaps the active snapshot.
func (r *StaticRegistry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read tenant registry: %w", err)
	}
	file, err := ParseRegistryFile(data)
	if err != nil {
		return err
	}
	r.current.Store(buildSnapshot(file))
	return nil
}

// Watch hot reloads the registry whenever the file changes, until ctx ends.
// A broken edit keeps the previous snapshot active.
func (r *StaticRegistry) Watch(ctx context.Context) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Warn("registry_watch_disabled", slog.Any("err", err))
		return
	}
	defer w.Close()

	dir := filepath.Dir(r.path)
	base := filepath.Base(r.path)
	if err := w.Add(dir); err != nil {
		r.logger.Warn("registry_watch_disabled", slog.Any("err", err))
		return
	}
	r.logger.Info("watching_tenant_registry", slog.String("path", r.path))

	// Debounce to coalesce bursty editor/atomic-write events.
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(200 * time.Millisecond)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(200 * time.Millisecond)
		}
		timerCh = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			schedule()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.logger.Warn("registry_watch_error", slog.Any("err", err))
		case <-timerCh:
			timerCh = nil
			if err := r.Reload(); err != nil {
				r.logger.Warn("registry_reload_failed", slog.Any("err", err))
				continue
			}
			r.logger.Info("tenant_registry_reloaded", slog.String("path", r.path))
		}
	}
}

func buildSnapshot(file *RegistryFile) *snapshot {
	s := &snapshot{
		accountsByTenant: make(map[string]map[string]struct{}, len(file.Tenants)),
		pagesByTenant:    make(map[string]map[string]struct{}, len(file.Tenants)),
		tenantsByAccount: make(map[string][]string),
		credentialRefs:   make(map[string]string, len(file.Tenants)),
		displayNames:     make(map[string]string, len(file.Tenants)),
	}
	for tenantID, entry := range file.Tenants {
		accounts := make(map[string]struct{}, len(entry.Accounts))
		for _, raw := range entry.Accounts {
			id := NormalizeAccountID(raw)
			if id == "" {
				continue
			}
			accounts[id] = struct{}{}
			s.tenantsByAccount[id] = append(s.tenantsByAccount[id], tenantID)
		}
		pages := make(map[string]struct{}, len(entry.Pages))
		for _, raw := range entry.Pages {
			if id := NormalizePageID(raw); id != "" {
				pages[id] = struct{}{}
			}
		}
		s.accountsByTenant[tenantID] = accounts
		s.pagesByTenant[tenantID] = pages
		if entry.CredentialRef != "" {
			s.credentialRefs[tenantID] = entry.CredentialRef
		}
		if entry.DisplayName != "" {
			s.displayNames[tenantID] = entry.DisplayName
		}
	}
	for id := range s.tenantsByAccount {
		sort.Strings(s.tenantsByAccount[id])
	}
	return s
}

func (r *StaticRegistry) AssertAccountAllowed(_ context.Context, tenantID, accountID string) error {
	id := NormalizeAccountID(accountID)
	accounts, ok := r.current.Load().accountsByTenant[tenantID]
	if !ok {
		return denied(tenantID, id, "unknown tenant")
	}
	if _, ok := accounts[id]; !ok {
		return denied(tenantID, id, "account not in tenant's allowed set")
	}
	return nil
}

func (r *StaticRegistry) AssertPageAllowed(_ context.Context, tenantID, pageID string) error {
	id := NormalizePageID(pageID)
	pages, ok := r.current.Load().pagesByTenant[tenantID]
	if !ok {
		return denied(tenantID, id, "unknown tenant")
	}
	if _, ok := pages[id]; !ok {
		return denied(tenantID, id, "page not in tenant's allowed set")
	}
	return nil
}

func (r *StaticRegistry) InferTenantByAccount(_ context.Context, accountID string) (string, error) {
	id := NormalizeAccountID(accountID)
	owners := r.current.Load().tenantsByAccount[id]
	switch len(owners) {
	case 0:
		return "", nil
	case 1:
		return owners[0], nil
	default:
		return "", ambiguous(id)
	}
}

func (r *StaticRegistry) AllowedAccountIDs(_ context.Context, tenantID string) ([]string, error) {
	accounts := r.current.Load().accountsByTenant[tenantID]
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// CredentialRef returns the tenant's credential reference, if configured.
func (r *StaticRegistry) CredentialRef(tenantID string) (string, bool) {
	ref, ok := r.current.Load().credentialRefs[tenantID]
	return ref, ok
}

// DisplayName returns the tenant's display name, if configured.
func (r *StaticRegistry) DisplayName(tenantID string) (string, bool) {
	name, ok := r.current.Load().displayNames[tenantID]
	return name, ok
}
