package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	pkgauth "github.com/BradenHooton/sentinel/pkg/auth"
	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// DefaultOperation is applied to operation types missing from the table
const DefaultOperation = "default"

// Rules holds the data tables the engine matches against. They are loaded
// from a TOML file so they can be extended without a deploy.
type Rules struct {
	Version         string                           `toml:"version"`
	Network         NetworkKeywords                  `toml:"network"`
	CommonPasswords []string                         `toml:"common_passwords"`
	TorExitNodes    []string                         `toml:"tor_exit_nodes"`
	Operations      map[string]models.OperationLimit `toml:"operations"`

	commonList *pkgauth.CommonPasswordList
	torNodes   map[string]struct{}
}

// NetworkKeywords are matched against the organization of an IP
type NetworkKeywords struct {
	Datacenter []string `toml:"datacenter"`
	VPN        []string `toml:"vpn"`
	Proxy      []string `toml:"proxy"`
}

// DefaultRules returns the built-in tables
func DefaultRules() *Rules {
	r := &Rules{
		Version: "builtin",
		Network: NetworkKeywords{
			Datacenter: []string{
				"amazon", "aws", "google", "microsoft", "azure", "digitalocean", "linode",
				"vultr", "ovh", "hetzner", "cloudflare", "akamai", "hosting", "server",
				"cloud", "datacenter", "data center",
			},
			VPN: []string{
				"vpn", "private", "tunnel", "nord", "express", "surfshark", "mullvad",
				"proton", "cyberghost", "pia", "ipvanish",
			},
			Proxy: []string{"proxy", "anonymizer", "hide", "mask"},
		},
		CommonPasswords: append([]string(nil), pkgauth.DefaultCommonPasswords...),
		Operations:      DefaultOperationLimits(),
	}
	r.index()
	return r
}

// DefaultOperationLimits is the built-in per-operation rate limit table
func DefaultOperationLimits() map[string]models.OperationLimit {
	return map[string]models.OperationLimit{
		"login":           {MaxRequests: 5, Window: time.Minute, BlockDuration: 15 * time.Minute},
		"password_reset":  {MaxRequests: 3, Window: 5 * time.Minute, BlockDuration: 15 * time.Minute},
		"bulk_import":     {MaxRequests: 2, Window: 5 * time.Minute, BlockDuration: 10 * time.Minute},
		"contact_create":  {MaxRequests: 10, Window: time.Minute, BlockDuration: 5 * time.Minute},
		"account_create":  {MaxRequests: 10, Window: time.Minute, BlockDuration: 5 * time.Minute},
		"lead_create":     {MaxRequests: 10, Window: time.Minute, BlockDuration: 5 * time.Minute},
		"activity_create": {MaxRequests: 20, Window: time.Minute, BlockDuration: 5 * time.Minute},
		"quote_create":    {MaxRequests: 5, Window: time.Minute, BlockDuration: 5 * time.Minute},
		"user_create":     {MaxRequests: 3, Window: time.Minute, BlockDuration: 10 * time.Minute},
		DefaultOperation:  {MaxRequests: 10, Window: time.Minute, BlockDuration: 5 * time.Minute},
	}
}

// LoadRules reads path on top of the defaults. Tables present in the file
// replace the built-in ones; operations are merged by name.
func LoadRules(path string) (*Rules, error) {
	r := DefaultRules()
	r.Version = ""

	if _, err := toml.DecodeFile(path, r); err != nil {
		return nil, fmt.Errorf("failed to decode rules file %s: %w", path, err)
	}

	for name, limit := range r.Operations {
		if limit.MaxRequests < 1 || limit.Window <= 0 || limit.BlockDuration < 0 {
			return nil, fmt.Errorf("operations.%s: max_requests, window and block_duration must be positive", name)
		}
	}

	r.index()
	return r, nil
}

func (r *Rules) index() {
	r.commonList = pkgauth.NewCommonPasswordList(r.CommonPasswords)
	r.torNodes = make(map[string]struct{}, len(r.TorExitNodes))
	for _, ip := range r.TorExitNodes {
		r.torNodes[strings.TrimSpace(ip)] = struct{}{}
	}
	for i, list := range [][]string{r.Network.Datacenter, r.Network.VPN, r.Network.Proxy} {
		lowered := make([]string, 0, len(list))
		for _, kw := range list {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				lowered = append(lowered, kw)
			}
		}
		switch i {
		case 0:
			r.Network.Datacenter = lowered
		case 1:
			r.Network.VPN = lowered
		case 2:
			r.Network.Proxy = lowered
		}
	}
}

// RulesStore serves the current Rules and swaps them on reload
type RulesStore struct {
	current atomic.Pointer[Rules]
	path    string
	logger  *slog.Logger
}

// NewRulesStore loads path, or the built-in rules when path is empty
func NewRulesStore(path string, logger *slog.Logger) (*RulesStore, error) {
	s := &RulesStore{path: path, logger: logger}

	rules := DefaultRules()
	if path != "" {
		loaded, err := LoadRules(path)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	s.current.Store(rules)

	return s, nil
}

func (s *RulesStore) Current() *Rules {
	return s.current.Load()
}

// OperationLimit returns the limit for op, or the default entry
func (s *RulesStore) OperationLimit(op string) models.OperationLimit {
	ops := s.Current().Operations
	if limit, ok := ops[op]; ok {
		return limit
	}
	if limit, ok := ops[DefaultOperation]; ok {
		return limit
	}
	return DefaultOperationLimits()[DefaultOperation]
}

func (s *RulesStore) Keywords() NetworkKeywords {
	return s.Current().Network
}

func (s *RulesStore) CommonPasswords() *pkgauth.CommonPasswordList {
	return s.Current().commonList
}

// IsTorExit reports whether ip is on the configured exit node list
func (s *RulesStore) IsTorExit(ip string) bool {
	_, ok := s.Current().torNodes[ip]
	return ok
}

func (s *RulesStore) reload() {
	rules, err := LoadRules(s.path)
	if err != nil {
		s.logger.Error("failed to reload rules, keeping previous version",
			slog.String("path", s.path),
			slog.Any("error", err))
		return
	}
	s.current.Store(rules)
	s.logger.Info("rules reloaded",
		slog.String("path", s.path),
		slog.String("version", rules.Version))
}

// Watch reloads the rules file whenever it changes until ctx is cancelled.
// The directory is watched so editors that replace the file are handled.
func (s *RulesStore) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					s.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("rules watcher error", slog.Any("error", err))
			}
		}
	}()

	return nil
}
