package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

// reloadDebounce coalesces filesystem event bursts into one reload.
const reloadDebounce = 500 * time.Millisecond

// Store holds the active cost policies, keyed by resource kind. It starts
// from the built-in company defaults; documents loaded from disk override per
// kind. Reloads swap the policy map atomically, so a run that captured a
// policy pointer keeps its snapshot.
type Store struct {
	mu       sync.RWMutex
	policies map[optimizer.ResourceKind]*CostPolicy
	version  string

	logger   zerolog.Logger
	validate *validator.Validate
	cue      *cue.Context
	gate     *Gate
	watcher  *fsnotify.Watcher
	paths    []string
}

// NewStore creates a store seeded with the built-in defaults. The gate is
// optional; when set, .rego files found in policy directories are registered
// with it on load.
func NewStore(logger zerolog.Logger, gate *Gate) (*Store, error) {
	defaults := Defaults()
	for kind, pol := range defaults {
		if err := pol.Compile(); err != nil {
			return nil, fmt.Errorf("built-in policy %s: %w", kind, err)
		}
	}

	return &Store{
		policies: defaults,
		version:  DefaultVersion,
		logger:   logger.With().Str("component", "policy-store").Logger(),
		validate: validator.New(),
		cue:      cuecontext.New(),
		gate:     gate,
	}, nil
}

// Lookup returns the policy for a kind, or ErrNotFound.
func (s *Store) Lookup(kind optimizer.ResourceKind) (*CostPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pol, ok := s.policies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, kind)
	}
	return pol, nil
}

// List returns the active policies in stable kind order.
func (s *Store) List() []*CostPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*CostPolicy, 0, len(s.policies))
	for _, kind := range optimizer.Kinds() {
		if pol, ok := s.policies[kind]; ok {
			out = append(out, pol)
		}
	}
	return out
}

// Version returns the active policy document version.
func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// LoadPaths loads policy documents from files or directories and swaps them
// in over the defaults. Supported formats: .cue, .yaml, .yml for typed
// policy documents; .rego files are registered with the gate when one is
// attached. Paths are remembered for Watch.
func (s *Store) LoadPaths(ctx context.Context, paths ...string) error {
	next := Defaults()
	version := DefaultVersion

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat path %s: %w", path, err)
		}

		files := []string{path}
		if info.IsDir() {
			files, err = listPolicyFiles(path)
			if err != nil {
				return fmt.Errorf("failed to walk directory %s: %w", path, err)
			}
		}

		for _, file := range files {
			if strings.HasSuffix(file, ".rego") {
				if err := s.loadRegoFile(file); err != nil {
					return err
				}
				continue
			}

			doc, err := s.loadDocument(file)
			if err != nil {
				return err
			}
			if doc.Version != "" {
				version = doc.Version
			}
			if err := mergeDocument(next, doc, version); err != nil {
				return fmt.Errorf("document %s: %w", file, err)
			}
		}
	}

	for kind, pol := range next {
		if err := s.validate.Struct(pol); err != nil {
			return fmt.Errorf("policy %s failed validation: %w", kind, err)
		}
		if err := pol.Compile(); err != nil {
			return fmt.Errorf("policy %s: %w", kind, err)
		}
	}

	s.mu.Lock()
	s.policies = next
	s.version = version
	s.paths = paths
	s.mu.Unlock()

	s.logger.Info().
		Int("kinds", len(next)).
		Str("version", version).
		Int("sources", len(paths)).
		Msg("Policies loaded")

	return nil
}

// listPolicyFiles collects policy files from a directory recursively.
func listPolicyFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".cue", ".yaml", ".yml", ".rego":
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// loadDocument parses one policy document file.
func (s *Store) loadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc Document
	switch filepath.Ext(path) {
	case ".cue":
		val := s.cue.CompileString(string(data), cue.Filename(path))
		if err := val.Err(); err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", path, err)
		}
		if err := val.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported policy file type: %s", path)
	}

	s.logger.Debug().Str("path", path).Int("kinds", len(doc.Policies)).Msg("Policy document loaded")
	return &doc, nil
}

// loadRegoFile registers a custom rego rule with the gate.
func (s *Store) loadRegoFile(path string) error {
	if s.gate == nil {
		s.logger.Warn().Str("path", path).Msg("Ignoring rego file: no gate attached")
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	rule := &Rule{
		Name:    strings.TrimSuffix(filepath.Base(path), ".rego"),
		Rego:    string(data),
		Enabled: true,
		Source:  path,
	}
	if err := s.gate.AddRule(rule); err != nil {
		return fmt.Errorf("failed to compile rule %s: %w", path, err)
	}

	s.logger.Debug().Str("path", path).Str("rule", rule.Name).Msg("Custom rule loaded")
	return nil
}

// mergeDocument overlays a document's policies onto the working set.
func mergeDocument(dst map[optimizer.ResourceKind]*CostPolicy, doc *Document, version string) error {
	for name, pol := range doc.Policies {
		kind := optimizer.ResourceKind(name)
		if err := kind.Validate(); err != nil {
			return err
		}
		pol.Kind = kind
		if pol.Version == "" {
			pol.Version = version
		}
		dst[kind] = pol
	}
	return nil
}

// Watch reloads the previously loaded paths whenever a policy file changes.
// Events are debounced; a failed reload keeps the current policies active.
func (s *Store) Watch(ctx context.Context) error {
	s.mu.RLock()
	paths := s.paths
	s.mu.RUnlock()

	if len(paths) == 0 {
		return fmt.Errorf("no policy paths loaded; call LoadPaths first")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	s.watcher = watcher

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}
		if info.IsDir() {
			if err := s.watchDirectory(path); err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
		} else if err := watcher.Add(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
		}
	}

	go s.processEvents(ctx, paths)

	s.logger.Info().Int("paths", len(paths)).Msg("Watching policy paths")
	return nil
}

func (s *Store) watchDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return s.watcher.Add(path)
		}
		return nil
	})
}

func (s *Store) processEvents(ctx context.Context, paths []string) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = s.watcher.Close()
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			switch filepath.Ext(event.Name) {
			case ".cue", ".yaml", ".yml", ".rego":
			default:
				continue
			}

			s.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Policy file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDebounce, func() {
				if err := s.LoadPaths(ctx, paths...); err != nil {
					s.logger.Error().Err(err).Msg("Policy reload failed; keeping current policies")
				}
			})

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Close stops watching, if a watcher is active.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
