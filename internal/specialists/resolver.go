// Package specialists resolves a specialist name or role to a
// domain.Specialist persona (spec §3 "Resolution priority:
// database-user > file-user > file-bundled > hardcoded; cache invalidated
// on writes"). Grounded on
// kadirpekel-hector/pkg/config/loader.go's read-parse-decode loader shape
// for the file tiers, using gopkg.in/yaml.v3 directly (already in the
// pack's dependency closure).
package specialists

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fleetctl/core/internal/domain"
)

// SpecialistRepo is the Persistence Façade slice this package needs.
type SpecialistRepo interface {
	Upsert(ctx context.Context, s domain.Specialist) error
	Get(ctx context.Context, id string) (domain.Specialist, error)
	List(ctx context.Context) ([]domain.Specialist, error)
}

// specialistFile is the on-disk (YAML) shape for file-user/file-bundled
// specialist definitions.
type specialistFile struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Description      string `yaml:"description"`
	Role             string `yaml:"role"`
	DefaultModelTier string `yaml:"defaultModelTier"`
	SystemPrompt     string `yaml:"systemPrompt"`
	RoleReminder     string `yaml:"roleReminder"`
	Model            string `yaml:"model"`
	Enabled          bool   `yaml:"enabled"`
}

// Resolver implements the database-user > file-user > file-bundled >
// hardcoded resolution chain, with a cache invalidated on every write.
type Resolver struct {
	repo       SpecialistRepo
	userDir    string
	bundledDir string
	hardcoded  map[string]domain.Specialist

	mu    sync.RWMutex
	cache map[string]domain.Specialist
}

// New builds a Resolver. userDir and bundledDir may be empty to skip their
// tier (e.g. in tests). Resolve upper-cases the name and looks it up as a
// database specialist id, as a lower-case file name in each directory
// tier, and as a role key of the hardcoded table; Specialist.Name is not
// consulted.
func New(repo SpecialistRepo, userDir, bundledDir string) *Resolver {
	return &Resolver{
		repo:       repo,
		userDir:    userDir,
		bundledDir: bundledDir,
		hardcoded:  hardcodedSpecialists(),
		cache:      make(map[string]domain.Specialist),
	}
}

// Resolve looks up name through the resolution chain, in priority order,
// caching the result. name may be a role name (e.g. "CRAFTER") or a
// specialist id.
func (r *Resolver) Resolve(ctx context.Context, name string) (domain.Specialist, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if key == "" {
		return domain.Specialist{}, fmt.Errorf("specialist name is required")
	}

	if sp, ok := r.cached(key); ok {
		return sp, nil
	}

	if r.repo != nil {
		if sp, err := r.repo.Get(ctx, key); err == nil {
			sp.Source = domain.SourceUser
			r.store(key, sp)
			return sp, nil
		}
	}

	if sp, ok := r.loadFile(r.userDir, key, domain.SourceUser); ok {
		r.store(key, sp)
		return sp, nil
	}

	if sp, ok := r.loadFile(r.bundledDir, key, domain.SourceBundled); ok {
		r.store(key, sp)
		return sp, nil
	}

	if sp, ok := r.hardcoded[key]; ok {
		r.store(key, sp)
		return sp, nil
	}

	return domain.Specialist{}, fmt.Errorf("unknown specialist %q", name)
}

// Save persists a user-defined specialist override and invalidates its
// cache entry, so the next Resolve call picks up the new definition
// instead of a stale cached lower-priority tier.
func (r *Resolver) Save(ctx context.Context, sp domain.Specialist) error {
	if r.repo == nil {
		return fmt.Errorf("specialists: no database repo configured")
	}
	if err := r.repo.Upsert(ctx, sp); err != nil {
		return err
	}
	r.invalidate(strings.ToUpper(sp.ID))
	return nil
}

func (r *Resolver) cached(key string) (domain.Specialist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.cache[key]
	return sp, ok
}

func (r *Resolver) store(key string, sp domain.Specialist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = sp
}

func (r *Resolver) invalidate(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, key)
}

func (r *Resolver) loadFile(dir, key string, source domain.SpecialistSource) (domain.Specialist, bool) {
	if dir == "" {
		return domain.Specialist{}, false
	}
	path := filepath.Join(dir, strings.ToLower(key)+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Specialist{}, false
	}
	var f specialistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.Specialist{}, false
	}
	sp := domain.Specialist{
		ID:               f.ID,
		Name:             f.Name,
		Description:      f.Description,
		Role:             domain.Role(strings.ToUpper(f.Role)),
		DefaultModelTier: domain.ModelTier(strings.ToUpper(f.DefaultModelTier)),
		SystemPrompt:     f.SystemPrompt,
		RoleReminder:     f.RoleReminder,
		Model:            f.Model,
		Enabled:          f.Enabled,
		Source:           source,
	}
	if sp.ID == "" {
		sp.ID = key
	}
	return sp, true
}

// hardcodedSpecialists is the bottom of the resolution chain: always
// available, regardless of database or file configuration.
func hardcodedSpecialists() map[string]domain.Specialist {
	return map[string]domain.Specialist{
		"CRAFTER": {
			ID: "CRAFTER", Name: "Crafter", Role: domain.RoleCrafter,
			DefaultModelTier: domain.ModelTierBalanced,
			SystemPrompt:     "You implement a single delegated task end-to-end: read the task's objective and scope, make the change, and verify it against the listed acceptance criteria.",
			RoleReminder:     "Report back to your parent via report_to_parent once the task's acceptance criteria are met.",
			Enabled:          true, Source: domain.SourceHardcoded,
		},
		"GATE": {
			ID: "GATE", Name: "Gate", Role: domain.RoleGate,
			DefaultModelTier: domain.ModelTierFast,
			SystemPrompt:     "You verify a delegated task's output against its acceptance criteria and verification commands, without making further changes yourself.",
			RoleReminder:     "Report back to your parent via report_to_parent with success=true only if every verification command passes.",
			Enabled:          true, Source: domain.SourceHardcoded,
		},
		"ROUTA": {
			ID: "ROUTA", Name: "Routa", Role: domain.RoleCoordinator,
			DefaultModelTier: domain.ModelTierSmart,
			SystemPrompt:     "You plan and delegate work across specialists; you do not implement directly once you have children to delegate to.",
			Enabled:          true, Source: domain.SourceHardcoded,
		},
		"DEVELOPER": {
			ID: "DEVELOPER", Name: "Developer", Role: domain.RoleDeveloper,
			DefaultModelTier: domain.ModelTierBalanced,
			SystemPrompt:     "You both plan and implement within a single session, without delegating to child agents.",
			Enabled:          true, Source: domain.SourceHardcoded,
		},
	}
}
