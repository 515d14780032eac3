package specialists_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/domain"
	"github.com/fleetctl/core/internal/specialists"
	"github.com/fleetctl/core/internal/store/memstore"
)

func TestResolveFallsBackToHardcoded(t *testing.T) {
	r := specialists.New(memstore.New().Specialists(), "", "")
	sp, err := r.Resolve(context.Background(), "crafter")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceHardcoded, sp.Source)
	assert.Equal(t, domain.RoleCrafter, sp.Role)
}

func TestResolveUnknownSpecialistErrors(t *testing.T) {
	r := specialists.New(memstore.New().Specialists(), "", "")
	_, err := r.Resolve(context.Background(), "NOBODY")
	assert.Error(t, err)
}

func TestResolvePrefersDatabaseOverFileAndHardcoded(t *testing.T) {
	dir := t.TempDir()
	writeSpecialistFile(t, dir, "crafter", "file-user system prompt")

	st := memstore.New()
	require.NoError(t, st.Specialists().Upsert(context.Background(), domain.Specialist{
		ID: "CRAFTER", Role: domain.RoleCrafter, SystemPrompt: "database system prompt", Enabled: true,
	}))

	r := specialists.New(st.Specialists(), dir, "")
	sp, err := r.Resolve(context.Background(), "CRAFTER")
	require.NoError(t, err)
	assert.Equal(t, "database system prompt", sp.SystemPrompt)
	assert.Equal(t, domain.SourceUser, sp.Source)
}

func TestResolvePrefersFileUserOverBundled(t *testing.T) {
	userDir := t.TempDir()
	bundledDir := t.TempDir()
	writeSpecialistFile(t, userDir, "crafter", "user file prompt")
	writeSpecialistFile(t, bundledDir, "crafter", "bundled file prompt")

	r := specialists.New(memstore.New().Specialists(), userDir, bundledDir)
	sp, err := r.Resolve(context.Background(), "CRAFTER")
	require.NoError(t, err)
	assert.Equal(t, "user file prompt", sp.SystemPrompt)
	assert.Equal(t, domain.SourceUser, sp.Source)
}

func TestSaveInvalidatesCacheSoNextResolveSeesTheUpdate(t *testing.T) {
	st := memstore.New()
	r := specialists.New(st.Specialists(), "", "")

	sp, err := r.Resolve(context.Background(), "CRAFTER")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceHardcoded, sp.Source)

	require.NoError(t, r.Save(context.Background(), domain.Specialist{
		ID: "CRAFTER", Role: domain.RoleCrafter, SystemPrompt: "overridden", Enabled: true,
	}))

	sp, err = r.Resolve(context.Background(), "CRAFTER")
	require.NoError(t, err)
	assert.Equal(t, "overridden", sp.SystemPrompt)
	assert.Equal(t, domain.SourceUser, sp.Source)
}

func writeSpecialistFile(t *testing.T, dir, name, prompt string) {
	t.Helper()
	content := "id: " + name + "\nrole: CRAFTER\nsystemPrompt: \"" + prompt + "\"\nenabled: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o644))
}
