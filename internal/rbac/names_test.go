package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModuleFoldsCaseAndAccents(t *testing.T) {
	for _, name := range []string{"Psicólogos", "psicologos", "PSICÓLOGOS", " Psicologos "} {
		m, err := ParseModule(name)
		require.NoError(t, err, name)
		assert.Equal(t, ModulePsychologists, m)
	}
	m, err := ParseModule("usuarios")
	require.NoError(t, err)
	assert.Equal(t, ModuleUsers, m)
}

func TestParseRejectsUnknownNames(t *testing.T) {
	_, err := ParseModule("Contabilidad")
	assert.ErrorIs(t, err, ErrUnknownModule)
	_, err = ParseAction("Aprobar")
	assert.ErrorIs(t, err, ErrUnknownAction)
	_, err = ParsePermission("Usuarios", "")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestEveryModuleAndActionRoundTrips(t *testing.T) {
	for _, m := range Modules() {
		assert.True(t, m.Valid())
		parsed, err := ParseModule(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
		bySlug, ok := ModuleFromSlug(m.Slug())
		require.True(t, ok, m.Slug())
		assert.Equal(t, m, bySlug)
	}
	for _, a := range Actions() {
		assert.True(t, a.Valid())
		parsed, err := ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
	assert.False(t, ModuleUnknown.Valid())
	assert.False(t, ActionUnknown.Valid())
	assert.Equal(t, "psicologos", ModulePsychologists.Slug())
}
