package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := Open(path)
	require.NoError(t, err)
	return store, path
}

func TestTokenSurvivesReopen(t *testing.T) {
	store, path := openTestStore(t)

	token, err := store.LoadToken()
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.SaveToken("id-token"))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	token, err = reopened.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "id-token", token)

	require.NoError(t, reopened.SaveToken(""))
	token, err = reopened.LoadToken()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestThemePreference(t *testing.T) {
	store, _ := openTestStore(t)
	t.Cleanup(func() { store.Close() })

	theme, err := store.Theme()
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)

	theme, err = store.ToggleTheme()
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)

	theme, err = store.Theme()
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)

	err = store.SetTheme("sepia")
	assert.ErrorIs(t, err, ErrInvalidTheme)

	theme, err = store.ToggleTheme()
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, theme)
}

func TestClearTokenKeepsTheme(t *testing.T) {
	store, _ := openTestStore(t)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SetTheme(ThemeDark))
	require.NoError(t, store.SaveToken("t"))
	require.NoError(t, store.ClearToken())

	token, err := store.LoadToken()
	require.NoError(t, err)
	assert.Empty(t, token)

	theme, err := store.Theme()
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)
}
