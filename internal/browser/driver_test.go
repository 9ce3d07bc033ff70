package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	d, err := New("", "")
	require.NoError(t, err)
	assert.Equal(t, DriverPlaywright, d.Name())

	d, err = New(DriverRod, "/usr/bin/chromium")
	require.NoError(t, err)
	assert.Equal(t, DriverRod, d.Name())
	assert.Equal(t, "/usr/bin/chromium", d.(*rodDriver).bin)

	_, err = New("selenium", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestLaunchOptionsDefaults(t *testing.T) {
	opts := LaunchOptions{}.withDefaults()
	assert.Equal(t, DefaultViewportWidth, opts.Viewport.Width)
	assert.Equal(t, DefaultViewportHeight, opts.Viewport.Height)
	assert.Equal(t, DefaultTimeout, opts.DefaultTimeout)

	opts = LaunchOptions{Viewport: Viewport{Width: 800, Height: 600}, DefaultTimeout: time.Second}.withDefaults()
	assert.Equal(t, 800, opts.Viewport.Width)
	assert.Equal(t, time.Second, opts.DefaultTimeout)
}

func TestStateExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth_state.json")

	assert.False(t, stateExists(""))
	assert.False(t, stateExists(path))
	assert.False(t, stateExists(dir))

	require.NoError(t, os.WriteFile(path, []byte(`{"cookies":[]}`), 0o600))
	assert.True(t, stateExists(path))
}

func TestRestoreCookies(t *testing.T) {
	dir := t.TempDir()

	err := restoreCookies(nil, filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "read auth state")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o600))
	assert.ErrorContains(t, restoreCookies(nil, bad), "decode auth state")

	// no cookies means the browser is never touched
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"cookies":[]}`), 0o600))
	assert.NoError(t, restoreCookies(nil, empty))
}
