package feeds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banksync/banksync/internal/model"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("Date,Description,Amount\n"), 0o644))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "gold.csv"))
	touch(t, filepath.Join(dir, "2024", "Chase2002_Activity.CSV"))
	touch(t, filepath.Join(dir, "notes.txt"))

	feeds, err := Scan(dir, model.DefaultFilePatterns())
	require.NoError(t, err)
	require.Len(t, feeds, 2)

	assert.Equal(t, model.FileFeed{Path: filepath.Join(dir, "2024", "Chase2002_Activity.CSV"), Name: model.FeedChaseChecking}, feeds[0])
	assert.Equal(t, model.FileFeed{Path: filepath.Join(dir, "gold.csv"), Name: model.FeedAmexGold}, feeds[1])
}

func TestScanUnmappedFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "gold.csv"))
	touch(t, filepath.Join(dir, "mystery.csv"))

	_, err := Scan(dir, model.DefaultFilePatterns())
	assert.ErrorIs(t, err, model.ErrUnmappedFeed)
}

func TestScanMissingDir(t *testing.T) {
	feeds, err := Scan(filepath.Join(t.TempDir(), "nope"), model.DefaultFilePatterns())
	require.NoError(t, err)
	assert.Empty(t, feeds)
}

func TestLoadRemote(t *testing.T) {
	t.Setenv("SAPPHIRE_TOKEN", "token_abc")
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- name: CHASE_SAPPHIRE
  account_id: acc_1
  access_token: ${SAPPHIRE_TOKEN}
- name: CHASE_CHECKING
  account_id: acc_2
  access_token: token_plain
`), 0o644))

	feeds, err := LoadRemote(path)
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, model.RemoteFeed{AccountID: "acc_1", AccessToken: "token_abc", Name: model.FeedChaseSapphire}, feeds[0])
	assert.Equal(t, "CHASE_CHECKING", feeds[1].BookmarkName())
}

func TestLoadRemoteInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing token", "- {name: A, account_id: x, access_token: '${UNSET_BANKSYNC_TOKEN}'}"},
		{"missing name", "- {account_id: x, access_token: y}"},
		{"missing account", "- {name: A, access_token: y}"},
		{"duplicate", "- {name: A, account_id: x, access_token: y}\n- {name: A, account_id: z, access_token: y}"},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "feeds.yaml")
		require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o644))
		_, err := LoadRemote(path)
		assert.ErrorIs(t, err, ErrInvalidFeed, tt.name)
	}
}

func TestLoadRemoteMissingFile(t *testing.T) {
	_, err := LoadRemote(filepath.Join(t.TempDir(), "feeds.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
