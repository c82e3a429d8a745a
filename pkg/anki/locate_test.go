package anki

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte{}, 0o644))
	return path
}

func TestLocate(t *testing.T) {
	home := t.TempDir()
	appData := t.TempDir()
	explicit := touch(t, filepath.Join(t.TempDir(), "mine.anki2"))
	fromEnv := touch(t, filepath.Join(t.TempDir(), "env.anki2"))
	linux := touch(t, filepath.Join(home, ".local", "share", "Anki2", "User 1", CollectionFile))
	windows := touch(t, filepath.Join(appData, "Anki2", "Work", CollectionFile))

	tests := []struct {
		name     string
		explicit string
		env      string
		profile  string
		home     string
		want     string
		wantErr  string
	}{
		{name: "explicit wins", explicit: explicit, env: fromEnv, home: home, want: explicit},
		{name: "missing explicit", explicit: "/nope/collection.anki2", home: home, wantErr: "collection file not found: /nope/collection.anki2"},
		{name: "env", env: fromEnv, home: home, want: fromEnv},
		{name: "missing env", env: "/nope/env.anki2", home: home, wantErr: "ANKI_COLLECTION_PATH points to non-existent file: /nope/env.anki2"},
		{name: "default profile", home: home, want: linux},
		{name: "named profile in appdata", profile: "Work", home: home, want: windows},
		{name: "nothing found", profile: "Nobody", home: home, wantErr: "Could not locate Anki collection. Use --collection to specify path or set ANKI_COLLECTION_PATH."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := locate(tt.explicit, tt.env, tt.profile, tt.home, appData)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, skillerr.Is(err, skillerr.KindNotFound))
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCandidatePaths(t *testing.T) {
	paths := candidatePaths("User 1", "/home/me", "")
	assert.Equal(t, []string{
		filepath.Join("/home/me", "Library", "Application Support", "Anki2", "User 1", CollectionFile),
		filepath.Join("/home/me", ".local", "share", "Anki2", "User 1", CollectionFile),
		filepath.Join("/home/me", ".var", "app", "net.ankiweb.Anki", "data", "Anki2", "User 1", CollectionFile),
	}, paths)

	assert.Empty(t, candidatePaths("User 1", "", ""))
}

func TestLocate_DirectoryIsNotACollection(t *testing.T) {
	dir := t.TempDir()
	_, err := locate(dir, "", "", "", "")
	require.Error(t, err)
	assert.True(t, skillerr.Is(err, skillerr.KindNotFound))
}
