package anki

import (
	"os"
	"path/filepath"

	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

const (
	// DefaultProfile is the profile Anki creates on first launch.
	DefaultProfile = "User 1"
	// CollectionFile is the collection file inside a profile directory.
	CollectionFile = "collection.anki2"
	// EnvCollectionPath names the variable that overrides auto-detection.
	EnvCollectionPath = "ANKI_COLLECTION_PATH"
)

// LocateCollection resolves the collection path. An explicit path wins, then
// envPath (the ANKI_COLLECTION_PATH value), then the platform's default Anki
// data directories for profile.
func LocateCollection(explicit, envPath, profile string) (string, error) {
	home, _ := os.UserHomeDir()
	return locate(explicit, envPath, profile, home, os.Getenv("APPDATA"))
}

func locate(explicit, envPath, profile, home, appData string) (string, error) {
	if explicit != "" {
		if !fileExists(explicit) {
			return "", skillerr.NotFound("collection file not found: %s", explicit)
		}
		return explicit, nil
	}

	if envPath != "" {
		if !fileExists(envPath) {
			return "", skillerr.NotFound("%s points to non-existent file: %s", EnvCollectionPath, envPath)
		}
		return envPath, nil
	}

	if profile == "" {
		profile = DefaultProfile
	}
	for _, candidate := range candidatePaths(profile, home, appData) {
		if fileExists(candidate) {
			return candidate, nil
		}
	}

	return "", skillerr.NotFound("Could not locate Anki collection. Use --collection to specify path or set %s.", EnvCollectionPath)
}

func candidatePaths(profile, home, appData string) []string {
	var candidates []string
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, "Library", "Application Support", "Anki2", profile, CollectionFile),
			filepath.Join(home, ".local", "share", "Anki2", profile, CollectionFile),
			filepath.Join(home, ".var", "app", "net.ankiweb.Anki", "data", "Anki2", profile, CollectionFile),
		)
	}
	if appData != "" {
		candidates = append(candidates, filepath.Join(appData, "Anki2", profile, CollectionFile))
	}
	return candidates
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
