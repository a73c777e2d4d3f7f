package confkit

import (
	"os"
	"path/filepath"
	"runtime"
)

const walkUpLimit = 8

// isRepoRoot reports whether dir is the checkout root.
func isRepoRoot(dir string) bool {
	return fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, ".git"))
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}

// repoRoot walks upwards from this source file to the checkout root, so the
// default etc/ config locations work no matter where a binary or test runs
// from. Falls back to the working directory outside a source checkout.
func repoRoot() string {
	if _, file, _, ok := runtime.Caller(0); ok {
		dir := filepath.Dir(file)
		for i := 0; i < walkUpLimit; i++ {
			if isRepoRoot(dir) {
				return dir
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// MustProjectPath returns rel anchored at the checkout root. The per-concern
// MustLoad helpers use it to find their etc/*.yaml defaults.
func MustProjectPath(rel string) string {
	return filepath.Join(repoRoot(), rel)
}
