package confkit

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce seeds the environment from .env files between this source
// file and the checkout root, so venue credentials and config overrides in a
// checkout apply to binaries and tests alike. The first call wins. Existing
// environment variables are left untouched unless DOTENV_OVERLOAD=1 is set;
// NO_DOTENV=1 disables the whole mechanism; ENV_FILE names one exact file to
// load instead.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}

	load := godotenv.Load
	if os.Getenv("DOTENV_OVERLOAD") == "1" {
		load = godotenv.Overload
	}

	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		_ = load(envFile)
		return
	}

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		_ = load(".env")
		return
	}
	dir := filepath.Dir(file)
	for i := 0; i < walkUpLimit; i++ {
		_ = load(filepath.Join(dir, ".env"))
		if isRepoRoot(dir) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
