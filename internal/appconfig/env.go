package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// APIKeyEnv is the environment variable holding the provider API key.
const APIKeyEnv = "OPENAI_API_KEY"

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment and copies the API key into cfg. Missing files are skipped;
// variables already set in the environment win.
func LoadEnv(cfg *Config, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	if cfg != nil {
		cfg.APIKey = strings.TrimSpace(os.Getenv(APIKeyEnv))
	}
	return nil
}
