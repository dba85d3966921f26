package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env.local and .env from the working directory.
// Missing files are not an error; values already set in the environment
// are never overwritten.
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

// LoadEnvFilesFor loads .env from the config file's directory before the
// working-directory files, so secrets can live next to the config they
// expand into.
func LoadEnvFilesFor(configPath string) error {
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			envPath := filepath.Join(filepath.Dir(abs), ".env")
			if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to load %s: %w", envPath, err)
			}
		}
	}
	return LoadEnvFiles()
}
