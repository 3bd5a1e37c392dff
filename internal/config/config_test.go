package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewFromEnv(t *testing.T) {
	// Helper function to set environment variables for a test
	setEnv := func(key, value string) {
		t.Helper()
		t.Setenv(key, value)
	}

	unsetAll := func() {
		for _, k := range []string{"LLM_PROVIDER", "GEMINI_API_KEY", "GROQ_API_KEY", "SESSION_JWT_SECRET", "STORE_BACKEND", "POSTGRES_DSN", "APP_ENV", "GENERATION_TIMEOUT", "SESSION_WATCHDOG", "EXPORT_TASK_COUNT"} {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}

	t.Run("Success", func(t *testing.T) {
		unsetAll()
		setEnv("GEMINI_API_KEY", "gemini_key")
		setEnv("SESSION_JWT_SECRET", "secret")

		cfg, err := NewFromEnv()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.GeminiAPIKey != "gemini_key" {
			t.Errorf("Expected GeminiAPIKey to be 'gemini_key', got '%s'", cfg.GeminiAPIKey)
		}
		if cfg.GenerationTimeout != 30*time.Second {
			t.Errorf("Expected default GenerationTimeout 30s, got %s", cfg.GenerationTimeout)
		}
		if cfg.SessionWatchdog != 5*time.Second {
			t.Errorf("Expected default SessionWatchdog 5s, got %s", cfg.SessionWatchdog)
		}
		if cfg.StoreBackend != "sqlite" {
			t.Errorf("Expected StoreBackend 'sqlite', got '%s'", cfg.StoreBackend)
		}
	})

	t.Run("MissingGeminiAPIKey", func(t *testing.T) {
		unsetAll()
		setEnv("SESSION_JWT_SECRET", "secret")

		_, err := NewFromEnv()
		if err == nil {
			t.Fatal("Expected an error for missing GEMINI_API_KEY, got nil")
		}
		expectedError := "GEMINI_API_KEY environment variable not set"
		if err.Error() != expectedError {
			t.Errorf("Expected error '%s', got '%s'", expectedError, err.Error())
		}
	})

	t.Run("MissingGroqAPIKey", func(t *testing.T) {
		unsetAll()
		setEnv("LLM_PROVIDER", "groq")
		setEnv("SESSION_JWT_SECRET", "secret")

		_, err := NewFromEnv()
		if err == nil {
			t.Fatal("Expected an error for missing GROQ_API_KEY, got nil")
		}
		expectedError := "GROQ_API_KEY environment variable not set"
		if err.Error() != expectedError {
			t.Errorf("Expected error '%s', got '%s'", expectedError, err.Error())
		}
	})

	t.Run("MissingSessionSecret", func(t *testing.T) {
		unsetAll()
		setEnv("GEMINI_API_KEY", "gemini_key")

		_, err := NewFromEnv()
		if err == nil {
			t.Fatal("Expected an error for missing SESSION_JWT_SECRET, got nil")
		}
		expectedError := "SESSION_JWT_SECRET environment variable not set"
		if err.Error() != expectedError {
			t.Errorf("Expected error '%s', got '%s'", expectedError, err.Error())
		}
	})

	t.Run("PostgresWithoutDSN", func(t *testing.T) {
		unsetAll()
		setEnv("GEMINI_API_KEY", "gemini_key")
		setEnv("SESSION_JWT_SECRET", "secret")
		setEnv("STORE_BACKEND", "postgres")

		_, err := NewFromEnv()
		if err == nil {
			t.Fatal("Expected an error for postgres without DSN, got nil")
		}
		expectedError := "POSTGRES_DSN is required when STORE_BACKEND=postgres"
		if err.Error() != expectedError {
			t.Errorf("Expected error '%s', got '%s'", expectedError, err.Error())
		}
	})

	t.Run("BadDuration", func(t *testing.T) {
		unsetAll()
		setEnv("GEMINI_API_KEY", "gemini_key")
		setEnv("SESSION_JWT_SECRET", "secret")
		setEnv("GENERATION_TIMEOUT", "soon")

		if _, err := NewFromEnv(); err == nil {
			t.Fatal("Expected an error for invalid GENERATION_TIMEOUT, got nil")
		}
	})
}

func TestLoadFile(t *testing.T) {
	for _, k := range []string{"LLM_PROVIDER", "STORE_BACKEND", "GENERATION_TIMEOUT", "EXPORT_TASK_COUNT", "APP_ENV"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("GEMINI_API_KEY", "gemini_key")
	t.Setenv("SESSION_JWT_SECRET", "secret")

	path := filepath.Join(t.TempDir(), "capillaire.yaml")
	doc := "env: staging\ngeneration_timeout: 10s\nexport_task_count: 3\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Env != "staging" {
		t.Errorf("Expected Env 'staging', got '%s'", cfg.Env)
	}
	if cfg.GenerationTimeout != 10*time.Second {
		t.Errorf("Expected GenerationTimeout 10s, got %s", cfg.GenerationTimeout)
	}
	if cfg.ExportTaskCount != 3 {
		t.Errorf("Expected ExportTaskCount 3, got %d", cfg.ExportTaskCount)
	}
}
