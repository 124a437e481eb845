package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePort(t *testing.T) {
	for _, port := range []int{0, -1, 65536} {
		if validatePort(port) == nil {
			t.Fatalf("expected error for port %d", port)
		}
	}
	if errValidate := validatePort(8320); errValidate != nil {
		t.Fatalf("expected valid port, got %v", errValidate)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if errLoad := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); errLoad != nil {
		t.Fatalf("expected missing file to be ignored, got %v", errLoad)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if errWrite := os.WriteFile(path, []byte("CREDITENGINE_TEST_VALUE=from-file\n"), 0o600); errWrite != nil {
		t.Fatalf("write env file: %v", errWrite)
	}
	t.Setenv("CREDITENGINE_TEST_VALUE", "")
	os.Unsetenv("CREDITENGINE_TEST_VALUE")
	if errLoad := loadEnvFile(path); errLoad != nil {
		t.Fatalf("load env file: %v", errLoad)
	}
	if got := os.Getenv("CREDITENGINE_TEST_VALUE"); got != "from-file" {
		t.Fatalf("expected from-file, got %q", got)
	}
}

func TestRunRejectsBadPort(t *testing.T) {
	if errRun := run(context.Background(), []string{"-port", "0", "-env-file", ""}); errRun == nil {
		t.Fatalf("expected error for invalid port")
	}
}
