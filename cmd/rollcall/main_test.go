package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rollcall.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRun_RejectsMissingSecret(t *testing.T) {
	t.Setenv("ROLLCALL_AUTH_JWT_SECRET", "")
	path := writeConfig(t, "http:\n  port: 0\n")

	err := run(context.Background(), []string{"-config", path})
	if err == nil || !strings.Contains(err.Error(), "auth.jwtsecret") {
		t.Fatalf("Expected jwt secret validation error, got %v", err)
	}
}

func TestRun_MissingConfigFile(t *testing.T) {
	err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil {
		t.Fatal("Expected error for a missing config file")
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if err := run(context.Background(), []string{"-nope"}); err == nil {
		t.Fatal("Expected flag parse error")
	}
}

func TestRun_StartsAndStopsOnCancel(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "run.db")
	path := writeConfig(t, strings.Join([]string{
		"database:",
		"  path: " + dbPath,
		"http:",
		"  host: 127.0.0.1",
		"  port: 0",
		"auth:",
		"  jwt_secret: run-test-secret-value",
		"",
	}, "\n"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-config", path}) }()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Expected database file to be created: %v", err)
	}
}
