package logging

import "testing"

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	logger, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logger == nil {
		t.Fatal("New() returned nil logger")
	}
}

func TestNewWithFileRotationDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "debug", FilePath: dir + "/engine.log"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("hello", "key", "value")
}
