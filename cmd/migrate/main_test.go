package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
)

type fakeMigrator struct {
	upErr   error
	steps   int
	forced  int
	version uint
	verErr  error
	calls   []string
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.upErr
}

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return nil
}

func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.forced = v
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return f.version, false, f.verErr
}

func TestRunDefaultsToUpAndToleratesNoChange(t *testing.T) {
	m := &fakeMigrator{upErr: migrate.ErrNoChange}
	if err := run(m, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(m.calls) != 1 || m.calls[0] != "up" {
		t.Fatalf("expected a single up call, got %v", m.calls)
	}
}

func TestRunUpFailure(t *testing.T) {
	if err := run(&fakeMigrator{upErr: errors.New("dirty database")}, []string{"up"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunDownStepsBackwards(t *testing.T) {
	m := &fakeMigrator{}
	if err := run(m, []string{"down", "2"}); err != nil {
		t.Fatalf("down: %v", err)
	}
	if m.steps != -2 {
		t.Fatalf("expected -2 steps, got %d", m.steps)
	}
	if err := run(&fakeMigrator{}, []string{"down", "0"}); err == nil {
		t.Fatalf("expected error for zero steps")
	}
}

func TestRunForce(t *testing.T) {
	m := &fakeMigrator{}
	if err := run(m, []string{"force", "1"}); err != nil {
		t.Fatalf("force: %v", err)
	}
	if m.forced != 1 {
		t.Fatalf("expected forced version 1, got %d", m.forced)
	}
	if err := run(m, []string{"force"}); err == nil {
		t.Fatalf("expected error for missing version")
	}
	if err := run(m, []string{"force", "x"}); err == nil {
		t.Fatalf("expected error for invalid version")
	}
}

func TestRunVersionWithoutMigrations(t *testing.T) {
	if err := run(&fakeMigrator{verErr: migrate.ErrNilVersion}, []string{"version"}); err != nil {
		t.Fatalf("expected nil version to be reported, got %v", err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if err := run(&fakeMigrator{}, []string{"sideways"}); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
