package db

import (
	"errors"
	"testing"
)

func TestParseDirection(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{in: "up", want: Up},
		{in: " DOWN ", want: Down},
		{in: "Up", want: Up},
		{in: "", wantErr: true},
		{in: "sideways", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseDirection(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrDirection) {
				t.Fatalf("ParseDirection(%q): expected ErrDirection, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseDirection(%q)=%q,%v want=%q", tc.in, got, err, tc.want)
		}
	}
}

func TestMigrate_EmptyDSN(t *testing.T) {
	t.Parallel()

	if err := Migrate("   ", Up); !errors.Is(err, ErrNoDSN) {
		t.Fatalf("expected ErrNoDSN, got %v", err)
	}
}

func TestMigrate_InvalidDirection(t *testing.T) {
	t.Parallel()

	if err := Migrate("postgres://localhost/test", Direction("left")); !errors.Is(err, ErrDirection) {
		t.Fatalf("expected ErrDirection, got %v", err)
	}
}

func TestMigrationFS_HasPairs(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"migrations/000001_init.up.sql", "migrations/000001_init.down.sql"} {
		b, err := MigrationFS.ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", name, err)
		}
		if len(b) == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}
