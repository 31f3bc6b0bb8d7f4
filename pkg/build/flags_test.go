// SPDX-License-Identifier: MIT
package build

import (
	"errors"
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origFlags = *buildFlags

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildFlags = origFlags

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantMissing []string
		wantFlags   ldFlags
	}{
		{
			name:        "Missing BuildName",
			buildTime:   "2025-04-13",
			buildCommit: "abcdef123",
			buildVer:    "v1.0.0",
			wantMissing: []string{"BuildName"},
			wantFlags:   ldFlags{Name: "vocalsnr", Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"},
		},
		{
			name:        "Missing BuildCommit and BuildVersion",
			buildName:   "testapp",
			buildTime:   "2025-04-13",
			wantMissing: []string{"BuildCommit", "BuildVersion"},
			wantFlags:   ldFlags{Name: "testapp", Time: "2025-04-13", Commit: "unknown", Version: "dev"},
		},
		{
			name:        "Development build",
			wantMissing: []string{"BuildName", "BuildTime", "BuildCommit", "BuildVersion"},
			wantFlags:   ldFlags{Name: "vocalsnr", Time: "unknown", Commit: "unknown", Version: "dev"},
		},
		{
			name:        "Success Case",
			buildName:   "testapp",
			buildTime:   "2025-04-13",
			buildCommit: "abcdef123",
			buildVer:    "v1.0.0",
			wantFlags:   ldFlags{Name: "testapp", Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildFlags = defaultFlags()
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if len(tt.wantMissing) == 0 {
				if err != nil {
					t.Fatalf("Initialize() unexpected error: %v", err)
				}
			} else {
				if !errors.Is(err, ErrMissingFlag) {
					t.Fatalf("Initialize() error = %v, want ErrMissingFlag", err)
				}
				for _, name := range tt.wantMissing {
					if !strings.Contains(err.Error(), name) {
						t.Errorf("Initialize() error %q does not name %s", err, name)
					}
				}
			}

			got := *buildFlags
			got.Description = ""
			if got != tt.wantFlags {
				t.Errorf("buildFlags = %+v, want %+v", got, tt.wantFlags)
			}
		})
	}
}

func TestGetBuildFlags(t *testing.T) {
	expected := ldFlags{
		Name:    "testapp",
		Time:    "2025-04-13",
		Commit:  "abcdef123",
		Version: "v1.0.0",
	}
	buildFlags = &expected

	flags := GetBuildFlags()
	if *flags != expected {
		t.Errorf("GetBuildFlags() = %+v, want %+v", flags, expected)
	}
	if got, want := flags.String(), "testapp v1.0.0 (commit abcdef123, built 2025-04-13)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
