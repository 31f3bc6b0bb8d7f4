// SPDX-License-Identifier: MIT
//
// Package build holds build metadata embedded with linker flags, for
// example:
//
//	go build -ldflags "-X vocalsnr/pkg/build.buildVersion=0.3.0 -X vocalsnr/pkg/build.buildCommit=$(git rev-parse --short HEAD)"
//
// Development builds run without them and report "dev" and "unknown".
package build

import (
	"errors"
	"fmt"
)

// ErrMissingFlag is wrapped by Initialize for every flag not set at link time.
var ErrMissingFlag = errors.New("build flag not set")

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultFlags()
)

func defaultFlags() *ldFlags {
	return &ldFlags{
		Name:        "vocalsnr",
		Description: "Real-time microphone SNR meter for vocal rehabilitation",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the linker-provided values into the build flags. Flags
// that were not provided keep their defaults and are reported in the
// returned error; callers treat it as a warning.
func Initialize() error {
	var errs []error
	set := func(dst *string, src, name string) {
		if src == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingFlag, name))
			return
		}
		*dst = src
	}
	set(&buildFlags.Name, buildName, "BuildName")
	set(&buildFlags.Time, buildTime, "BuildTime")
	set(&buildFlags.Commit, buildCommit, "BuildCommit")
	set(&buildFlags.Version, buildVersion, "BuildVersion")
	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String renders a one-line version banner.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}
