// SPDX-License-Identifier: MIT

// Package build carries metadata injected at link time, for example:
//
//	go build -ldflags "-X linein/internal/build.buildVersion=0.2.0 -X linein/internal/build.buildCommit=$(git rev-parse --short HEAD)"
//
// Development builds leave the variables empty and report "unknown".
package build

import (
	"errors"
	"fmt"
)

const unknown = "unknown"

// Info is the metadata of the running binary.
type Info struct {
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

	info = Info{
		Name:        "linein",
		Description: "Live line-in spectrum monitor with optional loopback",
		Time:        unknown,
		Commit:      unknown,
		Version:     unknown,
	}
)

// Initialize copies the link-time values over the defaults. Missing values
// keep their defaults; the returned error lists them so release pipelines
// can fail on it while development builds ignore it.
func Initialize() error {
	var errs []error
	set := func(dst *string, v, flag string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is not set", flag))
			return
		}
		*dst = v
	}
	set(&info.Name, buildName, "buildName")
	set(&info.Time, buildTime, "buildTime")
	set(&info.Commit, buildCommit, "buildCommit")
	set(&info.Version, buildVersion, "buildVersion")
	return errors.Join(errs...)
}

// Get returns the current build information.
func Get() Info {
	return info
}

// String renders the version line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}
