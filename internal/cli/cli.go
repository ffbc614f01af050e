// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli holds the common setup of the example programs.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitSetup = 1 // Setup or runtime failure
	ExitUsage = 2 // Bad command line
)

// ErrNotRoot is returned when the program is not run as root.
var ErrNotRoot = errors.New("must be run as root")

var geteuid = unix.Geteuid

// RequireRoot returns ErrNotRoot unless the effective user is root,
// which is needed to map the PRU and timer registers.
func RequireRoot() error {
	if geteuid() != 0 {
		return ErrNotRoot
	}
	return nil
}

// Usage reports a command line error and the flag defaults, then exits.
func Usage(format string, args ...interface{}) {
	usage(os.Stderr, format, args...)
	os.Exit(ExitUsage)
}

func usage(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s: %s\n", progName(), fmt.Sprintf(format, args...))
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}

// Fatal reports a setup or runtime error and exits.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", progName(), err)
	os.Exit(ExitSetup)
}

// Setup parses the flags and checks privileges. Extra arguments, or an
// error from any of the checks, is a usage error. The checks are run
// before the privilege check, so a bad command line always exits with ExitUsage.
func Setup(checks ...func() error) {
	if err := parse(flag.CommandLine, os.Args[1:], checks); err != nil {
		Usage("%v", err)
	}
	if err := RequireRoot(); err != nil {
		Fatal(err)
	}
}

func parse(fs *flag.FlagSet, args []string, checks []func() error) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("unexpected arguments %q", fs.Args())
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func progName() string {
	if len(os.Args) == 0 {
		return "pru"
	}
	return os.Args[0]
}
