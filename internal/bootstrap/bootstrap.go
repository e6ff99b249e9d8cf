// Package bootstrap locates the bundled native ML runtime and composes the
// environment the training interpreter needs to load it.
//
// It is the launcher's first initialization phase: main calls Init before any
// command runs, and every child interpreter is started with the Env it
// returns. The launcher's own process environment is never modified.
package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocationFlag names the command-line flag carrying the runtime base directory.
const LocationFlag = "--TorchLocation"

// LocationEnv names the environment variable consulted when the flag is absent.
const LocationEnv = "TRAINLAUNCH_TORCH_LOCATION"

// BundleDirEnv is exported by packagers that extract the runtime next to a
// frozen launcher build.
const BundleDirEnv = "TRAINLAUNCH_BUNDLE_DIR"

// Environment variables touched by Apply.
const (
	PythonPathVar  = "PYTHONPATH"
	LibraryPathVar = "LD_LIBRARY_PATH"
	WindowsPathVar = "PATH"
)

// Source records where the base directory came from.
type Source string

const (
	SourceFlag   Source = "flag"
	SourceEnv    Source = "env"
	SourceBundle Source = "bundle"
	SourceCwd    Source = "cwd"
)

// Base is the resolved runtime root.
type Base struct {
	Dir    string
	Source Source
}

// Layout holds the directories derived from a Base.
type Layout struct {
	PythonDir string
	LibDir    string
}

// Runtime is the outcome of the bootstrap phase.
type Runtime struct {
	Base   Base
	Layout Layout
	Env    *Env
	// Registered is set when the library directory was registered with the
	// OS loader.
	Registered bool
}

// Registrar registers a directory with the operating system's library loader.
type Registrar interface {
	Register(dir string) error
}

// Resolve picks the base directory. An explicit --TorchLocation value wins,
// then location (from LocationEnv), then the bundle extraction directory,
// then the working directory. The result is not checked for existence.
func Resolve(args []string, location, bundleDir string, getwd func() (string, error)) Base {
	if dir := locationFromArgs(args); dir != "" {
		return Base{Dir: dir, Source: SourceFlag}
	}
	if location != "" {
		return Base{Dir: location, Source: SourceEnv}
	}
	if bundleDir != "" {
		return Base{Dir: bundleDir, Source: SourceBundle}
	}
	dir, err := getwd()
	if err != nil {
		dir = "."
	}
	return Base{Dir: dir, Source: SourceCwd}
}

func locationFromArgs(args []string) string {
	for i, arg := range args {
		if arg == LocationFlag {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if v, ok := strings.CutPrefix(arg, LocationFlag+"="); ok {
			return v
		}
	}
	return ""
}

// LayoutFor derives the package and native library directories for goos.
func LayoutFor(base Base, goos string) Layout {
	lib := "lib"
	if goos == "windows" {
		lib = "bin"
	}
	return Layout{
		PythonDir: filepath.Join(base.Dir, "python"),
		LibDir:    filepath.Join(base.Dir, lib),
	}
}

// Apply puts the runtime's package directory at the front of the
// interpreter's module search path and makes its native libraries loadable.
// On Windows the library directory is registered through reg and also
// prepended to PATH for child processes; elsewhere it is prepended to
// LD_LIBRARY_PATH. Prior values are kept after the list separator.
func Apply(base Base, goos string, env *Env, reg Registrar) (Runtime, error) {
	layout := LayoutFor(base, goos)
	sep := ":"
	if goos == "windows" {
		sep = ";"
	}

	env.Prepend(PythonPathVar, layout.PythonDir, sep)

	rt := Runtime{Base: base, Layout: layout, Env: env}
	if goos == "windows" {
		if reg != nil {
			if err := reg.Register(layout.LibDir); err != nil {
				return rt, err
			}
			rt.Registered = true
		}
		env.Prepend(WindowsPathVar, layout.LibDir, sep)
		return rt, nil
	}

	env.Prepend(LibraryPathVar, layout.LibDir, sep)
	return rt, nil
}

var (
	initOnce    sync.Once
	initRuntime Runtime
	initErr     error
)

// Init runs the bootstrap phase for this process: it resolves the base
// directory from args, environ and the working directory, then applies it to
// a copy of environ. Only the first call does any work; later calls return
// the same result.
func Init(args, environ []string, goos string) (Runtime, error) {
	initOnce.Do(func() {
		initRuntime, initErr = initialize(args, environ, goos, os.Getwd, NativeRegistrar())
	})
	return initRuntime, initErr
}

func initialize(args, environ []string, goos string, getwd func() (string, error), reg Registrar) (Runtime, error) {
	env := NewEnv(environ, goos == "windows")
	location, _ := env.Get(LocationEnv)
	bundle, _ := env.Get(BundleDirEnv)
	return Apply(Resolve(args, location, bundle, getwd), goos, env, reg)
}
