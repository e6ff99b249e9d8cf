//go:build windows

package bootstrap

import (
	"fmt"

	"golang.org/x/sys/windows"
)

type dllDirectoryRegistrar struct{}

// NativeRegistrar returns the loader registration for this platform.
func NativeRegistrar() Registrar {
	return dllDirectoryRegistrar{}
}

func (dllDirectoryRegistrar) Register(dir string) error {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return fmt.Errorf("invalid dll directory %q: %w", dir, err)
	}
	if _, err := windows.AddDllDirectory(p); err != nil {
		return fmt.Errorf("failed to add dll directory %s: %w", dir, err)
	}
	return nil
}
