//go:build !windows

package bootstrap

// NativeRegistrar returns nil: outside Windows the loader is configured
// through LD_LIBRARY_PATH only.
func NativeRegistrar() Registrar {
	return nil
}
