//go:build windows

package cmdutil

// isSuperuser always reports false on Windows: the elevated-admin check and
// the privileged-port bind/kill path are POSIX concepts this revision
// doesn't implement for Windows.
func isSuperuser() bool {
	return false
}
