//go:build !windows

package cmdutil

import "os"

// isSuperuser reports whether the process is running as root.
func isSuperuser() bool {
	return os.Geteuid() == 0
}
