// Package hostsfile mirrors discovered hostnames into the system hosts
// file between a pair of literal markers.
package hostsfile

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
)

const (
	header        = "### START AUTOFORWARD"
	footer        = "### END AUTOFORWARD"
	lineSeparator = "\n"
)

// DefaultPath is the hosts file mirrored into on POSIX hosts.
const DefaultPath = "/etc/hosts"

// Update rewrites the hosts file at path so that the block between the
// AUTOFORWARD markers (inserting one if absent) lists exactly the given
// hostnames, each as "127.0.0.1 <hostname>". Bytes outside the marker
// block are preserved exactly. Applying Update twice with the same hosts
// is idempotent: the second call is a byte-identical no-op.
func Update(path string, hosts []string) error {
	input, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrapf(err, "reading %s", path)
		}
		input = nil
	}

	result := insertOrReplace(input, renderEntries(hosts))

	if err := os.WriteFile(path, result, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

func insertOrReplace(input []byte, block []byte) []byte {
	start := bytes.Index(input, []byte(header))
	end := bytes.Index(input, []byte(footer))
	if start < 0 || end < 0 || end < start {
		var out bytes.Buffer
		out.Write(input)
		out.WriteString(lineSeparator)
		out.WriteString(header)
		out.WriteString(lineSeparator)
		out.Write(block)
		out.WriteString(footer)
		out.WriteString(lineSeparator)
		return out.Bytes()
	}

	var out bytes.Buffer
	out.Write(input[:start])
	out.WriteString(header)
	out.WriteString(lineSeparator)
	out.Write(block)
	out.WriteString(footer)
	out.Write(input[end+len(footer):])
	return out.Bytes()
}

func renderEntries(hosts []string) []byte {
	var out bytes.Buffer
	for _, host := range hosts {
		out.WriteString("127.0.0.1 ")
		out.WriteString(host)
		out.WriteString(lineSeparator)
	}
	return out.Bytes()
}
