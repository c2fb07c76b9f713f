package marker

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// zombie reads the state field of /proc/<pid>/stat.
func zombie(pid int) bool {
	data, err := os.ReadFile(filepath.Join("/proc", pidString(pid), "stat"))
	if err != nil {
		return false
	}
	// comm may contain spaces and parens; the state follows the last ')'.
	i := bytes.LastIndexByte(data, ')')
	if i < 0 || i+2 >= len(data) {
		return false
	}
	return data[i+2] == 'Z'
}

// executable resolves /proc/<pid>/exe. A binary replaced on disk while the
// process runs reads back with a " (deleted)" suffix; it is still the same
// program.
func executable(pid int) (string, bool) {
	p, err := os.Readlink(filepath.Join("/proc", pidString(pid), "exe"))
	if err != nil {
		return "", false
	}
	return strings.TrimSuffix(p, " (deleted)"), true
}
