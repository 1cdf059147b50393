package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// maxProbe bounds the search so a pattern that ignores its argument cannot
// loop forever.
const maxProbe = 1 << 20

// NextFreeIndex returns the smallest n >= 0 for which fmt.Sprintf(pattern, n)
// names a path that does not exist yet.
func NextFreeIndex(pattern string) (int, error) {
	if !strings.Contains(pattern, "%") {
		return 0, fmt.Errorf("path pattern %q has no verb for the index", pattern)
	}

	for i := 0; i < maxProbe; i++ {
		path := fmt.Sprintf(pattern, i)
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return i, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to probe %s: %w", path, err)
		}
	}

	return 0, fmt.Errorf("no free index for pattern %q", pattern)
}
