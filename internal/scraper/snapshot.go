package scraper

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SnapshotWriter stores raw pages that failed to parse so selectors can be
// fixed offline. A zero or disabled writer does nothing.
type SnapshotWriter struct {
	Dir     string
	Enabled bool
}

// Save writes page under Dir/<retailer>/ and returns the file path.
func (w *SnapshotWriter) Save(retailer string, productID int64, page []byte) (string, error) {
	if w == nil || !w.Enabled || len(page) == 0 {
		return "", nil
	}

	dir := filepath.Join(w.Dir, retailer)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}

	name := fmt.Sprintf("%d-%s.html", productID, time.Now().UTC().Format("20060102T150405.000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, page, 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}
