package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DumpDebug saves a full-page screenshot and the DOM of tab under dir,
// named after label and the current time. It returns the paths written.
// It is a diagnostic aid only: every failure is logged and skipped.
func DumpDebug(ctx context.Context, tab Tab, dir, label string) []string {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("debug dump: cannot create directory", "dir", dir, "error", err)
		return nil
	}
	base := filepath.Join(dir, fmt.Sprintf("%s-%d", label, time.Now().UnixMilli()))

	var written []string
	if png, err := tab.Screenshot(ctx); err != nil {
		slog.Warn("debug dump: screenshot failed", "error", err)
	} else if err := os.WriteFile(base+".png", png, 0o644); err != nil {
		slog.Warn("debug dump: write screenshot failed", "error", err)
	} else {
		written = append(written, base+".png")
	}

	if html, err := tab.HTML(ctx); err != nil {
		slog.Warn("debug dump: html capture failed", "error", err)
	} else if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		slog.Warn("debug dump: write html failed", "error", err)
	} else {
		written = append(written, base+".html")
	}

	if len(written) > 0 {
		slog.Info("debug dump saved", "files", written)
	}
	return written
}
