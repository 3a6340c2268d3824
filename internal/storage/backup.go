package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bilancio/internal/core"
)

// Backup writes a consistent copy of the database into dir and returns its path.
// The file name carries the timestamp so successive backups never collide.
func (r *SQLiteRepository) Backup(ctx context.Context, dir string, now time.Time) (string, error) {
	if dir == "" {
		dir = filepath.Dir(r.path)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", core.Persistence("create backup directory", err)
	}

	base := filepath.Base(r.path)
	name := fmt.Sprintf("%s.%s.bak", base, now.UTC().Format("20060102T150405.000000000"))
	target := filepath.Join(dir, name)

	if _, err := r.db.ExecContext(ctx, `VACUUM INTO ?`, target); err != nil {
		return "", core.Persistence("backup database", err)
	}
	slog.InfoContext(ctx, "Database backup written", "path", target)
	return target, nil
}
