package patch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/minios-linux/binloc/extract"
)

// StagingDir is the subdirectory of the output dir holding patched copies.
const StagingDir = "reinjected"

// BackupSuffix is appended to a file's path to name its persistent backup.
const BackupSuffix = ".backup"

// Options configures File.
type Options struct {
	// StagingDir receives the patched copy, at <StagingDir>/<PathKey>/<base>,
	// before it replaces the original. Empty means <path>.patched.
	StagingDir string
	// Logger receives per-site warnings. Nil means no logging.
	Logger *zap.Logger
}

// FileResult extends Result with the paths File touched.
type FileResult struct {
	Result
	Staged string
	Backup string
}

// File patches path in place. The patched content is written to the
// staging dir first, a backup of the original is taken once, and the staged
// content then replaces the original atomically.
func File(path string, m *extract.Manifest, translations []string, opts Options) (FileResult, error) {
	var fr FileResult
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		return fr, fmt.Errorf("%w: %s", ErrNoManifest, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fr, fmt.Errorf("%w: %s: %v", extract.ErrUnreadable, path, err)
	}
	if !m.Matches(data) {
		return fr, fmt.Errorf("%w: %s", ErrStaleManifest, path)
	}

	out, res, err := Patch(data, m, translations)
	if err != nil {
		return fr, fmt.Errorf("patching %s: %w", path, err)
	}
	fr.Result = res
	for _, w := range res.Warnings {
		logger.Warn("patch", zap.String("file", path), zap.String("warning", w))
	}

	info, err := os.Stat(path)
	if err != nil {
		return fr, err
	}
	stagingDir := filepath.Dir(path)
	fr.Staged = path + ".patched"
	if opts.StagingDir != "" {
		// Copies keep their file name under a directory named for the source path.
		stagingDir = filepath.Join(opts.StagingDir, extract.PathKey(path))
		fr.Staged = filepath.Join(stagingDir, filepath.Base(path))
	}
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fr, fmt.Errorf("creating %s: %w", stagingDir, err)
	}
	if err := writeAtomic(fr.Staged, out, info.Mode().Perm()); err != nil {
		return fr, fmt.Errorf("staging %s: %w", path, err)
	}

	if fr.Backup, err = Backup(path); err != nil {
		return fr, err
	}
	if err := writeAtomic(path, out, info.Mode().Perm()); err != nil {
		return fr, fmt.Errorf("replacing %s: %w", path, err)
	}

	logger.Info("patched",
		zap.String("file", path),
		zap.Int("applied", res.Applied),
		zap.Int("skipped", res.Skipped),
		zap.Int("fallbacks", res.Fallbacks),
		zap.Int64("delta", res.Delta),
	)
	return fr, nil
}

// LocateManifest finds the manifest saved under dir for the current content
// of path. When only manifests for other content exist the file changed
// after extraction and ErrStaleManifest is returned.
func LocateManifest(dir, path string) (*extract.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", extract.ErrUnreadable, path, err)
	}
	m, _, err := extract.FindManifest(dir, path, data)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	current := extract.ManifestPath(dir, path, extract.HashBytes(data))
	base := filepath.Base(current)
	prefix := base[:strings.LastIndex(base, "-")]
	others, _ := filepath.Glob(filepath.Join(filepath.Dir(current), prefix+"-*.yaml"))
	if len(others) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrStaleManifest, path)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoManifest, path)
}

// ---------------------------------------------------------------------------
// Backups
// ---------------------------------------------------------------------------

// BackupPath returns the persistent backup location for path.
func BackupPath(path string) string {
	return path + BackupSuffix
}

// Backup copies path to its backup location unless a backup already exists.
// An existing backup is never overwritten, so it always holds the content
// from before the first patch.
func Backup(path string) (string, error) {
	bp := BackupPath(path)
	if _, err := os.Stat(bp); err == nil {
		return bp, nil
	}
	if err := CopyFile(path, bp); err != nil {
		return "", fmt.Errorf("backing up %s: %w", path, err)
	}
	return bp, nil
}

// Restore replaces path with its backup. The backup itself is kept.
func Restore(path string) error {
	bp := BackupPath(path)
	if _, err := os.Stat(bp); err != nil {
		return fmt.Errorf("no backup for %s: %w", path, err)
	}
	if err := CopyFile(bp, path); err != nil {
		return fmt.Errorf("restoring %s: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst atomically, keeping src's permissions.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeAtomic(dst, data, info.Mode().Perm())
}

// writeAtomic writes data to a temp file in dst's directory and renames it
// into place.
func writeAtomic(dst string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
