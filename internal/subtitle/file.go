package subtitle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Stats summarises one TidyFile run.
type Stats struct {
	Parsed int
	Kept   int
}

// TidyFile rewrites the track at path in place. Nothing is written when the
// file cannot be read.
func TidyFile(fs afero.Fs, path string) (Stats, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return Stats{}, fmt.Errorf("read subtitle: %w", err)
	}

	cues := Parse(string(raw))
	stats := Stats{Parsed: len(cues)}
	cues = RemoveBackgrounds(cues)
	cues = MergeAdjacent(cues)
	cues = MarkSigns(cues)
	stats.Kept = len(cues)

	if err := writeFileAtomic(fs, path, []byte(Serialize(cues))); err != nil {
		return stats, err
	}
	return stats, nil
}

func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := fs.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := afero.TempFile(fs, filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp subtitle: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("write temp subtitle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("close temp subtitle: %w", err)
	}
	_ = fs.Chmod(tmpName, mode)
	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("replace subtitle: %w", err)
	}
	return nil
}
