package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// maxImageBytes bounds thumbnails sent over the bridge.
const maxImageBytes = 16 << 20

type EncodeImage struct {
	Fs afero.Fs
}

// Execute reads the file at path and returns it base64-encoded.
func (uc EncodeImage) Execute(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	fs := uc.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	info, err := fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidPath, path)
	}
	if info.Size() > maxImageBytes {
		return "", fmt.Errorf("%w: image is %d bytes, limit %d", ErrInvalidPath, info.Size(), maxImageBytes)
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
