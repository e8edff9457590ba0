package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestTidySubtitlesExecute(t *testing.T) {
	fs := afero.NewMemMapFs()
	raw := "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\n{=3}Sign\n\n"
	if err := afero.WriteFile(fs, "/subs/a.vtt", []byte(raw), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stats, err := TidySubtitles{Fs: fs}.Execute(context.Background(), "/subs/a.vtt")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if stats.Kept != 1 {
		t.Fatalf("kept = %d, want 1", stats.Kept)
	}
	got, _ := afero.ReadFile(fs, "/subs/a.vtt")
	if !strings.Contains(string(got), "[Sign] Sign") {
		t.Fatalf("tidied = %q", got)
	}
}

func TestTidySubtitlesErrors(t *testing.T) {
	uc := TidySubtitles{Fs: afero.NewMemMapFs()}
	if _, err := uc.Execute(context.Background(), " "); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("empty path err = %v, want ErrInvalidPath", err)
	}
	if _, err := uc.Execute(context.Background(), "/missing.vtt"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err = %v, want not exist", err)
	}
}

func TestEncodeImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := []byte{0x89, 'P', 'N', 'G'}
	if err := afero.WriteFile(fs, "/thumbs/a.png", payload, 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	uc := EncodeImage{Fs: fs}

	got, err := uc.Execute(context.Background(), "/thumbs/a.png")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != base64.StdEncoding.EncodeToString(payload) {
		t.Fatalf("encoded = %q", got)
	}

	if _, err := uc.Execute(context.Background(), "/thumbs"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("directory err = %v, want ErrInvalidPath", err)
	}
	if _, err := uc.Execute(context.Background(), "/thumbs/missing.png"); err == nil {
		t.Fatalf("expected error for missing file")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := uc.Execute(ctx, "/thumbs/a.png"); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ctx err = %v", err)
	}
}
