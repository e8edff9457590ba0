package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestJobStateConstants(t *testing.T) {
	cases := map[JobState]string{
		JobMetadataPending: "metadata_pending",
		JobDownloading:     "downloading",
		JobPaused:          "paused",
		JobSeeding:         "seeding",
		JobFailed:          "failed",
	}
	for state, want := range cases {
		if string(state) != want {
			t.Fatalf("state = %q, want %q", state, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{JobMetadataPending, JobDownloading, true},
		{JobMetadataPending, JobPaused, true},
		{JobMetadataPending, JobFailed, true},
		{JobMetadataPending, JobSeeding, false},
		{JobDownloading, JobPaused, true},
		{JobDownloading, JobSeeding, true},
		{JobDownloading, JobMetadataPending, false},
		{JobPaused, JobDownloading, true},
		{JobPaused, JobSeeding, true},
		{JobSeeding, JobPaused, true},
		{JobSeeding, JobDownloading, false},
		{JobFailed, JobDownloading, false},
		{JobFailed, JobPaused, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestJobStateActive(t *testing.T) {
	if JobFailed.Active() {
		t.Fatalf("failed job must not be active")
	}
	if JobState("").Active() {
		t.Fatalf("empty state must not be active")
	}
	for _, s := range []JobState{JobMetadataPending, JobDownloading, JobPaused, JobSeeding} {
		if !s.Active() {
			t.Fatalf("%s should be active", s)
		}
	}
}

func TestJobRecordValidate(t *testing.T) {
	base := JobRecord{
		ID:        "job-1",
		MagnetURI: "magnet:?xt=urn:btih:abc",
		State:     JobDownloading,
		CreatedAt: time.Unix(1, 0),
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	noID := base
	noID.ID = ""
	if err := noID.Validate(); err == nil {
		t.Fatalf("expected error for empty id")
	}

	noMagnet := base
	noMagnet.MagnetURI = ""
	if err := noMagnet.Validate(); err == nil {
		t.Fatalf("expected error for empty magnet")
	}

	negative := base
	negative.Downloaded = -1
	if err := negative.Validate(); err == nil {
		t.Fatalf("expected error for negative counter")
	}

	badState := base
	badState.State = "unknown"
	if err := badState.Validate(); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{MetadataEvent{}, "torrent-metadata"},
		{ProgressEvent{}, "torrent-progress"},
		{DownloadBytesEvent{}, "torrent-download-bytes"},
		{UploadBytesEvent{}, "torrent-upload-bytes"},
		{DoneEvent{}, "torrent-done"},
		{TorrentErrorEvent{}, "torrent-error"},
		{CancelledEvent{}, "torrent-cancelled"},
		{StatusEvent{}, "torrent-status"},
		{ServerReadyEvent{}, "local-webserver-callback"},
		{Base64ImageEvent{}, "base64-image"},
		{AckEvent{Type: "tidy-vtt"}, "tidy-vtt"},
		{ErrorEvent{}, "error"},
	}
	for _, tc := range tests {
		if got := tc.ev.EventType(); got != tc.want {
			t.Fatalf("%T EventType = %q, want %q", tc.ev, got, tc.want)
		}
	}
}

func TestEventJSONTags(t *testing.T) {
	expectJSONTag(t, MetadataEvent{}, "CallbackID", "callbackId")
	expectJSONTag(t, MetadataEvent{}, "FileName", "fileName")
	expectJSONTag(t, ProgressEvent{}, "DownloadSpeed", "downloadSpeed")
	expectJSONTag(t, DoneEvent{}, "SourceFilePath", "sourceFilePath")
	expectJSONTag(t, DoneEvent{}, "SourceFileName", "sourceFileName")
	expectJSONTag(t, ServerReadyEvent{}, "URL", "url")
	expectJSONTag(t, AckEvent{}, "Type", "-")
	expectJSONTag(t, ErrorEvent{}, "CallbackID", "callbackId,omitempty")
}

func TestSentinelErrorsDistinct(t *testing.T) {
	all := []error{ErrNotFound, ErrAlreadyExists, ErrInvalidMagnet, ErrMetadataTimeout, ErrInvalidTransition}
	for i, a := range all {
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Fatalf("%v should not match %v", a, b)
			}
		}
	}
}

func expectJSONTag(t *testing.T, v interface{}, fieldName, want string) {
	t.Helper()
	typ := reflect.TypeOf(v)
	field, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("missing field %s", fieldName)
	}
	if got := field.Tag.Get("json"); got != want {
		t.Fatalf("%s json tag = %q, want %q", fieldName, got, want)
	}
}
