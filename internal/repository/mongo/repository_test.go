package mongo

import (
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"torrentbridge/internal/domain"
	"torrentbridge/internal/domain/ports"
)

var _ ports.JobRepository = (*JobRepository)(nil)

func TestToDocFromDocRoundtrip(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	record := domain.JobRecord{
		ID:             "job-1",
		MagnetURI:      "magnet:?xt=urn:btih:d2354e",
		DestinationDir: "/media/downloads",
		State:          domain.JobPaused,
		FileName:       "episode.mkv",
		FilePath:       "/media/downloads/Show/episode.mkv",
		Size:           4096,
		Downloaded:     1024,
		Uploaded:       512,
		CreatedAt:      now,
		UpdatedAt:      now.Add(time.Minute),
	}

	got := fromDoc(toDoc(record))
	if !got.CreatedAt.Equal(record.CreatedAt) || !got.UpdatedAt.Equal(record.UpdatedAt) {
		t.Fatalf("timestamps: got %v/%v, want %v/%v", got.CreatedAt, got.UpdatedAt, record.CreatedAt, record.UpdatedAt)
	}
	got.CreatedAt, got.UpdatedAt = record.CreatedAt, record.UpdatedAt
	if !reflect.DeepEqual(got, record) {
		t.Fatalf("roundtrip mismatch:\n got  %+v\n want %+v", got, record)
	}
}

func TestToDocTruncatesToSeconds(t *testing.T) {
	created := time.Date(2026, 3, 4, 10, 0, 0, 999_000_000, time.UTC)
	doc := toDoc(domain.JobRecord{ID: "j", CreatedAt: created})
	if doc.CreatedAt != created.Unix() {
		t.Fatalf("createdAt = %d, want %d", doc.CreatedAt, created.Unix())
	}
	if got := fromDoc(doc).CreatedAt; !got.Equal(created.Truncate(time.Second)) {
		t.Fatalf("decoded createdAt = %v", got)
	}
}

func TestJobDocBSONFieldNames(t *testing.T) {
	doc := toDoc(domain.JobRecord{
		ID:        "job-1",
		MagnetURI: "magnet:?xt=urn:btih:abc",
		State:     domain.JobDownloading,
	})
	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"_id", "magnetUri", "destinationDir", "state", "size", "downloaded", "uploaded", "createdAt", "updatedAt"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing bson field %q", key)
		}
	}
	if _, ok := m["fileName"]; ok {
		t.Errorf("empty fileName should be omitted")
	}
	if m["_id"] != "job-1" || m["state"] != "downloading" {
		t.Fatalf("unexpected doc %v", m)
	}
}
