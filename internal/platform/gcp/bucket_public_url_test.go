package gcp

import (
	"strings"
	"testing"
)

func TestResolveObjectStoragePublicBaseURLGCSDefault(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")

	baseURL, source, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{
		Mode: ObjectStorageModeGCS,
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "" {
		t.Fatalf("baseURL: want empty got=%q", baseURL)
	}
	if source != "gcs_default" {
		t.Fatalf("source: want=%q got=%q", "gcs_default", source)
	}
}

func TestResolveObjectStoragePublicBaseURLEmulatorFallback(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")

	baseURL, source, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "http://fake-gcs:4443" {
		t.Fatalf("baseURL: want=%q got=%q", "http://fake-gcs:4443", baseURL)
	}
	if source != "storage_emulator_host" {
		t.Fatalf("source: want=%q got=%q", "storage_emulator_host", source)
	}
}

func TestResolveObjectStoragePublicBaseURLEnvOverride(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "http://localhost:4443/")

	baseURL, source, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err != nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: %v", err)
	}
	if baseURL != "http://localhost:4443" {
		t.Fatalf("baseURL: want=%q got=%q", "http://localhost:4443", baseURL)
	}
	if source != "object_storage_public_base_url" {
		t.Fatalf("source: want=%q got=%q", "object_storage_public_base_url", source)
	}
}

func TestResolveObjectStoragePublicBaseURLInvalidEnv(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "localhost:4443")

	_, _, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443",
	})
	if err == nil {
		t.Fatalf("resolveObjectStoragePublicBaseURL: expected error, got nil")
	}
}

func TestPublicURLGCSDefault(t *testing.T) {
	bs := &bucketService{bucketName: "recall-content"}

	got := bs.PublicURL("covers/abc/cover.png")
	want := "https://storage.googleapis.com/recall-content/covers/abc/cover.png"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestPublicURLUsesCDNDomain(t *testing.T) {
	bs := &bucketService{
		bucketName: "recall-content",
		cdnDomain:  "cdn.example.com",
	}

	got := bs.PublicURL("web/deadbeef/content.md")
	want := "https://cdn.example.com/web/deadbeef/content.md"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestPublicURLUsesPublicBaseURL(t *testing.T) {
	bs := &bucketService{
		publicBaseURL: "http://localhost:4443",
		bucketName:    "recall-content",
	}

	got := bs.PublicURL("/youtube/vid123/transcript.txt")
	want := "http://localhost:4443/recall-content/youtube/vid123/transcript.txt"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestPublicURLUsesEmulatorMediaEndpoint(t *testing.T) {
	bs := &bucketService{
		storageMode:   ObjectStorageModeGCSEmulator,
		publicBaseURL: "http://localhost:4443",
		bucketName:    "recall-content",
	}

	got := bs.PublicURL("covers/abc/cover.png")
	want := "http://localhost:4443/storage/v1/b/recall-content/o/covers%2Fabc%2Fcover.png?alt=media"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestPublicURLUsesEmulatorHostWhenPublicBaseMissing(t *testing.T) {
	bs := &bucketService{
		storageMode:  ObjectStorageModeGCSEmulator,
		emulatorHost: "http://fake-gcs:4443",
		bucketName:   "recall-content",
	}

	got := bs.PublicURL("/covers/abc/cover.png")
	want := "http://fake-gcs:4443/storage/v1/b/recall-content/o/covers%2Fabc%2Fcover.png?alt=media"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestContentTypeForBlobLayoutKeys(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"youtube/vid123/transcript.txt", "text/plain; charset=utf-8"},
		{"youtube/vid123/metadata.json", "application/json"},
		{"web/deadbeef/content.md", "text/markdown; charset=utf-8"},
		{"covers/abc/cover.png", "image/png"},
		{"document/abc/report.pdf", "application/pdf"},
		{"audio/abc/talk.mp3", "audio/mpeg"},
		{"video/abc/talk.mp4", "video/mp4"},
		{"document/abc/raw.bin", ""},
	}
	for _, tc := range cases {
		if got := contentTypeForKey(tc.key); got != tc.want {
			t.Fatalf("contentTypeForKey(%q): want=%q got=%q", tc.key, tc.want, got)
		}
	}
}

func TestPublicURLEscapesObjectKey(t *testing.T) {
	bs := &bucketService{
		storageMode:   ObjectStorageModeGCSEmulator,
		publicBaseURL: "http://localhost:4443",
		bucketName:    "recall-content",
	}

	publicURL := bs.PublicURL("web/a b/content.md")
	if !strings.HasPrefix(publicURL, "http://localhost:4443/storage/v1/b/recall-content/o/") {
		t.Fatalf("publicURL prefix mismatch: %s", publicURL)
	}
	if !strings.Contains(publicURL, "alt=media") {
		t.Fatalf("publicURL should include alt=media: %s", publicURL)
	}
	if strings.Contains(publicURL, " ") {
		t.Fatalf("publicURL should escape the object key: %s", publicURL)
	}
}
