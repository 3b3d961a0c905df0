package snapshot

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sectorfs/sectorfs/image"
)

func TestExportImportRoundTripLZ4(t *testing.T) {
	testExportImportRoundTrip(t, LZ4)
}

func TestExportImportRoundTripXZ(t *testing.T) {
	testExportImportRoundTrip(t, XZ)
}

func testExportImportRoundTrip(t *testing.T, codec Codec) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	img, err := image.Create(path, 8192)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	defer img.Close()

	payload := bytes.Repeat([]byte{0x7, 0x1, 0x2, 0x3}, 1024)
	if err := img.WriteBlock(0, payload); err != nil {
		t.Fatalf("write block: %v", err)
	}

	var buf bytes.Buffer
	if err := Export(img, &buf, codec); err != nil {
		t.Fatalf("export with codec %s: %v", codec, err)
	}

	data, err := Import(&buf, codec)
	if err != nil {
		t.Fatalf("import with codec %s: %v", codec, err)
	}
	if int64(len(data)) != img.Size {
		t.Fatalf("expected %d bytes back, got %d", img.Size, len(data))
	}
	if !bytes.Equal(data[:len(payload)], payload) {
		t.Fatalf("payload mismatch after round trip through codec %s", codec)
	}
}

func TestExportUnregisteredCodecFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	img, err := image.Create(path, 512)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	defer img.Close()

	var buf bytes.Buffer
	if err := Export(img, &buf, Codec(99)); err == nil {
		t.Fatalf("expected an error for an unregistered codec")
	}
}
