package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/testutil"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func newIntake(t *testing.T) (*Intake, *testutil.MemoryStore) {
	t.Helper()
	store := testutil.NewMemoryStore()
	return New(store, WithClock(testutil.NewClock(testutil.Epoch).Now)), store
}

func TestUploadStoresUniqueNames(t *testing.T) {
	in, store := newIntake(t)
	ctx := context.Background()

	a, err := in.Upload(ctx, pngBytes, "My Photo.png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	b, err := in.Upload(ctx, pngBytes, "My Photo.png")
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	if a.Name == b.Name {
		t.Errorf("names collide: %s", a.Name)
	}
	if !strings.HasSuffix(a.Name, "-My_Photo.png") || len(a.Name) != 26+len("-My_Photo.png") {
		t.Errorf("name = %q", a.Name)
	}
	if a.URL != "memory://images/"+a.Name || a.ContentType != "image/png" || a.Size != len(pngBytes) {
		t.Errorf("asset = %+v", a)
	}
	if _, ok := store.Asset(a.Name); !ok {
		t.Error("asset not stored")
	}
	if a.Name >= b.Name {
		t.Error("names should sort by upload order")
	}
}

func TestUploadRejects(t *testing.T) {
	in, _ := newIntake(t)
	ctx := context.Background()
	cases := []struct {
		name     string
		data     []byte
		filename string
	}{
		{"empty", nil, "a.png"},
		{"extension", pngBytes, "a.exe"},
		{"mismatch", []byte("GIF89a......"), "a.png"},
		{"not svg", []byte("<html></html>"), "a.svg"},
		{"too large", make([]byte, MaxSize+1), "a.png"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := in.Upload(ctx, tc.data, tc.filename); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestUploadAcceptsJPEGAliases(t *testing.T) {
	in, _ := newIntake(t)
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 32)...)
	for _, name := range []string{"a.jpg", "a.jpeg", "A.JPG"} {
		if _, err := in.Upload(context.Background(), jpeg, name); err != nil {
			t.Errorf("Upload(%s): %v", name, err)
		}
	}
}

func TestUploadSourceDataURI(t *testing.T) {
	in, store := newIntake(t)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	a, err := in.UploadSource(context.Background(), uri, "")
	if err != nil {
		t.Fatalf("UploadSource: %v", err)
	}
	if !strings.HasSuffix(a.Name, "-asset.png") {
		t.Errorf("name = %q", a.Name)
	}
	if got, _ := store.Asset(a.Name); string(got) != string(pngBytes) {
		t.Error("stored bytes differ")
	}
}

func TestDecodeDataURI(t *testing.T) {
	if _, _, err := DecodeDataURI("data:image/png;base64"); err == nil {
		t.Error("missing comma should fail")
	}
	if _, _, err := DecodeDataURI("data:text/plain,hello"); err == nil {
		t.Error("non-base64 should fail")
	}
	if _, _, err := DecodeDataURI("data:text/plain;base64,aGVsbG8="); err == nil {
		t.Error("unsupported mime should fail")
	}
	raw := "data:image/gif;base64," + base64.RawStdEncoding.EncodeToString([]byte("GIF89a1"))
	data, ext, err := DecodeDataURI(raw)
	if err != nil || ext != ".gif" || string(data) != "GIF89a1" {
		t.Errorf("DecodeDataURI = %q %q %v", data, ext, err)
	}
}

func TestUploadSourceBlocksLoopback(t *testing.T) {
	in, _ := newIntake(t)
	for _, u := range []string{"http://127.0.0.1/a.png", "http://169.254.169.254/latest", "ftp://example.com/a.png"} {
		if _, err := in.UploadSource(context.Background(), u, ""); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("UploadSource(%s) = %v, want ErrValidation", u, err)
		}
	}
}

func TestFilenameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/img/cross.png?x=1": "cross.png",
		"https://example.com/":                  "asset.png",
		"data:image/png;base64,AAAA":            "asset.png",
	}
	for in, want := range cases {
		if got := filenameFromURL(in, ".png"); got != want {
			t.Errorf("filenameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
	if got := sanitizeFilename("../../etc/pass wd"); got != "pass_wd" {
		t.Errorf("sanitizeFilename = %q", got)
	}
}
