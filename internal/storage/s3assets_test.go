package storage

import (
	"errors"
	"testing"

	"github.com/starford/versebook/internal/apperr"
)

func TestNewS3AssetsRequiresBucket(t *testing.T) {
	if _, err := NewS3Assets(S3Options{Endpoint: "localhost:9000"}); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestS3AssetsURL(t *testing.T) {
	s, err := NewS3Assets(S3Options{Endpoint: "localhost:9000", Bucket: "verses", Prefix: "/images/"})
	if err != nil {
		t.Fatalf("NewS3Assets: %v", err)
	}
	if got := s.URL("a.png"); got != "http://localhost:9000/verses/images/a.png" {
		t.Errorf("URL = %q", got)
	}

	s, err = NewS3Assets(S3Options{Endpoint: "s3.example.com", Bucket: "b", UseSSL: true, PublicURL: "https://cdn.example.com/"})
	if err != nil {
		t.Fatalf("NewS3Assets: %v", err)
	}
	if got := s.URL("a.png"); got != "https://cdn.example.com/a.png" {
		t.Errorf("URL = %q", got)
	}
}
