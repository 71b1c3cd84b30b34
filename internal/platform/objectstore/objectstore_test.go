package objectstore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestList_FiltersByPrefixInOrder(t *testing.T) {
	s := NewInMemoryObjectStore()
	s.Put("patient-1/b.dcm", []byte("b"))
	s.Put("patient-1/a.dcm", []byte("a"))
	s.Put("patient-2/c.dcm", []byte("c"))

	keys, err := s.List(context.Background(), "patient-1/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[0] != "patient-1/a.dcm" || keys[1] != "patient-1/b.dcm" {
		t.Errorf("expected lexical order, got %v", keys)
	}
}

func TestList_EmptyPrefix(t *testing.T) {
	s := NewInMemoryObjectStore()
	keys, err := s.List(context.Background(), "patient-9/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestSignDownload_UnknownKey(t *testing.T) {
	s := NewInMemoryObjectStore()
	_, err := s.SignDownload(context.Background(), "missing.dcm", DownloadURLTTL)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestSignDownload_MissingKey(t *testing.T) {
	s := NewInMemoryObjectStore()
	if _, err := s.SignDownload(context.Background(), "", DownloadURLTTL); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

func TestSignUpload_CarriesContentType(t *testing.T) {
	s := NewInMemoryObjectStore()
	u, err := s.SignUpload(context.Background(), "patient-1/a.dcm", "application/dicom", UploadURLTTL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(u, "action=put") {
		t.Errorf("expected put action in url, got %q", u)
	}
	if !strings.Contains(u, "contentType=application%2Fdicom") {
		t.Errorf("expected content type in url, got %q", u)
	}
}
