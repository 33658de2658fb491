package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("Set,Parallel\n")
	uri, err := store.PutObject(context.Background(), "sources/2023-topps/job-1.csv", "text/csv", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://sources/2023-topps/job-1.csv" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'X'
	stored, contentType, ok := store.Object("sources/2023-topps/job-1.csv")
	if !ok || string(stored) != "Set,Parallel\n" || contentType != "text/csv" {
		t.Fatalf("unexpected stored object %q (%s, %v)", stored, contentType, ok)
	}
	stored[0] = 'Y'
	again, _, _ := store.Object("sources/2023-topps/job-1.csv")
	if again[0] != 'S' {
		t.Fatal("expected Object to return a copy")
	}
}
