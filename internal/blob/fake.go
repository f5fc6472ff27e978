package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Fake is an in-memory Store for tests (the face-enrollment tests use it)
// that need blob storage without a real bucket.
type Fake struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewFake returns an empty Fake store.
func NewFake() *Fake {
	return &Fake{objects: make(map[string][]byte)}
}

func (f *Fake) PresignPut(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://fake-blob.test/%s?ttl=%s", key, ttl), nil
}

func (f *Fake) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://fake-blob.test/%s?ttl=%s&op=get", key, ttl), nil
}

func (f *Fake) Upload(_ context.Context, key string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *Fake) Download(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("fake blob: no object at key %q", key)
	}
	return data, nil
}

func (f *Fake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

// Put is a test helper for seeding an object directly.
func (f *Fake) Put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = bytes.Clone(data)
}
