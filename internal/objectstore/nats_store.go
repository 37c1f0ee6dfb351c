// Package objectstore mirrors generated artifacts into a NATS JetStream object store.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsObjectStore stores artifacts in a JetStream object store bucket.
type NatsObjectStore struct {
	conn   *nats.Conn
	bucket string
	store  nats.ObjectStore
}

// Connect dials url and binds to bucket, creating it when missing.
func Connect(url, bucket string) (*NatsObjectStore, error) {
	conn, err := nats.Connect(url, nats.Name("voxclone"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open jetstream context: %w", err)
	}

	s, err := New(js, bucket)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.conn = conn
	return s, nil
}

// New binds to bucket using an existing JetStream context.
func New(js nats.JetStreamContext, bucket string) (*NatsObjectStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Synthesized voxclone artifacts.",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to object store bucket '%s': %w", bucket, err)
		}
	}

	return &NatsObjectStore{bucket: bucket, store: store}, nil
}

// Upload stores data under key, replacing any previous object with that name.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) error {
	if _, err := n.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}
	return nil
}

// Download reads the object stored under key.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Close drains the connection opened by Connect. Stores built with New leave
// the caller's connection alone.
func (n *NatsObjectStore) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
