// Package store provides key-addressed, subscribable remote data stores.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned by operations on a closed subscription or store.
var ErrClosed = errors.New("store: closed")

// Snapshot is the value held under a key at one point in time.
type Snapshot struct {
	Key    string
	Value  []byte // JSON encoded value
	Exists bool
}

// Child returns the field name of an object snapshot. Numbers are returned
// as json.Number so integer timestamps keep full precision.
func (s Snapshot) Child(name string) (any, bool) {
	if !s.Exists || len(s.Value) == 0 {
		return nil, false
	}
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(s.Value))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, false
	}
	v, ok := fields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Subscription is a standing listener registered with a Store.
type Subscription interface {
	Close() error
}

// Store is a remote data store holding one JSON value per key.
type Store interface {
	// Set overwrites the value under key.
	Set(ctx context.Context, key string, value any) error
	// Subscribe registers a listener that receives the current value and
	// every later change. onError is called for failures that do not end
	// the subscription.
	Subscribe(key string, onChange func(Snapshot), onError func(error)) (Subscription, error)
}
