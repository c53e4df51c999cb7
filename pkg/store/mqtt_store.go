package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/benmeehan/whereis-agent/pkg/mqtt"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTStore maps each key onto a retained topic "<prefix>/<key>", so the
// broker keeps exactly one live value per key.
type MQTTStore struct {
	client mqtt.MQTTClient
	prefix string
	qos    byte
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[string][]*mqttSubscription
}

// NewMQTTStore creates a store on top of a connected MQTT client.
func NewMQTTStore(client mqtt.MQTTClient, prefix string, qos int, logger zerolog.Logger) *MQTTStore {
	return &MQTTStore{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		qos:    byte(qos),
		logger: logger,
		subs:   make(map[string][]*mqttSubscription),
	}
}

func (s *MQTTStore) topic(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Set publishes value as the retained message of the key's topic.
func (s *MQTTStore) Set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}

	token := s.client.Publish(s.topic(key), s.qos, true, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish %s: %w", s.topic(key), err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mqttSubscription struct {
	store    *MQTTStore
	key      string
	onChange func(Snapshot)
	onError  func(error)
	once     sync.Once
}

// Close detaches the listener, unsubscribing from the topic once no
// listener remains.
func (sub *mqttSubscription) Close() error {
	var err error
	sub.once.Do(func() {
		err = sub.store.remove(sub)
	})
	return err
}

// Subscribe attaches a listener to key. The broker replays the retained
// value on subscription.
func (s *MQTTStore) Subscribe(key string, onChange func(Snapshot), onError func(error)) (Subscription, error) {
	sub := &mqttSubscription{store: s, key: key, onChange: onChange, onError: onError}

	s.mu.Lock()
	first := len(s.subs[key]) == 0
	s.subs[key] = append(s.subs[key], sub)
	s.mu.Unlock()

	if !first {
		return sub, nil
	}

	if err := s.subscribeTopic(key); err != nil {
		s.mu.Lock()
		delete(s.subs, key)
		s.mu.Unlock()
		return nil, err
	}
	return sub, nil
}

func (s *MQTTStore) subscribeTopic(key string) error {
	topic := s.topic(key)
	token := s.client.Subscribe(topic, s.qos, func(_ mqttLib.Client, msg mqttLib.Message) {
		s.dispatch(key, msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	s.logger.Debug().Str("topic", topic).Msg("Subscribed to store key")
	return nil
}

// Resubscribe re-issues the broker subscription of every key that still
// has listeners. A clean-session broker drops subscriptions on disconnect,
// so this must run on every (re)connect. Failures go to the key's listeners.
func (s *MQTTStore) Resubscribe() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.subs))
	for key := range s.subs {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, key := range keys {
		if err := s.subscribeTopic(key); err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("Failed to resubscribe to store key")
			for _, sub := range s.listeners(key) {
				if sub.onError != nil {
					sub.onError(err)
				}
			}
		}
	}
}

func (s *MQTTStore) dispatch(key string, payload []byte) {
	snap := Snapshot{Key: key, Value: payload, Exists: len(payload) > 0}
	for _, sub := range s.listeners(key) {
		sub.onChange(snap)
	}
}

// ConnectionLost reports a broker disconnect to every listener. The client
// reconnects on its own; Resubscribe restores the subscriptions.
func (s *MQTTStore) ConnectionLost(err error) {
	s.mu.Lock()
	var all []*mqttSubscription
	for _, subs := range s.subs {
		all = append(all, subs...)
	}
	s.mu.Unlock()

	for _, sub := range all {
		if sub.onError != nil {
			sub.onError(fmt.Errorf("store connection lost: %w", err))
		}
	}
}

func (s *MQTTStore) listeners(key string) []*mqttSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*mqttSubscription(nil), s.subs[key]...)
}

func (s *MQTTStore) remove(sub *mqttSubscription) error {
	s.mu.Lock()
	subs := s.subs[sub.key]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	last := len(subs) == 0
	if last {
		delete(s.subs, sub.key)
	} else {
		s.subs[sub.key] = subs
	}
	s.mu.Unlock()

	if !last {
		return nil
	}
	token := s.client.Unsubscribe(s.topic(sub.key))
	token.Wait()
	return token.Error()
}
