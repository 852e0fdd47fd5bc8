package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Store persists one session per sender in Redis. The record TTL matches
// the conversation timeout so abandoned sessions age out on their own;
// the engine still checks LastUpdated at turn start.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewStore creates a session store with the given idle timeout.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("clinicflow.internal.session"),
	}
}

func sessionKey(sender string) string {
	return fmt.Sprintf("session:%s", sender)
}

// Get returns the stored session for sender, or nil if none exists.
func (s *Store) Get(ctx context.Context, sender string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(sender)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode: %w", err)
	}
	return &sess, nil
}

// Create drops any prior record for sender and inserts a fresh session
// at the initial step.
func (s *Store) Create(ctx context.Context, sender string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.create")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(sender)).Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to clear prior: %w", err)
	}

	now := time.Now().UTC()
	sess := &Session{
		Sender:      sender,
		Step:        StepInitial,
		Patient:     PatientDetails{},
		Attempts:    0,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := s.write(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sess, nil
}

// Save rewrites the session record and refreshes LastUpdated.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "session.save")
	defer span.End()

	sess.LastUpdated = time.Now().UTC()
	if err := s.write(ctx, sess); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Delete removes the session for sender. Deleting a missing session is
// not an error.
func (s *Store) Delete(ctx context.Context, sender string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(sender)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete: %w", err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sess.Sender), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: failed to persist: %w", err)
	}
	return nil
}
