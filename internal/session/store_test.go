package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestStoreCreateGetDelete(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewStore(client, 30*time.Minute)
	ctx := context.Background()

	sess, err := store.Create(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, StepInitial, sess.Step)
	assert.Equal(t, "+15551234567", sess.Sender)
	assert.Zero(t, sess.Attempts)
	assert.Empty(t, sess.Patient.Name)

	loaded, err := store.Get(ctx, "+15551234567")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StepInitial, loaded.Step)

	require.NoError(t, store.Delete(ctx, "+15551234567"))
	gone, err := store.Get(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStoreGetUnknownSenderReturnsNil(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewStore(client, 30*time.Minute)

	sess, err := store.Get(context.Background(), "+10000000000")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStoreCreateReplacesPriorSession(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewStore(client, 30*time.Minute)
	ctx := context.Background()

	sess, err := store.Create(ctx, "+15550001111")
	require.NoError(t, err)
	sess.Step = StepConfirmation
	sess.Patient.Name = "Jane Doe"
	require.NoError(t, store.Save(ctx, sess))

	fresh, err := store.Create(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, StepInitial, fresh.Step)
	assert.Empty(t, fresh.Patient.Name)
}

func TestStoreSaveRefreshesLastUpdated(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewStore(client, 30*time.Minute)
	ctx := context.Background()

	sess, err := store.Create(ctx, "+15552223333")
	require.NoError(t, err)
	before := sess.LastUpdated

	time.Sleep(5 * time.Millisecond)
	sess.Step = StepPatientDetails
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Get(ctx, "+15552223333")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, StepPatientDetails, loaded.Step)
	assert.True(t, loaded.LastUpdated.After(before))
}

func TestStoreRecordExpiresWithTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewStore(client, time.Minute)
	ctx := context.Background()

	_, err := store.Create(ctx, "+15554445555")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	sess, err := store.Get(ctx, "+15554445555")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	sess := &Session{LastUpdated: now.Add(-45 * time.Minute)}
	if !sess.Expired(now, 30*time.Minute) {
		t.Fatal("expected 45m idle session to be expired at 30m timeout")
	}

	fresh := &Session{LastUpdated: now.Add(-5 * time.Minute)}
	if fresh.Expired(now, 30*time.Minute) {
		t.Fatal("expected 5m idle session to be live at 30m timeout")
	}

	var nilSess *Session
	if !nilSess.Expired(now, 30*time.Minute) {
		t.Fatal("nil session should read as expired")
	}
}
