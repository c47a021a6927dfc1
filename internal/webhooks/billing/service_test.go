package billingwebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoolhub/entitlement-engine/internal/reconcile"
	"github.com/skoolhub/entitlement-engine/pkg/enums"
	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
)

type captureReconciler struct {
	event reconcile.Event
	err   error
}

func (c *captureReconciler) Process(ctx context.Context, event reconcile.Event) (*reconcile.Result, error) {
	c.event = event
	if c.err != nil {
		return nil, c.err
	}
	return &reconcile.Result{Created: true}, nil
}

type memoryStore struct {
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func playPayload() *Payload {
	return &Payload{
		APIVersion: "1.0",
		Event: &EventBody{
			ID:             "evt-1",
			Type:           "INITIAL_PURCHASE",
			AppUserID:      "u1",
			ProductID:      "app.elite.monthly:monthly-base",
			EntitlementIDs: []string{"elite"},
			TransactionID:  "t1",
			Store:          "PLAY_STORE",
			Environment:    "PRODUCTION",
			PurchasedAtMS:  1736510400000,
			ExpirationAtMS: 1739188800000,
		},
	}
}

func TestHandleEventNormalizesPlayPurchase(t *testing.T) {
	rec := &captureReconciler{}
	svc, err := NewService(ServiceParams{Reconciler: rec})
	require.NoError(t, err)

	raw := json.RawMessage(`{"event":{"id":"evt-1"}}`)
	result, err := svc.HandleEvent(context.Background(), playPayload(), raw)
	require.NoError(t, err)
	assert.True(t, result.Created)

	event := rec.event
	assert.Equal(t, reconcile.SourceWebhook, event.Source)
	assert.Equal(t, "INITIAL_PURCHASE", event.Kind)
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, enums.StorePlatformPlay, event.Platform)
	assert.Equal(t, "app.elite.monthly", event.StoreProductID)
	require.NotNil(t, event.StoreProductPlanID)
	assert.Equal(t, "monthly-base", *event.StoreProductPlanID)
	require.NotNil(t, event.TransactionID)
	assert.Equal(t, "t1", *event.TransactionID)
	assert.Equal(t, "elite", event.EntitlementID)
	assert.Equal(t, enums.SubscriptionStateActive, event.State)
	assert.True(t, event.WillRenew)
	assert.Equal(t, enums.StoreEnvironmentProduction, event.Environment)
	require.NotNil(t, event.PurchasedAt)
	assert.Equal(t, int64(1736510400), event.PurchasedAt.Unix())
	assert.Equal(t, raw, event.RawPayload)
}

func TestHandleEventCancellationClearsWillRenew(t *testing.T) {
	rec := &captureReconciler{}
	svc, err := NewService(ServiceParams{Reconciler: rec})
	require.NoError(t, err)

	payload := playPayload()
	payload.Event.Type = "CANCELLATION"
	_, err = svc.HandleEvent(context.Background(), payload, nil)
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStateCancelled, rec.event.State)
	assert.False(t, rec.event.WillRenew)
}

func TestHandleEventUnknownTypeDefaultsToActive(t *testing.T) {
	rec := &captureReconciler{}
	svc, err := NewService(ServiceParams{Reconciler: rec})
	require.NoError(t, err)

	payload := playPayload()
	payload.Event.Type = "PRODUCT_CHANGE"
	_, err = svc.HandleEvent(context.Background(), payload, nil)
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStateActive, rec.event.State)
	assert.True(t, rec.event.WillRenew)
}

func TestHandleEventRejectsUnsupportedStore(t *testing.T) {
	rec := &captureReconciler{}
	svc, err := NewService(ServiceParams{Reconciler: rec})
	require.NoError(t, err)

	payload := playPayload()
	payload.Event.Store = "AMAZON"
	_, err = svc.HandleEvent(context.Background(), payload, nil)
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnsupportedStore, typed.Code())
}

func TestHandleEventAppStoreProductPassesThrough(t *testing.T) {
	rec := &captureReconciler{}
	svc, err := NewService(ServiceParams{Reconciler: rec})
	require.NoError(t, err)

	payload := playPayload()
	payload.Event.Store = "APP_STORE"
	payload.Event.ProductID = "com.app.elite.monthly"
	_, err = svc.HandleEvent(context.Background(), payload, nil)
	require.NoError(t, err)

	assert.Equal(t, enums.StorePlatformAppStore, rec.event.Platform)
	assert.Equal(t, "com.app.elite.monthly", rec.event.StoreProductID)
	assert.Nil(t, rec.event.StoreProductPlanID)
}

func TestDedupeKeyFallsBackWithoutEventID(t *testing.T) {
	body := playPayload().Event
	assert.Equal(t, "evt-1", body.DedupeKey())

	body.ID = ""
	assert.Equal(t, "INITIAL_PURCHASE:u1:t1:1736510400000", body.DedupeKey())
}

func TestIdempotencyGuardMarksAndReleases(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "billing-webhook")
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "evt-1"))
	seen, err = guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}
