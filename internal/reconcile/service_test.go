package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/skoolhub/entitlement-engine/internal/subscriptions"
	"github.com/skoolhub/entitlement-engine/pkg/db/models"
	"github.com/skoolhub/entitlement-engine/pkg/enums"
	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
)

type stubUsers struct {
	known map[string]bool
	err   error
}

func (s *stubUsers) Exists(ctx context.Context, id string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.known[id], nil
}

type stubResolver struct {
	mapping *models.StoreProductMapping
	err     error
}

func (s *stubResolver) Resolve(ctx context.Context, platform enums.StorePlatform, storeProductID string, storeProductPlanID *string) (*models.StoreProductMapping, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.mapping, nil
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// memorySubsRepo is an in-memory subscriptions.Repository. createErr fires
// once on the next Create and, when raceWinner is set, inserts that row
// first to mimic a concurrent writer landing before us.
type memorySubsRepo struct {
	rows       []*models.Subscription
	createErr  error
	raceWinner *models.Subscription
}

func (m *memorySubsRepo) WithTx(tx *gorm.DB) subscriptions.Repository { return m }

func (m *memorySubsRepo) Create(ctx context.Context, sub *models.Subscription) error {
	if m.createErr != nil {
		err := m.createErr
		m.createErr = nil
		if m.raceWinner != nil {
			m.rows = append(m.rows, m.raceWinner)
			m.raceWinner = nil
		}
		return err
	}
	clone := *sub
	m.rows = append(m.rows, &clone)
	return nil
}

func (m *memorySubsRepo) Update(ctx context.Context, sub *models.Subscription) error {
	for i, row := range m.rows {
		if row.ID == sub.ID {
			clone := *sub
			m.rows[i] = &clone
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memorySubsRepo) FindByTransactionID(ctx context.Context, storeTransactionID string) (*models.Subscription, error) {
	for _, row := range m.rows {
		if row.StoreTransactionID != nil && *row.StoreTransactionID == storeTransactionID {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memorySubsRepo) FindActive(ctx context.Context, userID string, platform enums.StorePlatform) (*models.Subscription, error) {
	for _, row := range m.rows {
		if row.UserID == userID && row.StorePlatform == platform && row.State == enums.SubscriptionStateActive {
			clone := *row
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memorySubsRepo) ListByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, row := range m.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	calls   int
	created bool
	sub     *models.Subscription
}

func (r *recordingNotifier) SubscriptionReconciled(ctx context.Context, sub *models.Subscription, created bool) {
	r.calls++
	r.created = created
	r.sub = sub
}

func newTestService(t *testing.T, repo *memorySubsRepo, notifier Notifier) *Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Users: &stubUsers{known: map[string]bool{"user-1": true}},
		Resolver: &stubResolver{mapping: &models.StoreProductMapping{
			PlanID:        "premium-monthly",
			EntitlementID: "premium",
		}},
		Subscriptions: repo,
		Tx:            stubTx{},
		Notifier:      notifier,
	})
	require.NoError(t, err)
	return svc
}

func testEvent(mutate func(*Event)) Event {
	txnID := "GPA.1111-2222"
	purchased := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	expires := purchased.Add(30 * 24 * time.Hour)
	event := Event{
		Source:         SourceWebhook,
		Kind:           "INITIAL_PURCHASE",
		UserID:         "user-1",
		Platform:       enums.StorePlatformPlay,
		StoreProductID: "com.app.premium",
		TransactionID:  &txnID,
		EntitlementID:  "premium",
		State:          enums.SubscriptionStateActive,
		WillRenew:      true,
		Environment:    enums.StoreEnvironmentProduction,
		PurchasedAt:    &purchased,
		ExpiresAt:      &expires,
		RawPayload:     []byte(`{"event":{}}`),
	}
	if mutate != nil {
		mutate(&event)
	}
	return event
}

func TestProcessInsertsNewRow(t *testing.T) {
	repo := &memorySubsRepo{}
	notifier := &recordingNotifier{}
	svc := newTestService(t, repo, notifier)

	result, err := svc.Process(context.Background(), testEvent(nil))
	require.NoError(t, err)
	require.True(t, result.Created)

	require.Len(t, repo.rows, 1)
	row := repo.rows[0]
	assert.Equal(t, "user-1", row.UserID)
	assert.Equal(t, "premium-monthly", row.PlanID)
	assert.Equal(t, enums.SubscriptionStateActive, row.State)
	assert.True(t, row.WillRenew)
	require.NotNil(t, row.StoreTransactionID)
	assert.Equal(t, "GPA.1111-2222", *row.StoreTransactionID)
	assert.JSONEq(t, `{"event":{}}`, string(row.StoreReceiptData))

	assert.Equal(t, 1, notifier.calls)
	assert.True(t, notifier.created)
}

func TestProcessIsIdempotent(t *testing.T) {
	repo := &memorySubsRepo{}
	svc := newTestService(t, repo, nil)
	ctx := context.Background()

	first, err := svc.Process(ctx, testEvent(nil))
	require.NoError(t, err)
	second, err := svc.Process(ctx, testEvent(nil))
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Subscription.ID, second.Subscription.ID)
	assert.Len(t, repo.rows, 1)
}

func TestProcessFollowsTransactionThread(t *testing.T) {
	// An expiration event followed by a late renewal for the same store
	// transaction must reactivate the original row, not create another.
	repo := &memorySubsRepo{}
	svc := newTestService(t, repo, nil)
	ctx := context.Background()

	first, err := svc.Process(ctx, testEvent(nil))
	require.NoError(t, err)

	_, err = svc.Process(ctx, testEvent(func(e *Event) {
		e.Kind = "EXPIRATION"
		e.State = enums.SubscriptionStateExpired
	}))
	require.NoError(t, err)

	renewed, err := svc.Process(ctx, testEvent(func(e *Event) {
		e.Kind = "RENEWAL"
	}))
	require.NoError(t, err)

	assert.False(t, renewed.Created)
	assert.Equal(t, first.Subscription.ID, renewed.Subscription.ID)
	require.Len(t, repo.rows, 1)
	assert.Equal(t, enums.SubscriptionStateActive, repo.rows[0].State)
}

func TestProcessFallsBackToActiveRow(t *testing.T) {
	repo := &memorySubsRepo{}
	svc := newTestService(t, repo, nil)
	ctx := context.Background()

	first, err := svc.Process(ctx, testEvent(func(e *Event) {
		e.TransactionID = nil
	}))
	require.NoError(t, err)

	// The snapshot path carries no transaction id either; it must land on
	// the existing active row.
	updated, err := svc.Process(ctx, testEvent(func(e *Event) {
		e.Source = SourceSync
		e.Kind = "SYNC"
		e.TransactionID = nil
		e.WillRenew = false
	}))
	require.NoError(t, err)

	assert.Equal(t, first.Subscription.ID, updated.Subscription.ID)
	require.Len(t, repo.rows, 1)
	assert.False(t, repo.rows[0].WillRenew)
}

func TestProcessForcesWillRenewFalseOnCancellation(t *testing.T) {
	repo := &memorySubsRepo{}
	svc := newTestService(t, repo, nil)
	ctx := context.Background()

	_, err := svc.Process(ctx, testEvent(nil))
	require.NoError(t, err)

	result, err := svc.Process(ctx, testEvent(func(e *Event) {
		e.Kind = "CANCELLATION"
		e.State = enums.SubscriptionStateCancelled
		e.WillRenew = true
	}))
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStateCancelled, result.Subscription.State)
	assert.False(t, result.Subscription.WillRenew)
}

func TestProcessRetriesAfterInsertRace(t *testing.T) {
	winnerTxn := "GPA.9999-0000"
	winner := &models.Subscription{
		ID:                 uuid.New(),
		UserID:             "user-1",
		PlanID:             "premium-monthly",
		State:              enums.SubscriptionStateActive,
		StorePlatform:      enums.StorePlatformPlay,
		StoreProductID:     "com.app.premium",
		StoreTransactionID: &winnerTxn,
		EntitlementID:      "premium",
	}
	repo := &memorySubsRepo{
		createErr:  errors.New(`duplicate key value violates unique constraint "idx_subscriptions_one_active"`),
		raceWinner: winner,
	}
	svc := newTestService(t, repo, nil)

	result, err := svc.Process(context.Background(), testEvent(func(e *Event) {
		e.TransactionID = nil
	}))
	require.NoError(t, err)

	assert.False(t, result.Created)
	assert.Equal(t, winner.ID, result.Subscription.ID)
	assert.Len(t, repo.rows, 1)
}

func TestProcessRejectsUnknownUser(t *testing.T) {
	repo := &memorySubsRepo{}
	svc := newTestService(t, repo, nil)

	_, err := svc.Process(context.Background(), testEvent(func(e *Event) {
		e.UserID = "user-404"
	}))
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
	assert.Empty(t, repo.rows)
}

func TestProcessPropagatesUnmappedProduct(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Users:         &stubUsers{known: map[string]bool{"user-1": true}},
		Resolver:      &stubResolver{err: pkgerrors.New(pkgerrors.CodeUnmappedProduct, "no plan mapping for store product")},
		Subscriptions: &memorySubsRepo{},
		Tx:            stubTx{},
	})
	require.NoError(t, err)

	_, err = svc.Process(context.Background(), testEvent(nil))
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnmappedProduct, typed.Code())
}

func TestProcessValidatesEvent(t *testing.T) {
	repo := &memorySubsRepo{}
	svc := newTestService(t, repo, nil)

	_, err := svc.Process(context.Background(), testEvent(func(e *Event) {
		e.UserID = ""
		e.Platform = "web"
	}))
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}
