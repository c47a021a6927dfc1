package entitlements

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/skoolhub/entitlement-engine/internal/reconcile"
	syncsvc "github.com/skoolhub/entitlement-engine/internal/sync"
	"github.com/skoolhub/entitlement-engine/pkg/db/models"
	"github.com/skoolhub/entitlement-engine/pkg/enums"
	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
)

type fakeSyncService struct {
	calls  int
	result *syncsvc.Result
	err    error
}

func (f *fakeSyncService) Sync(ctx context.Context, req *syncsvc.Request, raw json.RawMessage) (*syncsvc.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func syncBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"appUserId": "u1",
		"customerInfo": map[string]any{
			"entitlements": map[string]any{
				"all": map[string]any{
					"elite": map[string]any{
						"isActive":          false,
						"willRenew":         false,
						"store":             "play_store",
						"productIdentifier": "app.elite.monthly:monthly-base",
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func TestSync_Success(t *testing.T) {
	service := &fakeSyncService{result: &syncsvc.Result{
		Reconciled: &reconcile.Result{
			Subscription: &models.Subscription{
				ID:    uuid.New(),
				State: enums.SubscriptionStateExpired,
			},
		},
	}}
	handler := Sync(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entitlements/sync", bytes.NewReader(syncBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data["ok"] != true {
		t.Fatalf("expected ok=true, got %v", envelope.Data["ok"])
	}
	if envelope.Data["skipped"] != false {
		t.Fatalf("expected skipped=false, got %v", envelope.Data["skipped"])
	}
	if envelope.Data["state"] != "expired" {
		t.Fatalf("expected state=expired, got %v", envelope.Data["state"])
	}
}

func TestSync_SkippedSnapshot(t *testing.T) {
	service := &fakeSyncService{result: &syncsvc.Result{Skipped: true}}
	handler := Sync(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entitlements/sync", bytes.NewReader(syncBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data["ok"] != true {
		t.Fatalf("expected ok=true, got %v", envelope.Data["ok"])
	}
	if envelope.Data["skipped"] != true {
		t.Fatalf("expected skipped=true, got %v", envelope.Data["skipped"])
	}
}

func TestSync_UnmappedProduct(t *testing.T) {
	service := &fakeSyncService{err: pkgerrors.New(pkgerrors.CodeUnmappedProduct, "no plan mapping for store product").
		WithDetails(map[string]any{
			"platform":           "play",
			"storeProductId":     "app.elite.monthly",
			"storeProductPlanId": "monthly-base",
			"existingRows":       []map[string]any{},
		})}
	handler := Sync(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entitlements/sync", bytes.NewReader(syncBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (%s)", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if envelope.Error.Code != "UNMAPPED_PRODUCT" {
		t.Fatalf("expected UNMAPPED_PRODUCT code, got %s", envelope.Error.Code)
	}
	rows, ok := envelope.Error.Details["existingRows"].([]any)
	if !ok {
		t.Fatalf("expected existingRows in details, got %v", envelope.Error.Details)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no configured rows, got %v", rows)
	}
}

func TestSync_ValidationFailure(t *testing.T) {
	service := &fakeSyncService{}
	handler := Sync(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entitlements/sync", bytes.NewReader([]byte(`{"appUserId":""}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid body")
	}
}
