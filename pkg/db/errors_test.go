package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolationPgx(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "idx_subscriptions_one_active"}

	if !IsUniqueViolation(err, "") {
		t.Fatal("expected unique violation without constraint filter")
	}
	if !IsUniqueViolation(err, "idx_subscriptions_one_active") {
		t.Fatal("expected unique violation with matching constraint")
	}
	if IsUniqueViolation(err, "idx_subscriptions_transaction") {
		t.Fatal("expected no match for different constraint")
	}

	wrapped := fmt.Errorf("create subscription: %w", err)
	if !IsUniqueViolation(wrapped, "idx_subscriptions_one_active") {
		t.Fatal("expected unique violation through wrapping")
	}
}

func TestIsUniqueViolationPq(t *testing.T) {
	err := &pq.Error{Code: "23505", Constraint: "idx_subscriptions_transaction"}

	if !IsUniqueViolation(err, "idx_subscriptions_transaction") {
		t.Fatal("expected unique violation for pq error")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}, "") {
		t.Fatal("foreign key violation should not match")
	}
}

func TestIsUniqueViolationTextFallback(t *testing.T) {
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: subscriptions.store_transaction_id"), "") {
		t.Fatal("expected sqlite-style message to match")
	}
	if !IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "idx_subscriptions_one_active"`), "idx_subscriptions_one_active") {
		t.Fatal("expected postgres text message to match")
	}
	if IsUniqueViolation(errors.New("connection refused"), "") {
		t.Fatal("unrelated error should not match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error should not match")
	}
}
