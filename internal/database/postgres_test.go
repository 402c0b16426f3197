package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "purchases_transaction_hash_key"})
	constraint, ok := UniqueViolation(err)
	if !ok || constraint != "purchases_transaction_hash_key" {
		t.Fatalf("UniqueViolation() = %q, %v", constraint, ok)
	}

	if _, ok := UniqueViolation(&pq.Error{Code: "23503"}); ok {
		t.Fatal("foreign key violation reported as unique")
	}
	if _, ok := UniqueViolation(fmt.Errorf("plain")); ok {
		t.Fatal("plain error reported as unique")
	}
}

func TestOpenRequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("Open() without URL should fail")
	}
}
