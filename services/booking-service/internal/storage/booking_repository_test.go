package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsExclusionViolation(t *testing.T) {
	overlap := &pgconn.PgError{Code: "23P01", ConstraintName: "bookings_no_overlap"}
	if !isExclusionViolation(overlap) {
		t.Fatal("23P01 must be recognized as an exclusion violation")
	}
	if !isExclusionViolation(fmt.Errorf("insert booking: %w", overlap)) {
		t.Fatal("wrapped 23P01 must be recognized as an exclusion violation")
	}
	if isExclusionViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation must not map to a slot conflict")
	}
	if isExclusionViolation(errors.New("connection reset")) {
		t.Fatal("plain error must not map to a slot conflict")
	}
	if isExclusionViolation(nil) {
		t.Fatal("nil must not map to a slot conflict")
	}
}
