package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestConnPrefersContextTransaction(t *testing.T) {
	db := &gorm.DB{Config: &gorm.Config{}}
	tx := &gorm.DB{Config: &gorm.Config{}}

	if got := conn(withTx(context.Background(), tx), db); got != tx {
		t.Fatalf("expected the transaction carried by ctx")
	}
}

func TestIsExclusionViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"exclusion", &pgconn.PgError{Code: "23P01"}, true},
		{"wrapped exclusion", errors.Join(errors.New("insert"), &pgconn.PgError{Code: "23P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := isExclusionViolation(tc.err); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
