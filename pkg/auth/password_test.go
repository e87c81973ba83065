package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordAndCheckPasswordBcrypt(t *testing.T) {
	hash, err := HashPasswordWithCost("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatalf("expected bcrypt password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected bcrypt password check to fail")
	}
}

func TestHashPasswordSaltsEachCall(t *testing.T) {
	first, err := HashPasswordWithCost("same", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash first: %v", err)
	}
	second, err := HashPasswordWithCost("same", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash second: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct hashes for the same password")
	}
}

func TestHashPasswordUsesDefaultCost(t *testing.T) {
	hash, err := HashPassword("pw1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("read cost: %v", err)
	}
	if cost != DefaultCost {
		t.Fatalf("cost = %d, want %d", cost, DefaultCost)
	}
}

func TestHashPasswordWithCostFallsBackOnInvalidCost(t *testing.T) {
	hash, err := HashPasswordWithCost("pw", 0)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if cost, _ := bcrypt.Cost([]byte(hash)); cost != DefaultCost {
		t.Fatalf("cost = %d, want %d", cost, DefaultCost)
	}
}

func TestBurnPasswordCheckDoesNotPanic(t *testing.T) {
	BurnPasswordCheck("whatever")
	BurnPasswordCheck("again")
}

func TestCheckPasswordRejectsEmptyHash(t *testing.T) {
	if CheckPassword("anything", "") {
		t.Fatalf("expected empty stored hash to fail")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("pw"); err != nil {
		t.Fatalf("expected short password to be accepted, got: %v", err)
	}
	if err := ValidatePassword(""); err != ErrPasswordRequired {
		t.Fatalf("expected ErrPasswordRequired, got: %v", err)
	}
	if err := ValidatePassword(strings.Repeat("a", 73)); err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got: %v", err)
	}
}

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"alice", "Bob_99", "x.y-z"} {
		if err := ValidateUsername(ok); err != nil {
			t.Fatalf("expected %q to be valid, got %v", ok, err)
		}
	}
	for _, bad := range []string{"", "has space", "slash/name", strings.Repeat("a", 33), "emoji😀"} {
		if err := ValidateUsername(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
