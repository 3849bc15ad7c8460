package domain_test

import (
	"strings"
	"testing"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

func TestQuestNotFoundError(t *testing.T) {
	err := &domain.QuestNotFoundError{QuestID: "q-123"}
	if !strings.Contains(err.Error(), "q-123") {
		t.Errorf("error message should contain quest ID, got: %q", err.Error())
	}
}

func TestSessionStateError(t *testing.T) {
	err := &domain.SessionStateError{ClaimID: "c-9", State: domain.SessionGhosted, Op: "mark arrived"}
	msg := err.Error()
	if !strings.Contains(msg, "c-9") {
		t.Errorf("error message should contain claim ID, got: %q", msg)
	}
	if !strings.Contains(msg, "GHOSTED") {
		t.Errorf("error message should contain session state, got: %q", msg)
	}
}

func TestRateLimitExceededError(t *testing.T) {
	err := &domain.RateLimitExceededError{WorkerID: "w-1", Limit: 12}
	msg := err.Error()
	if !strings.Contains(msg, "w-1") || !strings.Contains(msg, "12") {
		t.Errorf("error message should contain worker ID and limit, got: %q", msg)
	}
}

func TestAllErrorTypesImplementError(t *testing.T) {
	// Compile-time interface checks via assignment to error variables.
	var _ error = &domain.QuestNotFoundError{}
	var _ error = &domain.ClaimNotFoundError{}
	var _ error = &domain.NoLiveSessionError{}
	var _ error = &domain.SessionStateError{}
	var _ error = &domain.InvalidLocationError{}
	var _ error = &domain.RateLimitExceededError{}
}
