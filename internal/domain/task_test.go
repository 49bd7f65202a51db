package domain

import (
	"errors"
	"testing"
	"time"
)

func newTestTask(t *testing.T) *Task {
	t.Helper()
	task, err := NewPlatformPostTask(PlatformTelegram, "content-1", "user-1", "approved",
		PostPayload{Message: "hello"}, "hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return task
}

func TestNewPlatformPostTask_Invariants(t *testing.T) {
	task := newTestTask(t)

	if task.Status != TaskStatusQueued {
		t.Errorf("expected queued, got %s", task.Status)
	}
	if task.Attempts != 0 {
		t.Errorf("expected 0 attempts, got %d", task.Attempts)
	}
	// Новая задача готова к выбору сразу
	if !task.Eligible(time.Now().UTC()) {
		t.Error("new task should be eligible immediately")
	}
}

func TestNewPlatformPostTask_RequiredFields(t *testing.T) {
	if _, err := NewPlatformPostTask(PlatformTelegram, "", "user-1", "approved", PostPayload{}, "h"); err == nil {
		t.Error("expected error for empty contentID")
	}
	if _, err := NewPlatformPostTask(PlatformTelegram, "c", "user-1", "approved", PostPayload{}, ""); err == nil {
		t.Error("expected error for empty postHash")
	}
}

func TestTask_Lifecycle_Success(t *testing.T) {
	task := newTestTask(t)

	if err := task.MarkProcessing(); err != nil {
		t.Fatalf("queued → processing: %v", err)
	}
	if err := task.MarkCompleted(); err != nil {
		t.Fatalf("processing → completed: %v", err)
	}
	if !task.Status.IsTerminal() {
		t.Error("completed should be terminal")
	}

	// Из терминального статуса переходов нет
	if err := task.MarkProcessing(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTask_Lifecycle_InvalidTransitions(t *testing.T) {
	task := newTestTask(t)

	// queued → completed запрещён: сначала processing
	if err := task.MarkCompleted(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	// queued → failed тоже: провал возможен только из processing
	if err := task.MarkFailed("boom", ErrClassGeneric); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTask_MarkRetry(t *testing.T) {
	task := newTestTask(t)
	_ = task.MarkProcessing()

	next := time.Now().UTC().Add(time.Minute)
	if err := task.MarkRetry("timeout", ErrClassTransient, next); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.Status != TaskStatusQueued {
		t.Errorf("expected queued after retry, got %s", task.Status)
	}
	if task.Attempts != 1 {
		t.Errorf("expected attempts=1, got %d", task.Attempts)
	}
	// До nextAttemptAt задача не выбирается
	if task.Eligible(time.Now().UTC()) {
		t.Error("task should not be eligible before nextAttemptAt")
	}
	if !task.Eligible(next.Add(time.Second)) {
		t.Error("task should be eligible after nextAttemptAt")
	}
}

func TestTask_Defer_DoesNotConsumeAttempt(t *testing.T) {
	task := newTestTask(t)
	_ = task.MarkProcessing()

	until := time.Now().UTC().Add(15 * time.Minute)
	if err := task.Defer(until); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.Status != TaskStatusQueued {
		t.Errorf("expected queued after defer, got %s", task.Status)
	}
	if task.Attempts != 0 {
		t.Errorf("defer should not consume attempt, got %d", task.Attempts)
	}
	if !task.NextAttemptAt.Equal(until) {
		t.Errorf("expected nextAttemptAt=%v, got %v", until, task.NextAttemptAt)
	}
}

func TestTask_CanRetry(t *testing.T) {
	task := newTestTask(t)

	task.Attempts = 3
	if !task.CanRetry(5) {
		t.Error("3 attempts of 5 should allow retry")
	}
	task.Attempts = 4
	if task.CanRetry(5) {
		t.Error("4 attempts of 5 should not allow retry")
	}
}

func TestTask_SignableBody_IgnoresMutableFields(t *testing.T) {
	task := newTestTask(t)
	before := string(task.SignableBody())

	// Мутации статуса и счётчиков не должны менять подписываемое тело
	_ = task.MarkProcessing()
	task.Attempts = 3
	task.Error = "boom"

	if string(task.SignableBody()) != before {
		t.Error("signable body should not depend on mutable fields")
	}
}

func TestTask_SignableBody_CoversContent(t *testing.T) {
	a := newTestTask(t)
	b := newTestTask(t)
	b.Payload.Message = "different"

	if string(a.SignableBody()) == string(b.SignableBody()) {
		t.Error("different messages should produce different bodies")
	}
}
