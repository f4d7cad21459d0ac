package lordn

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyTask(t *testing.T) {
	task := VerifyTask("https://marksdb.test/LORDN/example/claims/1", "run-1", "example", DefaultVerifyDelay)
	if err := task.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if task.Params[ParamNordnURL] != "https://marksdb.test/LORDN/example/claims/1" ||
		task.Params[ParamNordnLogID] != "run-1" ||
		task.Params[ParamTLD] != "example" {
		t.Fatalf("unexpected params %v", task.Params)
	}
	if task.Queue != "marksdb" || task.Action != "/_dr/task/nordnVerify" {
		t.Fatalf("unexpected target %s %s", task.Queue, task.Action)
	}
}

func TestTaskValidate(t *testing.T) {
	if err := (Task{}).Validate(); !errors.Is(err, ErrActionRequired) {
		t.Fatalf("expected ErrActionRequired, got %v", err)
	}
	if err := (Task{Action: "/x", Delay: -time.Second}).Validate(); !errors.Is(err, ErrInvalidDelay) {
		t.Fatalf("expected ErrInvalidDelay, got %v", err)
	}
}

func TestWithFields(t *testing.T) {
	base := &recordingLogger{}
	logger := withFields(withFields(base, "a", 1), "b", 2)
	logger.Info("msg", "c", 3)

	args := base.entries[0].args
	if len(args) != 6 || args[0] != "a" || args[2] != "b" || args[4] != "c" {
		t.Fatalf("unexpected args %v", args)
	}
	if withFields(base) != Logger(base) {
		t.Fatalf("expected base logger without fields")
	}
}
