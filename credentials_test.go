package lordn

import (
	"errors"
	"net/http"
	"testing"
)

func TestBasicAuth(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "https://marksdb.test", nil)
	auth := BasicAuth{Passwords: StaticPassword("s3cret")}
	if err := auth.Initialize(req, "example"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	user, pass, ok := req.BasicAuth()
	if !ok || user != "example_ry" || pass != "s3cret" {
		t.Fatalf("unexpected credentials %q %q %v", user, pass, ok)
	}
}

func TestBasicAuth_EmptyPassword(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "https://marksdb.test", nil)
	if err := (BasicAuth{Passwords: StaticPassword("")}).Initialize(req, "example"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if req.Header.Get("Authorization") != "" {
		t.Fatalf("expected no Authorization header")
	}
	if err := (BasicAuth{}).Initialize(req, "example"); err != nil {
		t.Fatalf("initialize without source: %v", err)
	}
}

type passwordFunc func(tag string) (string, error)

func (fn passwordFunc) Password(tag string) (string, error) { return fn(tag) }

func TestBasicAuth_SourceError(t *testing.T) {
	boom := errors.New("vault down")
	req, _ := http.NewRequest(http.MethodPost, "https://marksdb.test", nil)
	auth := BasicAuth{Passwords: passwordFunc(func(string) (string, error) { return "", boom })}

	if err := auth.Initialize(req, "example"); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}
