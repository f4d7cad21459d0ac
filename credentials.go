package lordn

import (
	"fmt"
	"net/http"
)

const basicAuthUserSuffix = "_ry"

// RequestInitializer prepares an upload request before it is sent, usually by
// attaching credentials for tag.
type RequestInitializer interface {
	Initialize(req *http.Request, tag string) error
}

// RequestInitializerFunc adapts a function to RequestInitializer.
type RequestInitializerFunc func(req *http.Request, tag string) error

// Initialize implements RequestInitializer.
func (fn RequestInitializerFunc) Initialize(req *http.Request, tag string) error {
	return fn(req, tag)
}

// PasswordSource resolves the MarksDB password of a TLD.
type PasswordSource interface {
	Password(tag string) (string, error)
}

// StaticPassword uses the same password for every TLD.
type StaticPassword string

// Password implements PasswordSource.
func (p StaticPassword) Password(string) (string, error) {
	return string(p), nil
}

// BasicAuth authenticates as "<tld>_ry". Requests go out without an
// Authorization header when the resolved password is empty.
type BasicAuth struct {
	Passwords PasswordSource
}

// Initialize implements RequestInitializer.
func (a BasicAuth) Initialize(req *http.Request, tag string) error {
	if a.Passwords == nil {
		return nil
	}
	password, err := a.Passwords.Password(tag)
	if err != nil {
		return fmt.Errorf("lordn: resolve MarksDB password for %s: %w", tag, err)
	}
	if password == "" {
		return nil
	}
	req.SetBasicAuth(tag+basicAuthUserSuffix, password)

	return nil
}
