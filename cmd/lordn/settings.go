package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/velmie/lordn"
)

var errTLDRequired = errors.New("at least one --tld is required")

type storeSettings struct {
	Kind       string
	DSN        string
	PebbleDir  string
	QueueTable string
	TaskTable  string
}

func (a *app) storeSettings() storeSettings {
	return storeSettings{
		Kind:       strings.ToLower(strings.TrimSpace(a.v.GetString("store"))),
		DSN:        a.v.GetString("dsn"),
		PebbleDir:  a.v.GetString("pebble-dir"),
		QueueTable: a.v.GetString("queue-table"),
		TaskTable:  a.v.GetString("task-table"),
	}
}

func (a *app) phase() (lordn.Phase, error) {
	return lordn.ParsePhase(strings.TrimSpace(a.v.GetString("phase")))
}

// tags returns the configured TLDs. Values may be repeated flags or a comma
// or space separated list from the environment or config file.
func (a *app) tags() ([]string, error) {
	tags := splitList(a.v.GetStringSlice("tld"))
	if len(tags) == 0 {
		return nil, errTLDRequired
	}

	return tags, nil
}

func splitList(values []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, value := range values {
		for _, item := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}

	return out
}

// passwords returns the MarksDB password source. An explicit password wins
// over a password file. Without either, uploads are sent without credentials.
func (a *app) passwords() (lordn.PasswordSource, error) {
	if password := a.v.GetString("password"); password != "" {
		return lordn.StaticPassword(password), nil
	}
	path := a.v.GetString("password-file")
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read password file: %w", err)
	}

	return lordn.StaticPassword(strings.TrimSpace(string(raw))), nil
}
