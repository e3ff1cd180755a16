// Package urn generates and parses the task id URN exposed by the control
// surface: background-task:entity-storage:<32-hex-char id>.
package urn

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/taskengine/backgroundtask/errs"
)

// Namespace is the stable namespace segment of every task URN.
const Namespace = "background-task:entity-storage"

const prefix = Namespace + ":"

// NewID returns a fresh 32-hex-char id backed by 16 cryptographically
// uniform bytes (crypto/rand, hex-encoded).
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// Format builds the URN for a raw task id.
func Format(id string) string {
	return prefix + id
}

// Parse extracts the raw id from a task URN, validating the namespace.
// Returns an *errs.NamespaceMismatchError if urn does not belong to this
// connector's namespace.
func Parse(urnStr string) (string, error) {
	if !strings.HasPrefix(urnStr, prefix) {
		got := urnStr
		if idx := strings.LastIndex(urnStr, ":"); idx >= 0 {
			got = urnStr[:idx]
		}
		return "", &errs.NamespaceMismatchError{Got: got, Expected: Namespace}
	}
	id := strings.TrimPrefix(urnStr, prefix)
	if id == "" {
		return "", &errs.NamespaceMismatchError{Got: Namespace, Expected: Namespace}
	}
	return id, nil
}
