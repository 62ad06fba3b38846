// Package idgen provides short, URL-safe identifiers for viewers and watch
// sessions, backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for generated identifiers.
const (
	ViewerPrefix   = "v-"
	SessionPrefix  = "w-"
	InstancePrefix = "i-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 12

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// ViewerID returns an id for an anonymous viewer.
func ViewerID() string {
	return ViewerPrefix + nanoid.MustGenerate(Alphabet, Length)
}

// SessionID returns an id for a client watch session.
func SessionID() string {
	return SessionPrefix + nanoid.MustGenerate(Alphabet, Length)
}

// InstanceID returns an id for one running server process.
func InstanceID() string {
	return InstancePrefix + nanoid.MustGenerate(Alphabet, Length)
}
