// Package id provides centralized ID generation for the lifecycle manager.
//
// Instance ids are ULID-based with the target display encoded as the final
// character:
//   - Lexicographic sortability: timeline queries without timestamps
//   - Uniqueness: two ids minted within the same millisecond differ
//   - Display affinity: the trailing decimal digit names the display
package id

import (
	"crypto/rand"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// InstanceID identifies one running occurrence of an application.
type InstanceID string

func (id InstanceID) String() string { return string(id) }

// Generator mints instance ids.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto entropy
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// GenerateInstanceID mints a unique token and appends the decimal digit of
// displayID. Ids minted within the same millisecond on the same display differ
// because the ULID entropy portion differs.
func (g *Generator) GenerateInstanceID(displayID int) string {
	g.entropyMu.Lock()
	uid := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	g.entropyMu.Unlock()

	return uid.String() + strconv.Itoa(displayID)
}

// GenerateInstanceID mints an instance id using the default generator.
func GenerateInstanceID(displayID int) string {
	return Default().GenerateInstanceID(displayID)
}

// DeriveDisplayID reads the display digit off the end of an instance id.
// The accepted range is 0..10, so the character ':' (the byte after '9')
// passes the bound as display 10. That matches the shipped behavior and is
// pinned by tests.
func DeriveDisplayID(instanceID string) int {
	if instanceID == "" {
		return 0
	}
	displayID := int(instanceID[len(instanceID)-1]) - '0'
	if displayID < 0 || displayID > 10 {
		displayID = 0
	}
	return displayID
}

// IsValidInstanceID reports whether the id carries a parseable uid portion.
func IsValidInstanceID(instanceID string) bool {
	if len(instanceID) < ulid.EncodedSize+1 {
		return false
	}
	_, err := ulid.Parse(instanceID[:ulid.EncodedSize])
	return err == nil
}
