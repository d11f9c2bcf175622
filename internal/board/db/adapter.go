package db

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"os"
)

// Adapter durably stores a single board snapshot.
type Adapter interface {
	// Save atomically replaces the stored snapshot.
	Save(ctx context.Context, blob []byte) error

	// Load returns the stored snapshot. Missing or corrupt data yields
	// (nil, nil); a non-nil error means the backend could not be read.
	Load(ctx context.Context) ([]byte, error)

	// Close releases the backend.
	Close() error
}

// Inspector is implemented by adapters that can report and wipe their data.
type Inspector interface {
	// Usage returns the stored snapshot size in bytes (0 when empty).
	Usage(ctx context.Context) (int64, error)

	// Clear removes the stored snapshot.
	Clear(ctx context.Context) error
}

var envelopeMagic = []byte("BSN1")

const envelopeHeader = 4 + sha256.Size

// errCorrupt marks an envelope that failed verification.
var errCorrupt = errors.New("corrupt snapshot")

// seal wraps payload in a checksummed envelope.
func seal(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	out := make([]byte, 0, envelopeHeader+len(payload))
	out = append(out, envelopeMagic...)
	out = append(out, sum[:]...)
	return append(out, payload...)
}

// unseal verifies an envelope and returns its payload.
func unseal(data []byte) ([]byte, error) {
	if len(data) < envelopeHeader {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", errCorrupt, len(data))
	}
	if !bytes.Equal(data[:4], envelopeMagic) {
		return nil, fmt.Errorf("%w: bad magic %q", errCorrupt, data[:4])
	}
	payload := data[envelopeHeader:]
	sum := sha256.Sum256(payload)
	if !bytes.Equal(sum[:], data[4:envelopeHeader]) {
		return nil, fmt.Errorf("%w: checksum mismatch", errCorrupt)
	}
	return append([]byte(nil), payload...), nil
}

// openSealed is shared by the adapters' Load: it unseals raw and downgrades
// corruption to "no data", logging what was discarded.
func openSealed(logger *log.Logger, source string, raw []byte) []byte {
	if raw == nil {
		return nil
	}
	payload, err := unseal(raw)
	if err != nil {
		logger.Printf("WARNING: discarding snapshot from %s: %v", source, err)
		return nil
	}
	return payload
}

func defaultLogger(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.New(os.Stderr, "[db] ", log.LstdFlags)
	}
	return logger
}
