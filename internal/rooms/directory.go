package rooms

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"liarsdice/internal/game"
)

const (
	CodeLength = 4
	codeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// maxCodeAttempts bounds code generation; an unbounded loop hangs when
	// the code space is nearly full.
	maxCodeAttempts = 100

	// DefaultTTL is the sliding room expiry, renewed on every write.
	DefaultTTL = 3600 * time.Second
)

var (
	ErrCodeSpaceExhausted = errors.New("could not allocate an unused room code")
	ErrWriteFailed        = errors.New("failed to update game")
)

// Store is the keyed record store behind the directory. Absent and expired
// keys are indistinguishable.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Directory owns room codes and the serialized GameRecord per code.
type Directory struct {
	store   Store
	ttl     time.Duration
	newCode func() (string, error) // swapped in tests
}

func NewDirectory(store Store, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{store: store, ttl: ttl, newCode: randomCode}
}

func randomCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		if err != nil {
			return "", err
		}
		code[i] = codeChars[num.Int64()]
	}
	return string(code), nil
}

// CreateUniqueCode samples codes until one has no live record under it.
func (d *Directory) CreateUniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := d.newCode()
		if err != nil {
			return "", err
		}
		_, ok, err := d.store.Get(ctx, code)
		if err != nil {
			return "", err
		}
		if !ok {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// Load returns the room's record, or ok=false when it is missing or expired.
func (d *Directory) Load(ctx context.Context, code string) (*game.Record, bool, error) {
	raw, ok, err := d.store.Get(ctx, code)
	if err != nil || !ok {
		return nil, false, err
	}
	var rec game.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("decode room %s: %w", code, err)
	}
	return &rec, true, nil
}

// Save writes the record under its room code, renewing the expiry.
func (d *Directory) Save(ctx context.Context, rec *game.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", rec.RoomCode, err)
	}
	if err := d.store.Set(ctx, rec.RoomCode, string(raw), d.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}
