package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/podcastgate/internal/config"
	"github.com/kiranshivaraju/podcastgate/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is the number of leading key characters used for lookup and logging.
const KeyPrefixLen = 8

// Resolver maps a raw bearer token to the credential it identifies.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*models.Credential, error)
}

type entry struct {
	hash []byte
	cred models.Credential
}

// Keyring resolves statically configured API keys. Only bcrypt hashes of the keys are retained.
type Keyring struct {
	byPrefix map[string][]entry
}

// Option configures a Keyring.
type Option func(*keyringOptions)

type keyringOptions struct {
	cost int
}

// WithCost overrides the bcrypt cost used to hash configured keys.
func WithCost(cost int) Option {
	return func(o *keyringOptions) { o.cost = cost }
}

// NewKeyring hashes the configured keys and indexes them by prefix.
func NewKeyring(keys []config.KeyConfig, opts ...Option) (*Keyring, error) {
	o := keyringOptions{cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cost < bcrypt.MinCost {
		o.cost = bcrypt.MinCost
	}

	kr := &Keyring{byPrefix: make(map[string][]entry, len(keys))}
	for _, k := range keys {
		if len(k.Key) < KeyPrefixLen {
			return nil, fmt.Errorf("key %q: must be at least %d characters", k.Name, KeyPrefixLen)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(k.Key), o.cost)
		if err != nil {
			return nil, fmt.Errorf("hash key %q: %w", k.Name, err)
		}
		prefix := k.Key[:KeyPrefixLen]
		kr.byPrefix[prefix] = append(kr.byPrefix[prefix], entry{
			hash: hash,
			cred: models.Credential{
				Name:               k.Name,
				Tier:               k.Tier,
				KeyPrefix:          prefix,
				RateLimitPerMinute: k.RateLimitPerMinute,
				DailyQuota:         k.DailyQuota,
				Active:             true,
			},
		})
	}
	return kr, nil
}

// Resolve returns a copy of the credential matching token, or models.ErrUnauthenticated.
func (k *Keyring) Resolve(_ context.Context, token string) (*models.Credential, error) {
	token = strings.TrimSpace(token)
	if len(token) < KeyPrefixLen {
		return nil, fmt.Errorf("%w: invalid API key format", models.ErrUnauthenticated)
	}
	for _, e := range k.byPrefix[token[:KeyPrefixLen]] {
		if bcrypt.CompareHashAndPassword(e.hash, []byte(token)) == nil {
			cred := e.cred
			return &cred, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid API key", models.ErrUnauthenticated)
}

// Credentials lists every configured credential.
func (k *Keyring) Credentials() []models.Credential {
	var out []models.Credential
	for _, entries := range k.byPrefix {
		for _, e := range entries {
			out = append(out, e.cred)
		}
	}
	return out
}

// Prefix returns the loggable prefix of a raw key.
func Prefix(token string) string {
	if len(token) < KeyPrefixLen {
		return token
	}
	return token[:KeyPrefixLen]
}
