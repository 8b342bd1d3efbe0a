package encryption

import (
	"snapsync/internal/config"
)

// NewSealerFromConfig returns an AgeSealer when an identity path is configured
// and a PlainSealer otherwise.
func NewSealerFromConfig(cfg config.CredentialsConfig) Sealer {
	if cfg.IdentityPath == "" {
		return PlainSealer{}
	}
	return NewAgeSealer(cfg.IdentityPath)
}
