package credential

import (
	"fmt"

	"snapsync/internal/config"
	"snapsync/internal/encryption"
	"snapsync/internal/snap"
)

// NewManagerFromConfig creates the credential manager selected by
// cfg.Credentials.Type. name scopes the default token file to the project.
func NewManagerFromConfig(cfg *config.Config, name string, prompter Prompter, logger snap.Logger) (snap.CredentialManager, error) {
	cc := cfg.Credentials
	switch cc.Type {
	case "oauth":
		if cc.ClientSecretPath == "" {
			return nil, fmt.Errorf("client_secret_path required for oauth credentials")
		}
		oc, err := LoadGoogleConfig(cc.ClientSecretPath)
		if err != nil {
			return nil, err
		}
		store := NewTokenStore(cfg.TokenPath(name), encryption.NewSealerFromConfig(cc))
		return NewOAuthManager(oc, store, prompter, logger), nil
	case "static":
		return NewStaticManager(cc.AccessKeyID, cc.SecretAccessKey, cfg.Remote.S3Region), nil
	case "none", "":
		return NoneManager{}, nil
	default:
		return nil, fmt.Errorf("unknown credentials type: %s", cc.Type)
	}
}
