package credential

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"snapsync/internal/snap"
)

// StaticManager implements snap.CredentialManager for key-pair stores such as
// S3. Configured keys take precedence; otherwise the default AWS chain
// (environment, shared config, instance role) is used.
type StaticManager struct {
	accessKeyID     string
	secretAccessKey string
	region          string
}

var _ snap.CredentialManager = (*StaticManager)(nil)

// NewStaticManager creates a StaticManager. Empty keys select the default chain.
func NewStaticManager(accessKeyID, secretAccessKey, region string) *StaticManager {
	return &StaticManager{
		accessKeyID:     accessKeyID,
		secretAccessKey: secretAccessKey,
		region:          region,
	}
}

// Acquire resolves and retrieves the credentials once, which fails early when
// none are available.
func (m *StaticManager) Acquire(ctx context.Context) (*snap.RemoteCredential, error) {
	cfg, err := m.loadConfig(ctx)
	if err != nil {
		return nil, &snap.AuthError{Op: "load aws config", Err: err}
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, &snap.AuthError{Op: "retrieve", Err: err}
	}

	cred := &snap.RemoteCredential{
		Provider:    ProviderStatic,
		KeyID:       creds.AccessKeyID,
		SecretKey:   creds.SecretAccessKey,
		AccessToken: creds.SessionToken,
	}
	if creds.CanExpire {
		cred.Expiry = creds.Expires
	}
	return cred, nil
}

func (m *StaticManager) loadConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if m.region != "" {
		opts = append(opts, awsconfig.WithRegion(m.region))
	}
	if m.accessKeyID != "" || m.secretAccessKey != "" {
		if m.accessKeyID == "" || m.secretAccessKey == "" {
			return aws.Config{}, fmt.Errorf("access_key_id and secret_access_key must be set together")
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(m.accessKeyID, m.secretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// StaticProvider turns a credential from StaticManager back into an AWS
// credentials provider for the S3 client.
func StaticProvider(cred *snap.RemoteCredential) aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(cred.KeyID, cred.SecretKey, cred.AccessToken)
}

// NoneManager implements snap.CredentialManager for stores that need no
// credential, such as the filesystem and memory stores.
type NoneManager struct{}

var _ snap.CredentialManager = NoneManager{}

func (NoneManager) Acquire(ctx context.Context) (*snap.RemoteCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, &snap.AuthError{Op: "acquire", Err: err}
	}
	return &snap.RemoteCredential{Provider: ProviderNone}, nil
}
