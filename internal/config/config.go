package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for snapsync.
type Config struct {
	// Name is the project identity; it names the archive, the remote object
	// and the token file. Empty means the base name of the source root.
	Name        string            `toml:"name"`
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	Snapshot    SnapshotConfig    `toml:"snapshot"`
	Credentials CredentialsConfig `toml:"credentials"`
	Remote      RemoteConfig      `toml:"remote"`
	Database    DatabaseConfig    `toml:"database"`
	Hooks       HooksConfig       `toml:"hooks"`
}

// SnapshotConfig controls collection and archiving.
type SnapshotConfig struct {
	TempDir string   `toml:"temp_dir"`
	Exclude []string `toml:"exclude"`
	// CompressionLevel is a deflate level: -1 default, 0 store, 1 fastest through 9 smallest.
	CompressionLevel int `toml:"compression_level"`
}

// CredentialsConfig selects how remote credentials are obtained.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CredentialsConfig struct {
	Type string `toml:"type"` // "oauth", "static" or "none"

	// OAuth-specific fields (only used when Type == "oauth")
	ClientSecretPath string `toml:"client_secret_path,omitempty"`
	TokenPath        string `toml:"token_path,omitempty"`
	IdentityPath     string `toml:"identity_path,omitempty"` // age identity sealing the token file

	// Static-specific fields (only used when Type == "static")
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
}

// RemoteConfig represents configuration for the remote store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "gdrive", "s3", "filesystem" or "memory"

	// OnDuplicate is "first" (default) or "fail".
	OnDuplicate string `toml:"on_duplicate,omitempty"`

	// Drive-specific fields (only used when Type == "gdrive")
	GDriveFolderID  string `toml:"gdrive_folder_id,omitempty"`
	GDriveChunkSize int    `toml:"gdrive_chunk_size,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// DatabaseConfig represents configuration for the run-history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// HooksConfig holds commands run around a snapshot.
type HooksConfig struct {
	// PreSnapshot runs before collection, e.g. to make an editor save open files.
	PreSnapshot string `toml:"pre_snapshot,omitempty"`
}

// NewConfig creates a Config rooted at baseDir with a Drive remote and
// sqlite run history.
func NewConfig(name, baseDir string) *Config {
	return &Config{
		Name:    name,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Snapshot: SnapshotConfig{
			TempDir:          filepath.Join(baseDir, "tmp"),
			Exclude:          []string{"Temp"},
			CompressionLevel: -1,
		},
		Credentials: CredentialsConfig{
			Type:             "oauth",
			ClientSecretPath: filepath.Join(baseDir, "client_secret.json"),
		},
		Remote: RemoteConfig{
			Type:        "gdrive",
			OnDuplicate: "first",
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// TokenPath returns the configured token file, or the project-scoped default
// under base_dir.
func (c *Config) TokenPath(name string) string {
	if c.Credentials.TokenPath != "" {
		return c.Credentials.TokenPath
	}
	return filepath.Join(c.BaseDir, "tokens", name+".json")
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to a new file at path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold static keys.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("config file already exists at %s", path)
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("initializing config at %s: %w", path, err)
	}
	return nil
}
