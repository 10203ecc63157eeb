package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every location and name the generator works with.
// It is built once per run and passed explicitly to each step.
type Config struct {
	// RootDir is the repository root; its subdirectories hold the addons.
	RootDir string `yaml:"root_dir,omitempty"`
	// CatalogFilename is the name of the aggregate catalog written into RootDir.
	CatalogFilename string `yaml:"catalog_filename"`
	// MetadataFilename is the per-addon metadata file looked up inside archives.
	MetadataFilename string `yaml:"metadata_filename"`
	// ArchiveExtension marks files that are extracted and scanned for metadata.
	ArchiveExtension string `yaml:"archive_extension"`
	// ChecksumSuffix is appended to a file path to get its sidecar checksum path.
	ChecksumSuffix string `yaml:"checksum_suffix"`
	// ChecksumAlgorithm selects the digest used for sidecar files.
	ChecksumAlgorithm string `yaml:"checksum_algorithm"`
	// ScratchDirname is the temporary extraction directory created next to an archive.
	ScratchDirname string `yaml:"scratch_dirname"`
	// SkipLooseMetadata disables collecting metadata files lying next to no archive.
	SkipLooseMetadata bool `yaml:"skip_loose_metadata"`
}

const (
	// DefaultConfigFilename is the default filename for generator settings.
	DefaultConfigFilename = "addons-generator-settings.yaml"

	// DefaultCatalogFilename is the name of the aggregate catalog.
	DefaultCatalogFilename = "addons.xml"

	// DefaultMetadataFilename is the name of the per-addon metadata file.
	DefaultMetadataFilename = "addon.xml"

	// DefaultArchiveExtension is the extension of packaged addons.
	DefaultArchiveExtension = ".zip"

	// DefaultChecksumSuffix is the extension of sidecar checksum files.
	DefaultChecksumSuffix = ".md5"

	// DefaultChecksumAlgorithm is the digest written into sidecar files.
	DefaultChecksumAlgorithm = "md5"

	// DefaultScratchDirname is the extraction directory created inside an addon directory.
	DefaultScratchDirname = "temp"

	// DefaultFilePermissions is the permission used for settings files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBadFilename is returned when a name setting contains a path.
	errBadFilename = errors.New("must be a plain file name")
	// errBadExtension is returned when an extension setting does not start with a dot.
	errBadExtension = errors.New("must start with a dot")
	// errUnknownAlgorithm is returned for unsupported checksum algorithms.
	errUnknownAlgorithm = errors.New("unknown checksum algorithm")
)

// SupportedAlgorithms lists accepted values of ChecksumAlgorithm.
func SupportedAlgorithms() []string {
	return []string{"md5", "sha1", "sha256", "sha512"}
}

// Default returns settings equal to the built-in behavior rooted at rootDir.
func Default(rootDir string) *Config {
	return &Config{
		RootDir:           rootDir,
		CatalogFilename:   DefaultCatalogFilename,
		MetadataFilename:  DefaultMetadataFilename,
		ArchiveExtension:  DefaultArchiveExtension,
		ChecksumSuffix:    DefaultChecksumSuffix,
		ChecksumAlgorithm: DefaultChecksumAlgorithm,
		ScratchDirname:    DefaultScratchDirname,
	}
}

// CatalogPath returns the fixed location of the aggregate catalog.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.RootDir, c.CatalogFilename)
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills unset fields with defaults and rejects malformed ones.
// RootDir may stay empty: the caller resolves it from the executable location.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	setDefault(&cfg.CatalogFilename, DefaultCatalogFilename)
	setDefault(&cfg.MetadataFilename, DefaultMetadataFilename)
	setDefault(&cfg.ArchiveExtension, DefaultArchiveExtension)
	setDefault(&cfg.ChecksumSuffix, DefaultChecksumSuffix)
	setDefault(&cfg.ChecksumAlgorithm, DefaultChecksumAlgorithm)
	setDefault(&cfg.ScratchDirname, DefaultScratchDirname)

	names := []setting{
		{key: "catalog_filename", value: cfg.CatalogFilename},
		{key: "metadata_filename", value: cfg.MetadataFilename},
		{key: "scratch_dirname", value: cfg.ScratchDirname},
	}
	for _, name := range names {
		if strings.ContainsAny(name.value, `/\`) || name.value == "." || name.value == ".." {
			return fmt.Errorf("%s %q: %w", name.key, name.value, errBadFilename)
		}
	}

	extensions := []setting{
		{key: "archive_extension", value: cfg.ArchiveExtension},
		{key: "checksum_suffix", value: cfg.ChecksumSuffix},
	}
	for _, ext := range extensions {
		if !strings.HasPrefix(ext.value, ".") || len(ext.value) < 2 {
			return fmt.Errorf("%s %q: %w", ext.key, ext.value, errBadExtension)
		}
	}

	cfg.ChecksumAlgorithm = strings.ToLower(strings.TrimSpace(cfg.ChecksumAlgorithm))

	for _, algorithm := range SupportedAlgorithms() {
		if cfg.ChecksumAlgorithm == algorithm {
			return nil
		}
	}

	return fmt.Errorf("%s: %w", cfg.ChecksumAlgorithm, errUnknownAlgorithm)
}

// setting pairs a settings file key with its value, in the order they are checked.
type setting struct {
	key   string
	value string
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}
