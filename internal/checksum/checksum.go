package checksum

import (
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	// Register the digests selectable through the checksum_algorithm setting.
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

const (
	// ChunkSize is the number of bytes hashed per read.
	ChunkSize = 4096

	// DefaultFunction is the digest used for sidecar files.
	DefaultFunction crypto.Hash = crypto.MD5

	// DefaultFileMode is used for sidecar files handed to the downstream installer.
	DefaultFileMode os.FileMode = 0o644
)

var (
	errHashUnavailable  = errors.New("hash function unavailable")
	errUnknownAlgorithm = errors.New("unknown checksum algorithm")
)

// Calculator hashes file contents with a fixed digest.
type Calculator struct {
	// hash is the digest function; it must be linked into the binary.
	hash crypto.Hash
}

// New returns a calculator for an algorithm name such as "md5" or "sha256".
// An empty name selects DefaultFunction.
func New(algorithm string) (*Calculator, error) {
	var hash crypto.Hash

	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "":
		hash = DefaultFunction
	case "md5":
		hash = crypto.MD5
	case "sha1":
		hash = crypto.SHA1
	case "sha256":
		hash = crypto.SHA256
	case "sha512":
		hash = crypto.SHA512
	default:
		return nil, fmt.Errorf("%s: %w", algorithm, errUnknownAlgorithm)
	}

	if !hash.Available() {
		return nil, fmt.Errorf("%s: %w", hash, errHashUnavailable)
	}

	return &Calculator{hash: hash}, nil
}

// Hash returns the digest function in use.
func (c *Calculator) Hash() crypto.Hash {
	return c.hash
}

// File returns the lowercase hex digest of the file at path.
// Any read error is returned as is; partial reads are never hashed.
func (c *Calculator) File(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	digest, err := c.Reader(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return digest, nil
}

// Reader returns the lowercase hex digest of everything read from r.
// Input is consumed in ChunkSize pieces.
func (c *Calculator) Reader(r io.Reader) (string, error) {
	var (
		hasher = c.hash.New()
		chunk  = make([]byte, ChunkSize)
	)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			// hash.Hash.Write never returns an error.
			_, _ = hasher.Write(chunk[:n])
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// SidecarPath returns the checksum file location for path.
func SidecarPath(path, suffix string) string {
	return path + suffix
}

// IsSidecar reports whether name is itself a checksum file.
func IsSidecar(name, suffix string) bool {
	return strings.HasSuffix(name, suffix)
}

// SidecarExists reports whether path already has a checksum file.
// Existing sidecars are trusted: their content is never compared with the file.
func SidecarExists(path, suffix string) bool {
	_, err := os.Stat(SidecarPath(path, suffix))

	return err == nil
}

// WriteSidecar writes digest and a trailing newline to target, replacing any content.
func WriteSidecar(digest, target string) error {
	if err := os.WriteFile(filepath.Clean(target), []byte(digest+"\n"), DefaultFileMode); err != nil {
		return fmt.Errorf("write checksum file: %w", err)
	}

	return nil
}
