package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// DefaultDirMode is used for directories created during extraction.
	DefaultDirMode os.FileMode = 0o755

	// DefaultFileMode is used for files created during extraction.
	DefaultFileMode os.FileMode = 0o644
)

var (
	// ErrUnsafeEntry is returned for entries that would land outside the scratch directory.
	ErrUnsafeEntry = errors.New("archive entry escapes extraction directory")

	errNoScratchName  = errors.New("scratch directory name is not set")
	errNoMetadataName = errors.New("metadata file name is not set")
)

// VisitFunc receives the path of every metadata file found in an archive.
type VisitFunc func(path string) error

// Extractor unpacks archives and looks for metadata files inside them.
type Extractor struct {
	// scratchDirname is the directory created next to the archive for extraction.
	scratchDirname string
	// metadataFilename is the file name searched for in the extracted tree.
	metadataFilename string
}

// NewExtractor creates an extractor using the given scratch directory and metadata file names.
func NewExtractor(scratchDirname, metadataFilename string) (*Extractor, error) {
	if scratchDirname == "" {
		return nil, errNoScratchName
	}

	if metadataFilename == "" {
		return nil, errNoMetadataName
	}

	return &Extractor{
		scratchDirname:   scratchDirname,
		metadataFilename: metadataFilename,
	}, nil
}

// ScratchDir returns the extraction directory used for archives in dir.
func (e *Extractor) ScratchDir(dir string) string {
	return filepath.Join(dir, e.scratchDirname)
}

// Extract unpacks dir/archiveName into the scratch directory, calls visit for
// each metadata file found (in lexical order, zero or more times), and removes
// the scratch directory. It returns the number of metadata files visited.
// Opening or reading the archive, or a failing visit, aborts the scan with an error.
func (e *Extractor) Extract(dir, archiveName string, visit VisitFunc) (int, error) {
	scratch := e.ScratchDir(dir)

	if err := os.MkdirAll(scratch, DefaultDirMode); err != nil {
		return 0, fmt.Errorf("create scratch directory: %w", err)
	}

	// Best-effort cleanup.
	defer func() {
		_ = os.RemoveAll(scratch)
	}()

	if err := unzip(filepath.Join(dir, archiveName), scratch); err != nil {
		return 0, err
	}

	found := 0

	err := filepath.WalkDir(scratch, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || d.Name() != e.metadataFilename {
			return nil
		}

		if err = visit(path); err != nil {
			return err
		}

		found++

		return nil
	})
	if err != nil {
		return found, fmt.Errorf("scan %s: %w", archiveName, err)
	}

	return found, nil
}

// unzip writes every entry of the archive at src below dst.
func unzip(src, dst string) error {
	reader, err := zip.OpenReader(src)
	if errors.Is(err, zip.ErrInsecurePath) {
		_ = reader.Close()

		return fmt.Errorf("open archive: %w: %w", ErrUnsafeEntry, err)
	}

	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	for _, entry := range reader.File {
		if err = extractEntry(entry, dst); err != nil {
			return err
		}
	}

	return nil
}

// extractEntry writes a single zip entry below dst.
func extractEntry(entry *zip.File, dst string) error {
	name := filepath.FromSlash(entry.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("%s: %w", entry.Name, ErrUnsafeEntry)
	}

	target := filepath.Join(dst, name)

	if entry.FileInfo().IsDir() {
		if err := os.MkdirAll(target, DefaultDirMode); err != nil {
			return fmt.Errorf("create directory %s: %w", entry.Name, err)
		}

		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), DefaultDirMode); err != nil {
		return fmt.Errorf("create directory for %s: %w", entry.Name, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", entry.Name, err)
	}

	defer func() {
		_ = src.Close()
	}()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, DefaultFileMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", entry.Name, err)
	}

	//nolint:gosec // Addon archives come from the repository being packaged.
	if _, err = io.Copy(out, src); err != nil {
		_ = out.Close()

		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", entry.Name, err)
	}

	return nil
}
