package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oshokin/addons-generator/internal/domain/addon"
)

const (
	// Header opens the catalog: one declaration and the root element.
	Header = "<?xml version='1.0' encoding='UTF-8' standalone='yes'?>\n<addons>\n"

	// Footer closes the root element.
	Footer = "</addons>\n"

	// DefaultFileMode is used when creating the catalog file.
	DefaultFileMode os.FileMode = 0o644
)

// Document is the catalog file being assembled during a run.
type Document struct {
	// path is the filesystem location of the catalog.
	path string
}

// NewDocument creates a document bound to the catalog path.
func NewDocument(path string) *Document {
	return &Document{
		path: filepath.Clean(path),
	}
}

// Path returns the catalog location.
func (d *Document) Path() string {
	return d.path
}

// Begin truncates the catalog and writes the header.
func (d *Document) Begin() error {
	if err := os.WriteFile(d.path, []byte(Header), DefaultFileMode); err != nil {
		return fmt.Errorf("write catalog header: %w", err)
	}

	return nil
}

// Finish appends the footer without truncating.
func (d *Document) Finish() error {
	f, err := d.openForAppend()
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}

	if _, err = io.WriteString(f, Footer); err != nil {
		_ = f.Close()

		return fmt.Errorf("write catalog footer: %w", err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close catalog: %w", err)
	}

	return nil
}

// AppendFragment copies the metadata file at fragmentPath into the catalog,
// line by line, dropping every line rejected by addon.KeepLine.
// Line terminators are preserved, including a missing one on the last line.
// The fragment is not validated as XML.
func (d *Document) AppendFragment(fragmentPath string) error {
	src, err := os.Open(filepath.Clean(fragmentPath))
	if err != nil {
		return fmt.Errorf("open fragment: %w", err)
	}

	defer func() {
		_ = src.Close()
	}()

	dst, err := d.openForAppend()
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}

	if err = copyFiltered(dst, src, addon.KeepLine); err != nil {
		_ = dst.Close()

		return fmt.Errorf("append fragment %s: %w", fragmentPath, err)
	}

	if err = dst.Close(); err != nil {
		return fmt.Errorf("close catalog: %w", err)
	}

	return nil
}

func (d *Document) openForAppend() (*os.File, error) {
	return os.OpenFile(d.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, DefaultFileMode)
}

// copyFiltered writes every line of src accepted by keep to dst.
func copyFiltered(dst io.Writer, src io.Reader, keep func([]byte) bool) error {
	var (
		reader = bufio.NewReader(src)
		writer = bufio.NewWriter(dst)
	)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && keep(line) {
			if _, werr := writer.Write(line); werr != nil {
				return werr
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return err
		}
	}

	return writer.Flush()
}
