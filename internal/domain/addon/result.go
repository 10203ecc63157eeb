package addon

import (
	"fmt"
	"time"
)

// Kind names the item a Result is about.
type Kind string

const (
	// KindFragment is a metadata fragment appended to the catalog.
	KindFragment Kind = "fragment"
	// KindArchive is a packaged addon that was extracted and scanned.
	KindArchive Kind = "archive"
	// KindChecksum is a sidecar checksum file.
	KindChecksum Kind = "checksum"
)

// Result is the outcome of processing a single item.
// A nil Err means success.
type Result struct {
	// Kind tells what was processed.
	Kind Kind
	// Path is the file the result refers to.
	Path string
	// Err holds the failure cause, if any.
	Err error
}

// Success builds a successful result.
func Success(kind Kind, path string) Result {
	return Result{Kind: kind, Path: path}
}

// Failure builds a failed result.
func Failure(kind Kind, path string, err error) Result {
	return Result{Kind: kind, Path: path, Err: err}
}

// Failed reports whether the item could not be processed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Cause returns a human-readable failure description or an empty string.
func (r Result) Cause() string {
	if r.Err == nil {
		return ""
	}

	return r.Err.Error()
}

// String renders the result for logs.
func (r Result) String() string {
	if r.Err == nil {
		return fmt.Sprintf("%s %s: ok", r.Kind, r.Path)
	}

	return fmt.Sprintf("%s %s: %s", r.Kind, r.Path, r.Err)
}

// Report summarizes a generator run.
type Report struct {
	// CatalogPath is where the catalog was written.
	CatalogPath string
	// FilesProcessed counts every file visited below the root.
	FilesProcessed int
	// Fragments counts metadata fragments appended to the catalog.
	Fragments int
	// Archives counts archives that were extracted and scanned.
	Archives int
	// ArchivesExcluded counts archives that failed and were left out.
	ArchivesExcluded int
	// ChecksumsWritten counts sidecar files created, the catalog's included.
	ChecksumsWritten int
	// ChecksumsSkipped counts files that already had a sidecar.
	ChecksumsSkipped int
	// Failures keeps every failed result in discovery order.
	Failures []Result
	// Duration is the wall time of the run.
	Duration time.Duration
}

// Record folds a result into the counters.
func (r *Report) Record(res Result) {
	if res.Failed() {
		r.Failures = append(r.Failures, res)

		if res.Kind == KindArchive {
			r.ArchivesExcluded++
		}

		return
	}

	switch res.Kind {
	case KindFragment:
		r.Fragments++
	case KindArchive:
		r.Archives++
	case KindChecksum:
		r.ChecksumsWritten++
	}
}

// HasFailures reports whether any item failed.
func (r *Report) HasFailures() bool {
	return len(r.Failures) > 0
}
