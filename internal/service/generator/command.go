package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/addons-generator/internal/archive"
	"github.com/oshokin/addons-generator/internal/checksum"
	"github.com/oshokin/addons-generator/internal/config"
	"github.com/oshokin/addons-generator/internal/domain/addon"
	"github.com/oshokin/addons-generator/internal/logger"
	"github.com/oshokin/addons-generator/internal/repository/catalog"
)

// Options contains inputs for the generator entry point.
type Options struct {
	// ConfigPath is an optional settings file; built-in defaults apply when empty.
	ConfigPath string
	// RootDir overrides the repository root. By default the directory holding
	// the executable is used, never the process working directory.
	RootDir string
}

// generator holds the state of a single catalog run.
// It is unexported: callers use Run or Generate.
type generator struct {
	// cfg is the resolved configuration shared by every step.
	cfg *config.Config
	// doc is the catalog being assembled.
	doc *catalog.Document
	// extractor unpacks archives into the scratch directory.
	extractor *archive.Extractor
	// calc computes sidecar digests.
	calc *checksum.Calculator
	// guard refuses concurrent runs on the same root.
	guard *runGuard
	// report accumulates per-item results.
	report *addon.Report
	// archiveDirs caches whether a directory holds at least one archive.
	archiveDirs map[string]bool
}

var errRootNotDirectory = errors.New("root is not a directory")

// Run executes the catalog generation workflow.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "addons-generator")

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	report, err := Generate(ctx, cfg)
	if err != nil {
		return fmt.Errorf("generate catalog: %w", err)
	}

	logger.InfoKV(ctx, "Finished updating addons xml and md5 files",
		"catalog", report.CatalogPath,
		"files", report.FilesProcessed,
		"fragments", report.Fragments,
		"archives", report.Archives,
		"archives_excluded", report.ArchivesExcluded,
		"checksums_written", report.ChecksumsWritten,
		"checksums_skipped", report.ChecksumsSkipped,
		"failures", len(report.Failures),
		"duration", report.Duration)

	return nil
}

// Generate runs one pass over cfg.RootDir and returns what happened.
// The returned error is fatal: the catalog may be incomplete.
func Generate(ctx context.Context, cfg *config.Config) (*addon.Report, error) {
	g, err := newGenerator(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize generator: %w", err)
	}

	if err = g.guard.Acquire(ctx); err != nil {
		return nil, err
	}

	defer g.guard.Release(ctx)

	if err = g.Run(ctx); err != nil {
		return g.report, err
	}

	return g.report, nil
}

// resolveConfig merges the settings file, the root override and the executable location.
func resolveConfig(opts *Options) (*config.Config, error) {
	cfg := config.Default("")

	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	if opts.RootDir != "" {
		cfg.RootDir = opts.RootDir
	}

	if cfg.RootDir == "" {
		dir, err := ExecutableDir()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}

		cfg.RootDir = dir
	}

	return cfg, nil
}

// ExecutableDir returns the directory of the running binary with symlinks resolved.
func ExecutableDir() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", err
	}

	if resolved, evalErr := filepath.EvalSymlinks(path); evalErr == nil {
		path = resolved
	}

	return filepath.Dir(path), nil
}

// newGenerator validates cfg and wires the collaborators of a run.
func newGenerator(cfg *config.Config) (*generator, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, errRootNotDirectory)
	}

	cfg.RootDir = root

	extractor, err := archive.NewExtractor(cfg.ScratchDirname, cfg.MetadataFilename)
	if err != nil {
		return nil, err
	}

	calc, err := checksum.New(cfg.ChecksumAlgorithm)
	if err != nil {
		return nil, err
	}

	return &generator{
		cfg:       cfg,
		doc:       catalog.NewDocument(cfg.CatalogPath()),
		extractor: extractor,
		calc:      calc,
		guard:     newRunGuard(root),
		report: &addon.Report{
			CatalogPath: cfg.CatalogPath(),
		},
		archiveDirs: make(map[string]bool),
	}, nil
}

// Run writes the catalog and the checksum sidecars.
func (g *generator) Run(ctx context.Context) error {
	startedAt := time.Now()

	defer func() {
		g.report.Duration = time.Since(startedAt)
	}()

	logger.InfoKV(ctx, "Generating addons catalog",
		"root", g.cfg.RootDir, "catalog", g.doc.Path())

	if err := g.doc.Begin(); err != nil {
		return err
	}

	if err := g.walk(ctx); err != nil {
		return fmt.Errorf("walk %s: %w", g.cfg.RootDir, err)
	}

	if err := g.doc.Finish(); err != nil {
		return err
	}

	// The catalog checksum is always rewritten.
	return g.writeChecksum(ctx, g.doc.Path())
}

// walk visits every file below the root, skipping files placed directly in the root.
func (g *generator) walk(ctx context.Context) error {
	return g.walkDir(ctx, g.cfg.RootDir)
}

// walkDir handles the files of dir in name order before descending into its
// subdirectories, also in name order. Directories that disappear while walking,
// such as a scratch directory removed by an extraction, are ignored.
func (g *generator) walkDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if dir != g.cfg.RootDir && errors.Is(err, fs.ErrNotExist) {
			logger.DebugKV(ctx, "Directory vanished during traversal", "path", dir)
			return nil
		}

		return err
	}

	subdirs := make([]string, 0, len(entries))

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		switch {
		case entry.IsDir():
			subdirs = append(subdirs, path)
			continue
		case isDirLink(path, entry), dir == g.cfg.RootDir:
			continue
		}

		if err = ctx.Err(); err != nil {
			return err
		}

		if err = g.processFile(ctx, dir, entry.Name()); err != nil {
			return err
		}
	}

	for _, subdir := range subdirs {
		if err = g.walkDir(ctx, subdir); err != nil {
			return err
		}
	}

	return nil
}

// processFile handles one file of an addon directory.
// Archive and fragment failures are recorded; only checksum calculation errors are returned.
func (g *generator) processFile(ctx context.Context, dir, name string) error {
	g.report.FilesProcessed++

	logger.InfoKV(ctx, "Processing file", "file", name, "dir", g.relative(dir))

	switch {
	case strings.HasSuffix(name, g.cfg.ArchiveExtension):
		g.extractArchive(ctx, dir, name)
	case name == g.cfg.MetadataFilename && !g.cfg.SkipLooseMetadata:
		g.appendLooseFragment(ctx, dir, name)
	}

	if checksum.IsSidecar(name, g.cfg.ChecksumSuffix) {
		return nil
	}

	path := filepath.Join(dir, name)

	if checksum.SidecarExists(path, g.cfg.ChecksumSuffix) {
		g.report.ChecksumsSkipped++
		return nil
	}

	logger.InfoKV(ctx, "Calculating checksum", "file", name, "algorithm", g.calc.Hash().String())

	return g.writeChecksum(ctx, path)
}

// extractArchive appends every metadata fragment of the archive to the catalog.
// A failing archive excludes its directory and the run continues.
func (g *generator) extractArchive(ctx context.Context, dir, name string) {
	archivePath := filepath.Join(dir, name)

	found, err := g.extractor.Extract(dir, name, func(fragmentPath string) error {
		if appendErr := g.doc.AppendFragment(fragmentPath); appendErr != nil {
			return appendErr
		}

		g.report.Record(addon.Success(addon.KindFragment, archivePath))

		return nil
	})
	if err != nil {
		res := addon.Failure(addon.KindArchive, archivePath, err)
		g.report.Record(res)

		logger.ErrorStackKV(ctx, "Excluding addon directory",
			"dir", g.relative(dir), "archive", name, "error", res.Cause())

		return
	}

	g.report.Record(addon.Success(addon.KindArchive, archivePath))

	if found == 0 {
		logger.WarnKV(ctx, "No metadata file found in archive",
			"archive", name, "metadata", g.cfg.MetadataFilename)
	}
}

// appendLooseFragment appends a metadata file found outside any archive.
// Directories holding an archive are skipped: their metadata comes from the archive.
func (g *generator) appendLooseFragment(ctx context.Context, dir, name string) {
	if g.hasArchive(dir) {
		logger.DebugKV(ctx, "Loose metadata ignored, directory holds an archive", "dir", g.relative(dir))
		return
	}

	path := filepath.Join(dir, name)

	res := addon.Success(addon.KindFragment, path)
	if err := g.doc.AppendFragment(path); err != nil {
		res = addon.Failure(addon.KindFragment, path, err)

		logger.ErrorStackKV(ctx, "Excluding loose metadata file",
			"dir", g.relative(dir), "file", name, "error", res.Cause())
	}

	g.report.Record(res)
}

// hasArchive reports whether dir directly contains a file with the archive extension.
func (g *generator) hasArchive(dir string) bool {
	if found, ok := g.archiveDirs[dir]; ok {
		return found
	}

	found := false

	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), g.cfg.ArchiveExtension) {
				found = true
				break
			}
		}
	}

	g.archiveDirs[dir] = found

	return found
}

// writeChecksum computes the digest of path and writes its sidecar.
// A write failure is recorded and logged; a read failure is returned.
func (g *generator) writeChecksum(ctx context.Context, path string) error {
	digest, err := g.calc.File(path)
	if err != nil {
		return fmt.Errorf("calculate checksum: %w", err)
	}

	target := checksum.SidecarPath(path, g.cfg.ChecksumSuffix)

	if err = checksum.WriteSidecar(digest, target); err != nil {
		res := addon.Failure(addon.KindChecksum, target, err)
		g.report.Record(res)

		logger.ErrorStackKV(ctx, "An error occurred creating checksum file",
			"path", target, "error", res.Cause())

		return nil
	}

	g.report.Record(addon.Success(addon.KindChecksum, target))

	return nil
}

// relative shortens path for logs.
func (g *generator) relative(path string) string {
	rel, err := filepath.Rel(g.cfg.RootDir, path)
	if err != nil {
		return path
	}

	return rel
}

// isDirLink reports whether d is a symbolic link pointing to a directory.
// Such links are not followed and not treated as files.
func isDirLink(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}
