package generator

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // Reference digests for the sidecar format.
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/addons-generator/internal/config"
	"github.com/oshokin/addons-generator/internal/logger"
	"github.com/oshokin/addons-generator/internal/repository/catalog"
)

const (
	declaration = "<?xml version='1.0' encoding='UTF-8' standalone='yes'?>\n"

	fragmentA = `<addon id="pluginA" version="1.0.0" name="Plugin A" provider-name="oshokin">
    <extension point="xbmc.python.pluginsource" library="default.py"/>
</addon>
`
	fragmentB = `<addon id="pluginB" version="1.0.0" name="Plugin B" provider-name="oshokin">
    <extension point="xbmc.service" library="service.py"/>
</addon>
`
)

// writeFile creates path with content, creating parent directories.
func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// writeZip creates an archive at path holding the given name -> content entries.
func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)

	for name, content := range entries {
		entry, createErr := w.Create(name)
		require.NoError(t, createErr)

		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// md5Of returns the reference digest of the file at path.
func md5Of(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	sum := md5.Sum(data) //nolint:gosec // Reference digest.

	return hex.EncodeToString(sum[:])
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

// TestGenerate_EndToEnd covers a packaged and a loose addon side by side.
func TestGenerate_EndToEnd(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeZip(t, filepath.Join(root, "pluginA", "pluginA-1.0.0.zip"), map[string]string{
		"pluginA/addon.xml":  declaration + fragmentA,
		"pluginA/default.py": "print('A')\n",
	})
	writeFile(t, filepath.Join(root, "pluginB", "addon.xml"), declaration+fragmentB)

	report, err := Generate(context.Background(), config.Default(root))
	require.NoError(t, err)

	catalogPath := filepath.Join(root, "addons.xml")
	require.Equal(t, catalog.Header+fragmentA+fragmentB+catalog.Footer, readFile(t, catalogPath))
	require.Equal(t, md5Of(t, catalogPath)+"\n", readFile(t, catalogPath+".md5"))

	looseMetadata := filepath.Join(root, "pluginB", "addon.xml")
	require.Equal(t, md5Of(t, looseMetadata)+"\n", readFile(t, looseMetadata+".md5"))

	archivePath := filepath.Join(root, "pluginA", "pluginA-1.0.0.zip")
	require.Equal(t, md5Of(t, archivePath)+"\n", readFile(t, archivePath+".md5"))

	require.NoDirExists(t, filepath.Join(root, "pluginA", "temp"))
	require.NoFileExists(t, filepath.Join(root, MarkerFilename))

	require.Equal(t, catalogPath, report.CatalogPath)
	require.Equal(t, 2, report.FilesProcessed)
	require.Equal(t, 2, report.Fragments)
	require.Equal(t, 1, report.Archives)
	require.Zero(t, report.ArchivesExcluded)
	require.Equal(t, 3, report.ChecksumsWritten)
	require.False(t, report.HasFailures())
}

// TestGenerate_CorruptArchiveIsolation ensures a broken archive does not hide its siblings.
func TestGenerate_CorruptArchiveIsolation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pluginA", "pluginA-1.0.0.zip"), "definitely not a zip")
	writeZip(t, filepath.Join(root, "pluginB", "pluginB-1.0.0.zip"), map[string]string{
		"pluginB/addon.xml": declaration + fragmentB,
	})

	report, err := Generate(context.Background(), config.Default(root))
	require.NoError(t, err)

	require.Equal(t, catalog.Header+fragmentB+catalog.Footer, readFile(t, filepath.Join(root, "addons.xml")))
	require.Equal(t, 1, report.ArchivesExcluded)
	require.Equal(t, 1, report.Archives)
	require.Len(t, report.Failures, 1)
	require.Contains(t, report.Failures[0].Path, "pluginA-1.0.0.zip")
	require.NotEmpty(t, report.Failures[0].Cause())

	// The broken archive still gets its checksum.
	require.FileExists(t, filepath.Join(root, "pluginA", "pluginA-1.0.0.zip.md5"))
	require.NoDirExists(t, filepath.Join(root, "pluginA", "temp"))
	require.NoDirExists(t, filepath.Join(root, "pluginB", "temp"))
}

// TestGenerate_SidecarsNotRegenerated verifies existing sidecars are kept even when stale.
func TestGenerate_SidecarsNotRegenerated(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	payload := filepath.Join(root, "pluginB", "icon.png")
	writeFile(t, payload, "old icon")

	_, err := Generate(context.Background(), config.Default(root))
	require.NoError(t, err)

	first := readFile(t, payload+".md5")
	require.Equal(t, md5Of(t, payload)+"\n", first)

	writeFile(t, payload, "new icon")
	writeFile(t, filepath.Join(root, "pluginB", "fanart.jpg"), "fanart")

	report, err := Generate(context.Background(), config.Default(root))
	require.NoError(t, err)

	require.Equal(t, first, readFile(t, payload+".md5"))
	require.NotEqual(t, md5Of(t, payload)+"\n", readFile(t, payload+".md5"))
	require.Equal(t, 1, report.ChecksumsSkipped)
	// fanart.jpg and the catalog.
	require.Equal(t, 2, report.ChecksumsWritten)

	// The catalog sidecar always follows the catalog.
	catalogPath := filepath.Join(root, "addons.xml")
	require.Equal(t, md5Of(t, catalogPath)+"\n", readFile(t, catalogPath+".md5"))
}

// TestGenerate_RootFilesSkipped checks that files directly in the root are neither hashed nor collected.
func TestGenerate_RootFilesSkipped(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "README.md"), "repository")
	writeFile(t, filepath.Join(root, "addon.xml"), fragmentA)
	writeFile(t, filepath.Join(root, "addons.xml"), "previous catalog")

	report, err := Generate(context.Background(), config.Default(root))
	require.NoError(t, err)

	require.NoFileExists(t, filepath.Join(root, "README.md.md5"))
	require.NoFileExists(t, filepath.Join(root, "addon.xml.md5"))
	require.Equal(t, catalog.Header+catalog.Footer, readFile(t, filepath.Join(root, "addons.xml")))
	require.Zero(t, report.FilesProcessed)
	require.Equal(t, 1, report.ChecksumsWritten)
}

// TestGenerate_LooseMetadataNextToArchive verifies archive metadata wins over a loose copy.
func TestGenerate_LooseMetadataNextToArchive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pluginA", "addon.xml"), declaration+fragmentA)
	writeZip(t, filepath.Join(root, "pluginA", "pluginA-1.0.0.zip"), map[string]string{
		"pluginA/addon.xml": declaration + fragmentA,
	})

	report, err := Generate(context.Background(), config.Default(root))
	require.NoError(t, err)

	require.Equal(t, catalog.Header+fragmentA+catalog.Footer, readFile(t, filepath.Join(root, "addons.xml")))
	require.Equal(t, 1, report.Fragments)
	require.FileExists(t, filepath.Join(root, "pluginA", "addon.xml.md5"))
}

// TestGenerate_SkipLooseMetadata verifies loose metadata can be ignored.
func TestGenerate_SkipLooseMetadata(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pluginB", "addon.xml"), declaration+fragmentB)

	cfg := config.Default(root)
	cfg.SkipLooseMetadata = true

	report, err := Generate(context.Background(), cfg)
	require.NoError(t, err)

	require.Equal(t, catalog.Header+catalog.Footer, readFile(t, filepath.Join(root, "addons.xml")))
	require.Zero(t, report.Fragments)
	require.FileExists(t, filepath.Join(root, "pluginB", "addon.xml.md5"))
}

// TestGenerate_FilesBeforeSubdirectories verifies a directory's own files are handled before its subdirectories.
func TestGenerate_FilesBeforeSubdirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeZip(t, filepath.Join(root, "repo", "b.zip"), map[string]string{
		"addon.xml": declaration + fragmentB,
	})
	writeZip(t, filepath.Join(root, "repo", "a-nested", "x.zip"), map[string]string{
		"addon.xml": declaration + fragmentA,
	})

	report, err := Generate(context.Background(), config.Default(root))
	require.NoError(t, err)

	require.Equal(t, catalog.Header+fragmentB+fragmentA+catalog.Footer, readFile(t, filepath.Join(root, "addons.xml")))
	require.Equal(t, 2, report.Archives)
	require.FileExists(t, filepath.Join(root, "repo", "b.zip.md5"))
	require.FileExists(t, filepath.Join(root, "repo", "a-nested", "x.zip.md5"))
}

// TestGenerate_ScratchDirectorySortedFirst checks that a leftover scratch directory sorting
// before the archive is removed by the extraction instead of being hashed.
func TestGenerate_ScratchDirectorySortedFirst(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeZip(t, filepath.Join(root, "pluginA", "z.zip"), map[string]string{
		"addon.xml": fragmentA,
	})
	writeFile(t, filepath.Join(root, "pluginA", "a-temp", "keep.txt"), "kept")
	writeFile(t, filepath.Join(root, "pluginA", "temp", "leftover.txt"), "left behind")

	cfg := config.Default(root)

	report, err := Generate(context.Background(), cfg)
	require.NoError(t, err)

	require.Equal(t, catalog.Header+fragmentA+catalog.Footer, readFile(t, filepath.Join(root, "addons.xml")))
	require.NoDirExists(t, filepath.Join(root, "pluginA", "temp"))
	require.FileExists(t, filepath.Join(root, "pluginA", "a-temp", "keep.txt.md5"))
	// z.zip and a-temp/keep.txt.
	require.Equal(t, 2, report.FilesProcessed)
}

// TestGenerate_ErrorsCarryStack verifies per-item failures are logged with the caller's stack.
func TestGenerate_ErrorsCarryStack(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pluginA", "pluginA-1.0.0.zip"), "definitely not a zip")

	var buf bytes.Buffer

	ctx := logger.ToContext(context.Background(), logger.New(zapcore.InfoLevel, &buf))

	report, err := Generate(ctx, config.Default(root))
	require.NoError(t, err)
	require.Equal(t, 1, report.ArchivesExcluded)

	out := buf.String()
	require.Contains(t, out, "Excluding addon directory")
	require.Contains(t, out, "extractArchive")
}

// TestGenerate_LeftoverScratchDirectory checks that a scratch directory removed mid-walk is skipped.
func TestGenerate_LeftoverScratchDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeZip(t, filepath.Join(root, "pluginA", "a.zip"), map[string]string{
		"addon.xml": fragmentA,
	})
	writeFile(t, filepath.Join(root, "pluginA", "temp", "leftover.txt"), "left behind")

	report, err := Generate(context.Background(), config.Default(root))
	require.NoError(t, err)

	require.Equal(t, catalog.Header+fragmentA+catalog.Footer, readFile(t, filepath.Join(root, "addons.xml")))
	require.NoDirExists(t, filepath.Join(root, "pluginA", "temp"))
	require.Equal(t, 1, report.FilesProcessed)
}

// TestGenerate_ChecksumWriteFailure ensures an unwritable sidecar is recorded and the run completes.
func TestGenerate_ChecksumWriteFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pluginB", "addon.xml"), fragmentB)
	// A directory in place of the catalog sidecar makes the write fail.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "addons.xml.md5"), 0o755))

	report, err := Generate(context.Background(), config.Default(root))
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	require.True(t, strings.HasSuffix(report.Failures[0].Path, "addons.xml.md5"))
	require.Equal(t, catalog.Header+fragmentB+catalog.Footer, readFile(t, filepath.Join(root, "addons.xml")))
}

// TestGenerate_MultipleAlgorithms verifies the configured digest is used for sidecars.
func TestGenerate_MultipleAlgorithms(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pluginB", "addon.xml"), fragmentB)

	cfg := config.Default(root)
	cfg.ChecksumAlgorithm = "sha256"
	cfg.ChecksumSuffix = ".sha256"

	_, err := Generate(context.Background(), cfg)
	require.NoError(t, err)

	digest := strings.TrimSuffix(readFile(t, filepath.Join(root, "pluginB", "addon.xml.sha256")), "\n")
	require.Len(t, digest, 64)
	require.NoFileExists(t, filepath.Join(root, "pluginB", "addon.xml.md5"))
}

// TestGenerate_InvalidRoot verifies fatal errors for a missing or non-directory root.
func TestGenerate_InvalidRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := Generate(context.Background(), config.Default(filepath.Join(root, "missing")))
	require.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(root, "file")
	writeFile(t, file, "x")

	_, err = Generate(context.Background(), config.Default(file))
	require.ErrorIs(t, err, errRootNotDirectory)
}

// TestGenerate_Canceled checks that an interrupted run stops with the context error.
func TestGenerate_Canceled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pluginB", "addon.xml"), fragmentB)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Generate(ctx, config.Default(root))
	require.ErrorIs(t, err, context.Canceled)
	require.NoFileExists(t, filepath.Join(root, MarkerFilename))
}

// TestResolveConfig checks precedence of the root override, the settings file and the executable location.
func TestResolveConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.yaml")

	fromFile := config.Default(filepath.Join(dir, "from-file"))
	fromFile.CatalogFilename = "repository.xml"
	require.NoError(t, config.Save(settings, fromFile))

	cfg, err := resolveConfig(&Options{ConfigPath: settings})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "from-file"), cfg.RootDir)
	require.Equal(t, "repository.xml", cfg.CatalogFilename)

	cfg, err = resolveConfig(&Options{ConfigPath: settings, RootDir: dir})
	require.NoError(t, err)
	require.Equal(t, dir, cfg.RootDir)

	exeDir, err := ExecutableDir()
	require.NoError(t, err)

	cfg, err = resolveConfig(&Options{})
	require.NoError(t, err)
	require.Equal(t, exeDir, cfg.RootDir)
	require.Equal(t, config.DefaultCatalogFilename, cfg.CatalogFilename)

	_, err = resolveConfig(&Options{ConfigPath: filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}
