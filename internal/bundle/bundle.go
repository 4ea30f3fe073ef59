// Package bundle packs a built extension artifact into a distributable
// archive: a zip holding the artifact itself, a templated MANIFEST, and a
// RECORD of sha256 digests. The RECORD lists every archived file as
// "path,sha256=<digest>,<size>" with the RECORD entry itself last and
// digest-less, and digests are urlsafe base64 without padding.
package bundle

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/zap"
)

const (
	generatorVersion = "0.1.0"

	manifestName = "MANIFEST"
	recordName   = "RECORD"
)

var manifestTemplate = template.Must(template.New("manifest").Parse(
	`Bundle-Version: 1.0
Generator: addhost {{.Generator}}
Module: {{.Name}}
Version: {{.Version}}
`))

// Builder writes module bundles.
type Builder struct {
	// Name and Version identify the bundled module and form the bundle
	// filename.
	Name    string
	Version string

	// Replace allows overwriting an existing bundle at the target path.
	Replace bool

	Logger *zap.Logger
}

// Filename returns the bundle's file name, <name>-<version>.bundle.
func (b *Builder) Filename() string {
	return fmt.Sprintf("%s-%s.bundle", b.Name, b.Version)
}

// Build packs the artifact at artifactPath into a bundle under outDir and
// returns the bundle path. The bundle is assembled in a temporary file and
// renamed into place, so a failed build leaves no partial output.
func (b *Builder) Build(artifactPath, outDir string) (string, error) {
	if err := b.validate(); err != nil {
		return "", err
	}

	artifact, err := os.ReadFile(artifactPath)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}

	target := filepath.Join(outDir, b.Filename())
	if _, err := os.Stat(target); err == nil && !b.Replace {
		return "", fmt.Errorf("bundle already exists: %s", target)
	}

	tmp, err := os.CreateTemp(outDir, ".bundle-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := b.write(tmp, filepath.Base(artifactPath), artifact); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to flush bundle: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("failed to move bundle into place: %w", err)
	}
	tmp = nil

	if b.Logger != nil {
		b.Logger.Info("built bundle",
			zap.String("path", target),
			zap.String("module", b.Name),
			zap.String("version", b.Version),
			zap.Int("artifact_bytes", len(artifact)))
	}
	return target, nil
}

func (b *Builder) validate() error {
	for _, field := range []struct{ name, value string }{
		{"name", b.Name},
		{"version", b.Version},
	} {
		if field.value == "" {
			return fmt.Errorf("bundle %s required", field.name)
		}
		if strings.ContainsAny(field.value, `/\-`) {
			return fmt.Errorf("bundle %s %q must not contain '/', '\\' or '-'", field.name, field.value)
		}
	}
	return nil
}

func (b *Builder) write(w *os.File, artifactName string, artifact []byte) error {
	manifest, err := b.renderManifest()
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	var record bytes.Buffer
	for _, entry := range []struct {
		name string
		data []byte
	}{
		{artifactName, artifact},
		{manifestName, manifest},
	} {
		if err := writeEntry(zw, entry.name, entry.data); err != nil {
			return err
		}
		fmt.Fprintf(&record, "%s,sha256=%s,%d\n", entry.name, digest(entry.data), len(entry.data))
	}
	fmt.Fprintf(&record, "%s,,\n", recordName)
	if err := writeEntry(zw, recordName, record.Bytes()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func (b *Builder) renderManifest() ([]byte, error) {
	var buf bytes.Buffer
	err := manifestTemplate.Execute(&buf, struct {
		Generator string
		Name      string
		Version   string
	}{generatorVersion, b.Name, b.Version})
	if err != nil {
		return nil, fmt.Errorf("failed to render manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// writeEntry adds one file with a zeroed timestamp so identical inputs
// produce identical bundles.
func writeEntry(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
