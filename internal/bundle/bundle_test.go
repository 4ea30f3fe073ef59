package bundle

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func buildTestBundle(t *testing.T, b *Builder, artifact []byte) string {
	t.Helper()
	dir := t.TempDir()
	artifactPath := filepath.Join(dir, "demo.wasm")
	if err := os.WriteFile(artifactPath, artifact, 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := b.Build(artifactPath, dir)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return out
}

func readEntry(t *testing.T, zr *zip.ReadCloser, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}
	t.Fatalf("entry %s not found", name)
	return ""
}

func TestBuildBundle(t *testing.T) {
	artifact := []byte("fake wasm bytes")
	b := &Builder{Name: "demo", Version: "0.1.0"}
	out := buildTestBundle(t, b, artifact)

	if filepath.Base(out) != "demo-0.1.0.bundle" {
		t.Errorf("unexpected bundle name: %s", filepath.Base(out))
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("bundle is not a zip: %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"demo.wasm", "MANIFEST", "RECORD"}, names); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	if got := readEntry(t, zr, "demo.wasm"); got != string(artifact) {
		t.Errorf("artifact corrupted: %q", got)
	}

	manifest := readEntry(t, zr, "MANIFEST")
	for _, want := range []string{"Bundle-Version: 1.0", "Module: demo", "Version: 0.1.0", "Generator: addhost"} {
		if !strings.Contains(manifest, want) {
			t.Errorf("MANIFEST missing %q:\n%s", want, manifest)
		}
	}

	sum := sha256.Sum256(artifact)
	wantLine := fmt.Sprintf("demo.wasm,sha256=%s,%d", base64.RawURLEncoding.EncodeToString(sum[:]), len(artifact))
	record := readEntry(t, zr, "RECORD")
	lines := strings.Split(strings.TrimSpace(record), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 RECORD lines, got %d:\n%s", len(lines), record)
	}
	if lines[0] != wantLine {
		t.Errorf("RECORD artifact line = %q, want %q", lines[0], wantLine)
	}
	if lines[2] != "RECORD,," {
		t.Errorf("RECORD must list itself last without a digest, got %q", lines[2])
	}
}

func TestBuildDeterministic(t *testing.T) {
	artifact := []byte("same bytes both times")
	b := &Builder{Name: "demo", Version: "0.1.0"}

	first, err := os.ReadFile(buildTestBundle(t, b, artifact))
	if err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(buildTestBundle(t, b, artifact))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("identical inputs produced different bundles")
	}
}

func TestBuildRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	artifactPath := filepath.Join(dir, "demo.wasm")
	if err := os.WriteFile(artifactPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := &Builder{Name: "demo", Version: "0.1.0"}
	if _, err := b.Build(artifactPath, dir); err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	if _, err := b.Build(artifactPath, dir); err == nil {
		t.Fatal("expected overwrite to be refused")
	}

	b.Replace = true
	if _, err := b.Build(artifactPath, dir); err != nil {
		t.Errorf("replace build failed: %v", err)
	}

	// A refused or failed build leaves no temp files behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".bundle-") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestBuildValidation(t *testing.T) {
	dir := t.TempDir()
	artifactPath := filepath.Join(dir, "demo.wasm")
	if err := os.WriteFile(artifactPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		builder *Builder
	}{
		{"empty name", &Builder{Version: "0.1.0"}},
		{"empty version", &Builder{Name: "demo"}},
		{"separator in name", &Builder{Name: "de/mo", Version: "0.1.0"}},
		{"dash in version", &Builder{Name: "demo", Version: "0.1-rc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.builder.Build(artifactPath, dir); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	b := &Builder{Name: "demo", Version: "0.1.0"}
	if _, err := b.Build(filepath.Join(dir, "missing.wasm"), dir); err == nil {
		t.Error("expected error for missing artifact")
	}
}
