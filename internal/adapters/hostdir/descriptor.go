package hostdir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/felixgeelhaar/catalogd/internal/domain/host"
)

// DescriptorFile is the package descriptor read from every package directory.
const DescriptorFile = "package.toml"

// ErrNoDescriptor indicates a directory without a package descriptor.
var ErrNoDescriptor = errors.New("no package descriptor")

// descriptor is the on-disk form of a package.
//
//	name = "com.example.en"
//	version_code = 3
//	version_name = "1.2"
//	label = "Example"
//	features = ["catalogd.plugin"]
//	artifact = "plugin.wasm"
//
//	[metadata]
//	"source.class" = ".Source"
type descriptor struct {
	Name        string            `toml:"name"`
	VersionCode int64             `toml:"version_code"`
	VersionName string            `toml:"version_name"`
	Label       string            `toml:"label"`
	Features    []string          `toml:"features"`
	Artifact    string            `toml:"artifact"`
	Metadata    map[string]string `toml:"metadata"`
}

// fingerprint identifies one installed version of a package.
type fingerprint [blake2b.Size256]byte

// readPackage parses the descriptor in dir. The package name defaults to the
// directory name and the artifact path is resolved against dir.
func readPackage(dir string) (host.PackageInfo, []byte, error) {
	raw, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if err != nil {
		if os.IsNotExist(err) {
			return host.PackageInfo{}, nil, ErrNoDescriptor
		}
		return host.PackageInfo{}, nil, fmt.Errorf("reading descriptor: %w", err)
	}

	var d descriptor
	if err := toml.Unmarshal(raw, &d); err != nil {
		return host.PackageInfo{}, nil, fmt.Errorf("parsing %s: %w", filepath.Join(dir, DescriptorFile), err)
	}

	name := strings.TrimSpace(d.Name)
	if name == "" {
		name = filepath.Base(dir)
	}

	artifact := d.Artifact
	if artifact != "" && !filepath.IsAbs(artifact) {
		artifact = filepath.Join(dir, artifact)
	}

	metadata := d.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return host.PackageInfo{
		Name:        name,
		Features:    d.Features,
		VersionCode: d.VersionCode,
		VersionName: d.VersionName,
		Label:       d.Label,
		Metadata:    metadata,
		Artifact:    artifact,
	}, raw, nil
}

// fingerprintOf hashes the descriptor and the artifact contents.
func fingerprintOf(info host.PackageInfo, raw []byte) (fingerprint, error) {
	var fp fingerprint

	h, err := blake2b.New256(nil)
	if err != nil {
		return fp, err
	}
	_, _ = h.Write(raw)

	if info.Artifact != "" {
		f, err := os.Open(info.Artifact)
		switch {
		case err == nil:
			_, err = io.Copy(h, f)
			_ = f.Close()
			if err != nil {
				return fp, fmt.Errorf("hashing artifact: %w", err)
			}
		case !os.IsNotExist(err):
			return fp, fmt.Errorf("opening artifact: %w", err)
		}
	}

	copy(fp[:], h.Sum(nil))
	return fp, nil
}
