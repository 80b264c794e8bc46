// Package mirror implements the tag-selection and manifest-replication core:
// deciding which tags of a source repository qualify for mirroring and
// rebuilding each image, platform by platform, at the destination.
package mirror

import (
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/matzegebbe/hubmirror/internal/registry"
	"github.com/matzegebbe/hubmirror/pkg/util"
)

// Platform identifies one variant of a multi-platform image.
type Platform struct {
	OS           string
	Architecture string
	Variant      string
}

// String formats the platform as os/arch or os/arch/variant.
func (p Platform) String() string {
	if p.Variant != "" {
		return p.OS + "/" + p.Architecture + "/" + p.Variant
	}
	return p.OS + "/" + p.Architecture
}

// Suffix formats the platform for use inside a tag.
func (p Platform) Suffix() string {
	return util.PlatformSuffix(p.String())
}

func (p Platform) spec() *v1.Platform {
	return &v1.Platform{OS: p.OS, Architecture: p.Architecture, Variant: p.Variant}
}

// EnumeratePlatforms extracts the platform identifiers advertised by a
// manifest list. Entries missing os or architecture are skipped, never an
// error: mirroring must not abort because metadata for one platform line is
// absent. Attestation entries and "unknown" platforms are skipped the same
// way, and duplicates collapse to their first occurrence.
func EnumeratePlatforms(doc *registry.ManifestDocument) []Platform {
	if doc == nil {
		return nil
	}
	platforms := make([]Platform, 0, len(doc.Manifests))
	seen := make(map[string]struct{}, len(doc.Manifests))
	for i := range doc.Manifests {
		desc := &doc.Manifests[i]
		if !descriptorIsRunnable(desc) {
			continue
		}
		p := Platform{
			OS:           strings.TrimSpace(desc.Platform.OS),
			Architecture: strings.TrimSpace(desc.Platform.Architecture),
			Variant:      strings.TrimSpace(desc.Platform.Variant),
		}
		key := p.String()
		if _, ok := seen[key]; ok {
			continue
		}
		platforms = append(platforms, p)
		seen[key] = struct{}{}
	}
	return platforms
}

func descriptorIsRunnable(desc *v1.Descriptor) bool {
	if desc == nil {
		return false
	}
	if typ, ok := desc.Annotations["vnd.docker.reference.type"]; ok {
		if strings.EqualFold(strings.TrimSpace(typ), "attestation-manifest") {
			return false
		}
	}
	if desc.Platform == nil {
		return false
	}
	arch := strings.TrimSpace(desc.Platform.Architecture)
	if arch == "" || strings.EqualFold(arch, "unknown") {
		return false
	}
	os := strings.TrimSpace(desc.Platform.OS)
	if os == "" || strings.EqualFold(os, "unknown") {
		return false
	}
	return true
}
