// Package registry provides the transport-facing client the mirroring core
// drives: canonical name resolution, tag listing, manifest inspection, and
// the pull/tag/push primitives including manifest-list assembly.
package registry

import (
	"context"
	"errors"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/types"
)

// ErrManifestNotFound reports that the inspected reference has no manifest
// at the registry. Callers use it to distinguish "not mirrored yet" from
// transport failures.
var ErrManifestNotFound = errors.New("registry: manifest not found")

// ManifestDocument is a typed parse of a manifest response. For manifest
// lists, Manifests carries the child descriptors; for single-platform
// images it is empty.
type ManifestDocument struct {
	MediaType types.MediaType
	Digest    v1.Hash
	Manifests []v1.Descriptor
}

// MultiPlatform reports whether the document is a manifest list.
func (d *ManifestDocument) MultiPlatform() bool {
	return d != nil && d.MediaType.IsIndex()
}

// Client is the registry collaborator consumed by the mirroring core. All
// references are passed as fully qualified strings with explicit tags.
// Pull, Tag and RemoveLocal operate on a process-local image store;
// CreateOrAmendManifestList builds up an in-progress destination manifest
// list that PushManifestList publishes in one shot.
type Client interface {
	ResolveCanonicalName(image string) (name.Reference, error)
	ListTags(ctx context.Context, repo name.Repository) ([]string, error)
	InspectManifest(ctx context.Context, ref string) (*ManifestDocument, error)
	Pull(ctx context.Context, ref string, platform *v1.Platform) error
	Tag(ctx context.Context, src, dst string) error
	Push(ctx context.Context, ref string) error
	RemoveLocal(ctx context.Context, ref string) error
	CreateOrAmendManifestList(ctx context.Context, list, member string, first bool) error
	PushManifestList(ctx context.Context, list string) error
}
