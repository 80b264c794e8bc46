package registry

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	remotetransport "github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

type fakeTarget struct {
	registry string
	insecure bool
	ensured  []string
}

func (f *fakeTarget) Registry() string { return f.registry }
func (f *fakeTarget) Insecure() bool   { return f.insecure }
func (f *fakeTarget) EnsureRepository(_ context.Context, name string) error {
	f.ensured = append(f.ensured, name)
	return nil
}
func (f *fakeTarget) BasicAuth(_ context.Context) (string, string, error) { return "", "", nil }

func newTestClient(t *testing.T, target Target) *remoteClient {
	t.Helper()
	c, ok := NewRemote(Options{Target: target}).(*remoteClient)
	if !ok {
		t.Fatal("NewRemote did not return a *remoteClient")
	}
	return c
}

func TestResolveCanonicalNameDefaultsToDockerHub(t *testing.T) {
	c := newTestClient(t, &fakeTarget{registry: "ghcr.io/acme"})

	ref, err := c.ResolveCanonicalName("alpine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ref.Context().RegistryStr(); got != name.DefaultRegistry {
		t.Fatalf("expected %s, got %s", name.DefaultRegistry, got)
	}
	if got := ref.Context().RepositoryStr(); got != "library/alpine" {
		t.Fatalf("expected library/alpine, got %s", got)
	}
}

func TestTagAliasesLocalImage(t *testing.T) {
	c := newTestClient(t, &fakeTarget{registry: "ghcr.io/acme"})
	ctx := context.Background()

	if err := c.Tag(ctx, "missing:1", "dst:1"); err == nil {
		t.Fatal("expected error for unknown local image")
	}

	c.images["src:1"] = empty.Image
	if err := c.Tag(ctx, "src:1", "dst:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.images["dst:1"]; !ok {
		t.Fatal("expected dst:1 in local store")
	}

	if err := c.RemoveLocal(ctx, "dst:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.images["dst:1"]; ok {
		t.Fatal("expected dst:1 removed from local store")
	}
}

func TestCreateOrAmendManifestListRequiresCreateFirst(t *testing.T) {
	c := newTestClient(t, &fakeTarget{registry: "ghcr.io/acme"})
	ctx := context.Background()
	c.images["member:1"] = empty.Image

	if err := c.CreateOrAmendManifestList(ctx, "list:1", "member:1", false); err == nil {
		t.Fatal("expected error when amending before create")
	}
	if err := c.CreateOrAmendManifestList(ctx, "list:1", "member:1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.CreateOrAmendManifestList(ctx, "list:1", "member:1", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(c.pending["list:1"]); got != 2 {
		t.Fatalf("expected 2 pending members, got %d", got)
	}
}

func TestPushManifestListPublishesPendingMembers(t *testing.T) {
	target := &fakeTarget{registry: "ghcr.io/acme"}
	c := newTestClient(t, target)
	ctx := context.Background()
	c.images["member:1"] = empty.Image
	if err := c.CreateOrAmendManifestList(ctx, "ghcr.io/acme/alpine:3.18", "member:1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var gotMembers int
	oldWriteIndex := remoteWriteIndexFunc
	remoteWriteIndexFunc = func(_ name.Reference, ii v1.ImageIndex, _ ...remote.Option) error {
		manifest, err := ii.IndexManifest()
		if err != nil {
			return err
		}
		gotMembers = len(manifest.Manifests)
		return nil
	}
	defer func() { remoteWriteIndexFunc = oldWriteIndex }()

	if err := c.PushManifestList(ctx, "ghcr.io/acme/alpine:3.18"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMembers != 1 {
		t.Fatalf("expected 1 member in published index, got %d", gotMembers)
	}
	if _, ok := c.pending["ghcr.io/acme/alpine:3.18"]; ok {
		t.Fatal("expected pending list to be cleared after push")
	}
	if len(target.ensured) != 1 || target.ensured[0] != "acme/alpine" {
		t.Fatalf("expected EnsureRepository(acme/alpine), got %v", target.ensured)
	}

	if err := c.PushManifestList(ctx, "ghcr.io/acme/alpine:3.18"); err == nil {
		t.Fatal("expected error for empty manifest list")
	}
}

func TestPushWritesLocalImageAndEnsuresRepository(t *testing.T) {
	target := &fakeTarget{registry: "ghcr.io/acme"}
	c := newTestClient(t, target)
	ctx := context.Background()
	c.images["ghcr.io/acme/alpine:3.18"] = empty.Image

	var pushed string
	oldWrite := remoteWriteFunc
	remoteWriteFunc = func(ref name.Reference, _ v1.Image, _ ...remote.Option) error {
		pushed = ref.Name()
		return nil
	}
	defer func() { remoteWriteFunc = oldWrite }()

	if err := c.Push(ctx, "ghcr.io/acme/alpine:3.18"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pushed != "ghcr.io/acme/alpine:3.18" {
		t.Fatalf("unexpected pushed ref %q", pushed)
	}
	if len(target.ensured) != 1 || target.ensured[0] != "acme/alpine" {
		t.Fatalf("expected EnsureRepository(acme/alpine), got %v", target.ensured)
	}

	if err := c.Push(ctx, "ghcr.io/acme/unknown:1"); err == nil {
		t.Fatal("expected error for unknown local image")
	}
}

func TestInspectManifestMapsNotFound(t *testing.T) {
	c := newTestClient(t, &fakeTarget{registry: "ghcr.io/acme"})

	oldGet := remoteGetFunc
	remoteGetFunc = func(_ name.Reference, _ ...remote.Option) (*remote.Descriptor, error) {
		return nil, &remotetransport.Error{StatusCode: http.StatusNotFound}
	}
	defer func() { remoteGetFunc = oldGet }()

	_, err := c.InspectManifest(context.Background(), "ghcr.io/acme/alpine:3.18")
	if !errors.Is(err, ErrManifestNotFound) {
		t.Fatalf("expected ErrManifestNotFound, got %v", err)
	}
}

func TestListTagsPreservesRegistryOrder(t *testing.T) {
	c := newTestClient(t, &fakeTarget{registry: "ghcr.io/acme"})

	oldList := remoteListFunc
	remoteListFunc = func(_ name.Repository, _ ...remote.Option) ([]string, error) {
		return []string{"latest", "3.19", "3.17", "edge"}, nil
	}
	defer func() { remoteListFunc = oldList }()

	repo, err := name.NewRepository("library/alpine", name.WeakValidation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tags, err := c.ListTags(context.Background(), repo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"latest", "3.19", "3.17", "edge"}
	for i, tag := range want {
		if tags[i] != tag {
			t.Fatalf("expected tags %v, got %v", want, tags)
		}
	}
}
