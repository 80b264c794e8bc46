package registry

import (
	"testing"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
)

func TestStaticKeychainResolvesConfiguredRegistry(t *testing.T) {
	auth := &authn.Basic{Username: "user", Password: "secret"}
	kc := NewStaticKeychain(map[string]authn.Authenticator{
		"Index.Docker.IO": auth,
	})

	repo, err := name.NewRepository("index.docker.io/library/alpine", name.WeakValidation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resolved, err := kc.Resolve(repo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != auth {
		t.Fatal("expected configured authenticator")
	}
}

func TestStaticKeychainFallsBackToAnonymous(t *testing.T) {
	kc := NewStaticKeychain(nil)

	repo, err := name.NewRepository("ghcr.io/acme/alpine", name.WeakValidation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resolved, err := kc.Resolve(repo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != authn.Anonymous {
		t.Fatal("expected anonymous authenticator")
	}
}
