package mirror

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/matzegebbe/hubmirror/internal/versions"
)

var defaultPattern = regexp.MustCompile(`[0-9]+(\.[0-9]+)+$`)

func alpineRepo(t *testing.T) name.Repository {
	t.Helper()
	repo, err := name.NewRepository("index.docker.io/library/alpine", name.WeakValidation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return repo
}

func TestSelectFiltersByPatternAndRange(t *testing.T) {
	client := newFakeClient()
	client.tags["index.docker.io/library/alpine"] = []string{"latest", "3.17", "3.18", "3.19.1", "edge"}
	s := NewTagSelector(client, testLogger(t))

	bounds, err := versions.ParseRange("3.18:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	candidates, err := s.Select(context.Background(), alpineRepo(t), defaultPattern, bounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"3.18", "3.19.1"}
	if len(candidates) != len(want) {
		t.Fatalf("expected %v, got %v", want, candidates)
	}
	for i, tag := range want {
		if candidates[i].Tag != tag {
			t.Fatalf("index %d: expected %q, got %q", i, tag, candidates[i].Tag)
		}
	}
}

func TestSelectPreservesRegistryOrder(t *testing.T) {
	client := newFakeClient()
	client.tags["index.docker.io/library/alpine"] = []string{"3.19", "3.17", "3.18"}
	s := NewTagSelector(client, testLogger(t))

	candidates, err := s.Select(context.Background(), alpineRepo(t), defaultPattern, versions.Range{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"3.19", "3.17", "3.18"}
	for i, tag := range want {
		if candidates[i].Tag != tag {
			t.Fatalf("expected registry order %v, got %v", want, candidates)
		}
	}
}

func TestSelectEmptyResultIsNotAnError(t *testing.T) {
	client := newFakeClient()
	client.tags["index.docker.io/library/alpine"] = []string{"latest", "edge"}
	s := NewTagSelector(client, testLogger(t))

	candidates, err := s.Select(context.Background(), alpineRepo(t), defaultPattern, versions.Range{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %v", candidates)
	}
}

func TestSelectDropsNearMatchTagsSilently(t *testing.T) {
	// "8" has digits but no dotted run, so version extraction fails; the tag
	// is dropped rather than surfaced as an error.
	client := newFakeClient()
	client.tags["index.docker.io/library/alpine"] = []string{"3.18", "8"}
	s := NewTagSelector(client, testLogger(t))

	pattern := regexp.MustCompile(`[0-9]+$`)
	candidates, err := s.Select(context.Background(), alpineRepo(t), pattern, versions.Range{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Tag != "3.18" {
		t.Fatalf("expected only 3.18, got %v", candidates)
	}
}

func TestSelectPropagatesListingErrors(t *testing.T) {
	client := newFakeClient()
	client.listErr = fmt.Errorf("boom")
	s := NewTagSelector(client, testLogger(t))

	if _, err := s.Select(context.Background(), alpineRepo(t), defaultPattern, versions.Range{}); err == nil {
		t.Fatal("expected error")
	}
}
