package mirror

import (
	"context"
	"fmt"
	"regexp"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/name"
	goversion "github.com/hashicorp/go-version"

	"github.com/matzegebbe/hubmirror/internal/registry"
	"github.com/matzegebbe/hubmirror/internal/versions"
)

// TagCandidate is a tag that matched the selection pattern together with its
// extracted version key.
type TagCandidate struct {
	Tag     string
	Version *goversion.Version
}

// TagSelector filters a repository's tag listing down to the versions worth
// mirroring.
type TagSelector struct {
	client registry.Client
	logger logr.Logger
}

func NewTagSelector(client registry.Client, logger logr.Logger) *TagSelector {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &TagSelector{client: client, logger: logger.WithName("selector")}
}

// Select lists the repository's tags and keeps those that match pattern,
// carry an extractable version, and fall inside bounds. Tags are returned in
// the order the registry listed them; no re-sorting is applied. An empty
// result is not an error. Tags whose version cannot be extracted are dropped
// silently.
func (s *TagSelector) Select(ctx context.Context, repo name.Repository, pattern *regexp.Regexp, bounds versions.Range) ([]TagCandidate, error) {
	tags, err := s.client.ListTags(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("select tags for %s: %w", repo.Name(), err)
	}

	log := s.logger.WithValues("repository", repo.Name())
	candidates := make([]TagCandidate, 0, len(tags))
	for _, tag := range tags {
		if !pattern.MatchString(tag) {
			continue
		}
		key, ok := versions.Extract(tag)
		if !ok {
			log.V(1).Info("tag matched pattern but has no extractable version, dropping", "tag", tag)
			continue
		}
		if !bounds.Contains(key) {
			log.V(1).Info("tag outside version range, dropping", "tag", tag, "range", bounds.String())
			continue
		}
		candidates = append(candidates, TagCandidate{Tag: tag, Version: key})
	}

	log.V(1).Info("tag selection finished", "listed", len(tags), "selected", len(candidates))
	return candidates, nil
}
