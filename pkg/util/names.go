package util

import (
	"path"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
)

// HasExplicitTag reports whether the raw image argument names a tag itself,
// as opposed to relying on the implicit default tag. Digests do not count.
func HasExplicitTag(image string) bool {
	trimmed := strings.TrimSpace(image)
	if idx := strings.Index(trimmed, "@"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	slash := strings.LastIndex(trimmed, "/")
	colon := strings.LastIndex(trimmed, ":")
	return colon > slash
}

// DestinationRepository derives the destination repository for a source
// reference. A registry path that already contains a "/" is treated as a
// fully rooted prefix and only the base name of the source repository is
// appended; a bare registry host keeps the source repository path minus its
// host component.
func DestinationRepository(registry string, src name.Reference) string {
	repo := src.Context().RepositoryStr()
	if strings.Contains(registry, "/") {
		return registry + "/" + path.Base(repo)
	}
	return registry + "/" + repo
}

// PlatformSuffix converts a platform string such as "linux/arm64/v8" into a
// form usable inside a tag.
func PlatformSuffix(platform string) string {
	return strings.ReplaceAll(platform, "/", "-")
}
