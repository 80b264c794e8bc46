package mirror

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/matzegebbe/hubmirror/internal/registry"
	"github.com/matzegebbe/hubmirror/internal/versions"
	"github.com/matzegebbe/hubmirror/pkg/util"
)

// ErrNotFromSourceHub reports an image argument whose canonical reference
// does not live on the expected source registry. Mirroring is one-way from
// the hub by design.
var ErrNotFromSourceHub = errors.New("mirror: image does not resolve to the source hub")

// DefaultSourceHub is the canonical host images are mirrored from.
const DefaultSourceHub = name.DefaultRegistry

// hub hostnames that canonicalize to the same registry
var sourceHubAliases = map[string]struct{}{
	"docker.io":               {},
	"index.docker.io":         {},
	"registry-1.docker.io":    {},
	"registry.hub.docker.com": {},
}

// Config carries the immutable per-invocation settings of the orchestrator.
type Config struct {
	// Registry is the destination registry path, e.g. "ghcr.io/acme".
	Registry string
	// SourceHub is the canonical host images must resolve to.
	SourceHub string
	// TagPattern selects which tags of a bare repository argument qualify.
	TagPattern *regexp.Regexp
	// Bounds is the half-open version range applied after pattern matching.
	Bounds versions.Range
	// Force mirrors even when the destination tag already exists.
	Force bool
	// DryRun logs intended actions without any mutating registry call.
	DryRun bool
	// KeepGoing continues with the next task after a replication failure
	// instead of aborting the invocation.
	KeepGoing bool
}

// Orchestrator resolves image arguments, fans bare repositories out through
// tag selection, and drives the replicator one task at a time.
type Orchestrator struct {
	cfg        Config
	client     registry.Client
	selector   *TagSelector
	replicator *Replicator
	logger     logr.Logger
}

func NewOrchestrator(cfg Config, client registry.Client, logger logr.Logger) *Orchestrator {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	if cfg.SourceHub == "" {
		cfg.SourceHub = DefaultSourceHub
	}
	return &Orchestrator{
		cfg:        cfg,
		client:     client,
		selector:   NewTagSelector(client, logger),
		replicator: NewReplicator(client, logger, cfg.Force, cfg.DryRun),
		logger:     logger.WithName("orchestrator"),
	}
}

// Run mirrors every image argument sequentially, each task to completion
// before the next begins. The first failing task aborts the run unless
// KeepGoing is set, in which case failures are counted and reported at the
// end.
func (o *Orchestrator) Run(ctx context.Context, images []string) error {
	var failed, total int
	for _, image := range images {
		tasks, err := o.tasksFor(ctx, image)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			o.logger.Info("no tags qualified for mirroring", "image", image,
				"pattern", o.cfg.TagPattern.String(), "range", o.cfg.Bounds.String())
			continue
		}

		for _, task := range tasks {
			total++
			if err := o.replicator.Replicate(ctx, task); err != nil {
				if !o.cfg.KeepGoing {
					return err
				}
				failed++
				o.logger.Error(err, "replication failed, continuing", "source", task.Source)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d mirror tasks failed", failed, total)
	}
	return nil
}

// tasksFor resolves one image argument into its mirror tasks: exactly one
// for an explicitly tagged argument, one per selected tag otherwise.
func (o *Orchestrator) tasksFor(ctx context.Context, image string) ([]Task, error) {
	ref, err := o.client.ResolveCanonicalName(image)
	if err != nil {
		return nil, err
	}

	host := ref.Context().RegistryStr()
	if !o.fromSourceHub(host) {
		return nil, fmt.Errorf("%s resolves to %s: %w", image, host, ErrNotFromSourceHub)
	}

	srcRepo := ref.Context().Name()
	dstRepo := util.DestinationRepository(o.cfg.Registry, ref)

	if util.HasExplicitTag(image) {
		tagged, ok := ref.(name.Tag)
		if !ok {
			return nil, fmt.Errorf("%s: digest references cannot be mirrored, a tag is required", image)
		}
		tag := tagged.TagStr()
		return []Task{{Source: srcRepo + ":" + tag, Destination: dstRepo + ":" + tag}}, nil
	}

	candidates, err := o.selector.Select(ctx, ref.Context(), o.cfg.TagPattern, o.cfg.Bounds)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(candidates))
	for _, candidate := range candidates {
		tasks = append(tasks, Task{
			Source:      srcRepo + ":" + candidate.Tag,
			Destination: dstRepo + ":" + candidate.Tag,
		})
	}
	return tasks, nil
}

func (o *Orchestrator) fromSourceHub(host string) bool {
	if strings.EqualFold(host, o.cfg.SourceHub) {
		return true
	}
	_, hostIsHub := sourceHubAliases[strings.ToLower(host)]
	_, cfgIsHub := sourceHubAliases[strings.ToLower(o.cfg.SourceHub)]
	return hostIsHub && cfgIsHub
}
