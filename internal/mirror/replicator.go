package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/matzegebbe/hubmirror/internal/registry"
	"github.com/matzegebbe/hubmirror/pkg/metrics"
)

// Task replicates one concrete source tag to one destination tag. Both
// references are fully qualified and always carry a tag.
type Task struct {
	Source      string
	Destination string
}

// ReplicationError wraps a failed replication step. Any failing step aborts
// the whole task; no partial manifest list is published.
type ReplicationError struct {
	Step  string
	Ref   string
	Cause error
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Step, e.Ref, e.Cause)
}

func (e *ReplicationError) Unwrap() error { return e.Cause }

// Replicator copies one tagged image, across all advertised platforms, to a
// single destination manifest.
type Replicator struct {
	client registry.Client
	logger logr.Logger
	force  bool
	dryRun bool
}

func NewReplicator(client registry.Client, logger logr.Logger, force, dryRun bool) *Replicator {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Replicator{client: client, logger: logger.WithName("replicator"), force: force, dryRun: dryRun}
}

// Replicate runs the full mirroring protocol for one task: idempotence
// check, single- or multi-platform replication, and local cleanup.
func (r *Replicator) Replicate(ctx context.Context, task Task) error {
	log := r.logger.WithValues("source", task.Source, "target", task.Destination)

	if !r.force {
		if _, err := r.client.InspectManifest(ctx, task.Destination); err == nil {
			log.Info("already mirrored, skipping", "result", "skipped")
			return nil
		} else if !errors.Is(err, registry.ErrManifestNotFound) {
			log.V(1).Info("unable to confirm existing target manifest, mirroring anyway", "error", err.Error())
		}
	}

	doc, err := r.client.InspectManifest(ctx, task.Source)
	if err != nil {
		metrics.RecordPullError(task.Source)
		return &ReplicationError{Step: "inspect", Ref: task.Source, Cause: err}
	}

	if !doc.MultiPlatform() {
		return r.replicateImage(ctx, log, task)
	}
	return r.replicateIndex(ctx, log, task, EnumeratePlatforms(doc))
}

func (r *Replicator) replicateImage(ctx context.Context, log logr.Logger, task Task) error {
	if err := r.client.Pull(ctx, task.Source, nil); err != nil {
		metrics.RecordPullError(task.Source)
		return &ReplicationError{Step: "pull", Ref: task.Source, Cause: err}
	}
	metrics.RecordPullSuccess(task.Source)

	if err := r.client.Tag(ctx, task.Source, task.Destination); err != nil {
		return &ReplicationError{Step: "tag", Ref: task.Destination, Cause: err}
	}

	if r.dryRun {
		log.Info("dry run: would push image", "dryRun", true)
		return nil
	}

	if err := r.client.Push(ctx, task.Destination); err != nil {
		metrics.RecordPushError(task.Destination)
		return &ReplicationError{Step: "push", Ref: task.Destination, Cause: err}
	}
	metrics.RecordPushSuccess(task.Destination)
	log.Info("mirrored image")

	r.cleanup(ctx, log, task.Destination)
	return nil
}

func (r *Replicator) replicateIndex(ctx context.Context, log logr.Logger, task Task, platforms []Platform) error {
	if len(platforms) == 0 {
		return &ReplicationError{
			Step:  "enumerate",
			Ref:   task.Source,
			Cause: errors.New("manifest list advertises no usable platforms"),
		}
	}

	members := make([]string, 0, len(platforms))
	for i, platform := range platforms {
		plog := log.WithValues("platform", platform.String())

		if err := r.client.Pull(ctx, task.Source, platform.spec()); err != nil {
			metrics.RecordPullError(task.Source)
			return &ReplicationError{Step: "pull", Ref: task.Source, Cause: err}
		}
		metrics.RecordPullSuccess(task.Source)

		member := task.Destination + "-" + platform.Suffix()
		if err := r.client.Tag(ctx, task.Source, member); err != nil {
			return &ReplicationError{Step: "tag", Ref: member, Cause: err}
		}
		members = append(members, member)

		if r.dryRun {
			plog.Info("dry run: would push platform image and add it to the manifest list", "member", member, "dryRun", true)
			continue
		}

		if err := r.client.Push(ctx, member); err != nil {
			metrics.RecordPushError(member)
			return &ReplicationError{Step: "push", Ref: member, Cause: err}
		}
		metrics.RecordPushSuccess(member)

		if err := r.client.CreateOrAmendManifestList(ctx, task.Destination, member, i == 0); err != nil {
			return &ReplicationError{Step: "amend", Ref: task.Destination, Cause: err}
		}
		plog.V(1).Info("added platform to manifest list", "member", member)
	}

	if r.dryRun {
		log.Info("dry run: would push manifest list", "platforms", len(platforms), "dryRun", true)
		return nil
	}

	if err := r.client.PushManifestList(ctx, task.Destination); err != nil {
		metrics.RecordPushError(task.Destination)
		return &ReplicationError{Step: "push manifest list", Ref: task.Destination, Cause: err}
	}
	metrics.RecordPushSuccess(task.Destination)
	log.Info("mirrored manifest list", "platforms", len(platforms))

	r.cleanup(ctx, log, append(members, task.Destination)...)
	return nil
}

// cleanup removes destination-tagged references from the local store so a
// long tag listing does not accumulate local state. Failures are not fatal.
func (r *Replicator) cleanup(ctx context.Context, log logr.Logger, refs ...string) {
	for _, ref := range refs {
		if err := r.client.RemoveLocal(ctx, ref); err != nil {
			log.V(1).Info("unable to remove local image", "reference", ref, "error", err.Error())
		}
	}
}
