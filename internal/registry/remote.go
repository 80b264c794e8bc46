package registry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	remotetransport "github.com/google/go-containerregistry/pkg/v1/remote/transport"
)

var (
	remoteGetFunc        = remote.Get
	remoteListFunc       = remote.List
	remoteWriteFunc      = remote.Write
	remoteWriteIndexFunc = remote.WriteIndex
)

// Options configures the remote client.
type Options struct {
	// Target is the destination registry; operations against its host use
	// Target.BasicAuth and trigger EnsureRepository before pushes.
	Target Target
	// Keychain authenticates source-registry operations.
	Keychain authn.Keychain
	// RequestTimeout bounds each registry operation. Zero disables it.
	RequestTimeout time.Duration
	Logger         logr.Logger
}

type remoteClient struct {
	target   Target
	keychain authn.Keychain
	timeout  time.Duration
	logger   logr.Logger

	mu sync.Mutex
	// images is the process-local image store keyed by reference string;
	// Pull fills it, Tag aliases into it, RemoveLocal clears it.
	images map[string]v1.Image
	// pending holds in-progress destination manifest lists until
	// PushManifestList publishes them.
	pending map[string][]mutate.IndexAddendum
}

// NewRemote returns a Client backed by go-containerregistry's remote
// transport with an in-memory local image store.
func NewRemote(opts Options) Client {
	keychain := opts.Keychain
	if keychain == nil {
		keychain = NewStaticKeychain(nil)
	}
	timeout := opts.RequestTimeout
	if timeout < 0 {
		timeout = 0
	}
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &remoteClient{
		target:   opts.Target,
		keychain: keychain,
		timeout:  timeout,
		logger:   logger.WithName("registry"),
		images:   make(map[string]v1.Image),
		pending:  make(map[string][]mutate.IndexAddendum),
	}
}

func transport(insecure bool) http.RoundTripper {
	d := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if insecure {
		tlsCfg.InsecureSkipVerify = true
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           d.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       tlsCfg,
	}
}

func (c *remoteClient) ResolveCanonicalName(image string) (name.Reference, error) {
	ref, err := name.ParseReference(strings.TrimSpace(image), name.WeakValidation)
	if err != nil {
		return nil, fmt.Errorf("parse reference %q: %w", image, err)
	}
	return ref, nil
}

func (c *remoteClient) targetHost() string {
	if c.target == nil {
		return ""
	}
	registry := c.target.Registry()
	if idx := strings.Index(registry, "/"); idx >= 0 {
		return registry[:idx]
	}
	return registry
}

func (c *remoteClient) isTargetHost(host string) bool {
	th := c.targetHost()
	return th != "" && strings.EqualFold(host, th)
}

func (c *remoteClient) parseRef(ref string) (name.Reference, error) {
	opts := []name.Option{name.WeakValidation}
	if c.target != nil && c.target.Insecure() && strings.HasPrefix(ref, c.targetHost()+"/") {
		opts = append(opts, name.Insecure)
	}
	parsed, err := name.ParseReference(ref, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return parsed, nil
}

func (c *remoteClient) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// remoteOptions builds per-operation remote options for the given registry
// host: destination-host operations authenticate via the Target, everything
// else via the source keychain.
func (c *remoteClient) remoteOptions(ctx context.Context, host string) ([]remote.Option, context.CancelFunc, error) {
	opCtx, cancel := c.operationContext(ctx)
	insecure := c.target != nil && c.target.Insecure() && c.isTargetHost(host)
	opts := []remote.Option{
		remote.WithContext(opCtx),
		remote.WithTransport(transport(insecure)),
	}
	if c.target != nil && c.isTargetHost(host) {
		username, password, err := c.target.BasicAuth(opCtx)
		if err != nil {
			cancel()
			return nil, func() {}, fmt.Errorf("auth for %s: %w", host, err)
		}
		if username == "" && password == "" {
			opts = append(opts, remote.WithAuthFromKeychain(c.keychain))
		} else {
			opts = append(opts, remote.WithAuth(&authn.Basic{Username: username, Password: password}))
		}
	} else {
		opts = append(opts, remote.WithAuthFromKeychain(c.keychain))
	}
	return opts, cancel, nil
}

func (c *remoteClient) ListTags(ctx context.Context, repo name.Repository) ([]string, error) {
	opts, cancel, err := c.remoteOptions(ctx, repo.RegistryStr())
	if err != nil {
		return nil, err
	}
	defer cancel()

	tags, err := remoteListFunc(repo, opts...)
	if err != nil {
		logRegistryAuthError(c.logger, err, "list tags")
		return nil, fmt.Errorf("list tags for %s: %w", repo.Name(), err)
	}
	return tags, nil
}

func (c *remoteClient) InspectManifest(ctx context.Context, ref string) (*ManifestDocument, error) {
	parsed, err := c.parseRef(ref)
	if err != nil {
		return nil, err
	}
	opts, cancel, err := c.remoteOptions(ctx, parsed.Context().RegistryStr())
	if err != nil {
		return nil, err
	}
	defer cancel()

	desc, err := remoteGetFunc(parsed, opts...)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", ref, ErrManifestNotFound)
		}
		logRegistryAuthError(c.logger, err, "inspect manifest")
		return nil, fmt.Errorf("inspect %s: %w", ref, err)
	}

	doc := &ManifestDocument{MediaType: desc.MediaType, Digest: desc.Digest}
	if desc.MediaType.IsIndex() {
		idx, err := desc.ImageIndex()
		if err != nil {
			return nil, fmt.Errorf("load index %s: %w", ref, err)
		}
		manifest, err := idx.IndexManifest()
		if err != nil {
			return nil, fmt.Errorf("parse index %s: %w", ref, err)
		}
		doc.Manifests = manifest.Manifests
	}
	return doc, nil
}

func (c *remoteClient) Pull(ctx context.Context, ref string, platform *v1.Platform) error {
	parsed, err := c.parseRef(ref)
	if err != nil {
		return err
	}
	opts, cancel, err := c.remoteOptions(ctx, parsed.Context().RegistryStr())
	if err != nil {
		return err
	}
	defer cancel()
	if platform != nil {
		opts = append(opts, remote.WithPlatform(*platform))
	}

	desc, err := remoteGetFunc(parsed, opts...)
	if err != nil {
		logRegistryAuthError(c.logger, err, "pull")
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	img, err := desc.Image()
	if err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}

	c.mu.Lock()
	c.images[ref] = img
	c.mu.Unlock()
	return nil
}

func (c *remoteClient) Tag(ctx context.Context, src, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	img, ok := c.images[src]
	if !ok {
		return fmt.Errorf("tag %s: local image not found", src)
	}
	c.images[dst] = img
	return nil
}

func (c *remoteClient) Push(ctx context.Context, ref string) error {
	c.mu.Lock()
	img, ok := c.images[ref]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("push %s: local image not found", ref)
	}

	parsed, err := c.parseRef(ref)
	if err != nil {
		return err
	}
	if err := c.ensureTargetRepository(ctx, parsed); err != nil {
		return err
	}
	opts, cancel, err := c.remoteOptions(ctx, parsed.Context().RegistryStr())
	if err != nil {
		return err
	}
	defer cancel()

	if err := remoteWriteFunc(parsed, img, opts...); err != nil {
		logRegistryAuthError(c.logger, err, "push")
		return fmt.Errorf("push %s: %w", ref, err)
	}
	return nil
}

func (c *remoteClient) RemoveLocal(ctx context.Context, ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.images, ref)
	delete(c.pending, ref)
	return nil
}

func (c *remoteClient) CreateOrAmendManifestList(ctx context.Context, list, member string, first bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	img, ok := c.images[member]
	if !ok {
		return fmt.Errorf("manifest list %s: local image %s not found", list, member)
	}
	cfg, err := img.ConfigFile()
	if err != nil {
		return fmt.Errorf("manifest list %s: config for %s: %w", list, member, err)
	}
	add := mutate.IndexAddendum{
		Add: img,
		Descriptor: v1.Descriptor{
			Platform: &v1.Platform{
				Architecture: cfg.Architecture,
				OS:           cfg.OS,
				Variant:      cfg.Variant,
			},
		},
	}

	if first {
		c.pending[list] = []mutate.IndexAddendum{add}
		return nil
	}
	existing, ok := c.pending[list]
	if !ok {
		return fmt.Errorf("manifest list %s: amend before create", list)
	}
	c.pending[list] = append(existing, add)
	return nil
}

func (c *remoteClient) PushManifestList(ctx context.Context, list string) error {
	c.mu.Lock()
	adds := c.pending[list]
	c.mu.Unlock()
	if len(adds) == 0 {
		return fmt.Errorf("manifest list %s has no members", list)
	}

	parsed, err := c.parseRef(list)
	if err != nil {
		return err
	}
	if err := c.ensureTargetRepository(ctx, parsed); err != nil {
		return err
	}
	opts, cancel, err := c.remoteOptions(ctx, parsed.Context().RegistryStr())
	if err != nil {
		return err
	}
	defer cancel()

	idx := mutate.AppendManifests(empty.Index, adds...)
	if err := remoteWriteIndexFunc(parsed, idx, opts...); err != nil {
		logRegistryAuthError(c.logger, err, "push manifest list")
		return fmt.Errorf("push manifest list %s: %w", list, err)
	}

	c.mu.Lock()
	delete(c.pending, list)
	c.mu.Unlock()
	return nil
}

func (c *remoteClient) ensureTargetRepository(ctx context.Context, ref name.Reference) error {
	if c.target == nil || !c.isTargetHost(ref.Context().RegistryStr()) {
		return nil
	}
	repo := ref.Context().RepositoryStr()
	if err := c.target.EnsureRepository(ctx, repo); err != nil {
		return fmt.Errorf("ensure repo %s: %w", repo, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var transportErr *remotetransport.Error
	return errors.As(err, &transportErr) && transportErr.StatusCode == http.StatusNotFound
}

type registryAuthError struct {
	statusCode  int
	diagnostics []string
}

func logRegistryAuthError(log logr.Logger, err error, phase string) {
	if info, ok := detectRegistryAuthError(err); ok {
		msg := fmt.Sprintf("registry authentication failed during %s", phase)
		fields := []any{"statusCode", info.statusCode}
		if len(info.diagnostics) > 0 {
			fields = append(fields, "details", info.diagnostics)
		}
		log.Error(err, msg, fields...)
	}
}

func detectRegistryAuthError(err error) (*registryAuthError, bool) {
	var transportErr *remotetransport.Error
	if !errors.As(err, &transportErr) {
		return nil, false
	}

	if !isRegistryAuthStatus(transportErr.StatusCode) && !hasRegistryAuthDiagnostic(transportErr.Errors) {
		return nil, false
	}

	diagnostics := make([]string, 0, len(transportErr.Errors))
	for _, diag := range transportErr.Errors {
		diagnostics = append(diagnostics, diag.String())
	}

	return &registryAuthError{statusCode: transportErr.StatusCode, diagnostics: diagnostics}, true
}

func isRegistryAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func hasRegistryAuthDiagnostic(diags []remotetransport.Diagnostic) bool {
	for _, diag := range diags {
		if diag.Code == remotetransport.UnauthorizedErrorCode || diag.Code == remotetransport.DeniedErrorCode {
			return true
		}
	}
	return false
}
