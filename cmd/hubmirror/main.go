// Command hubmirror mirrors container images from Docker Hub into another
// registry, selecting tags by pattern and version range and rebuilding
// multi-platform manifest lists at the destination.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/go-containerregistry/pkg/authn"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matzegebbe/hubmirror/internal/config"
	"github.com/matzegebbe/hubmirror/internal/mirror"
	"github.com/matzegebbe/hubmirror/internal/registry"
	"github.com/matzegebbe/hubmirror/internal/versions"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfgPath := os.Getenv(envPrefix + "CONFIG")
	if cfgPath == "" {
		cfgPath = config.FilePath
	}
	fileCfg, _, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config file %s: %v\n", cfgPath, err)
		return 2
	}

	s, err := resolveSettings(fileCfg, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	fs := flag.NewFlagSet("hubmirror", flag.ExitOnError)
	fs.StringVar(&s.Registry, "r", s.Registry, "destination registry path")
	fs.StringVar(&s.TagPattern, "t", s.TagPattern, "tag-match regular expression")
	fs.StringVar(&s.MinVersion, "m", s.MinVersion, "minimum version (legacy single bound)")
	fs.StringVar(&s.VersionRange, "g", s.VersionRange, "half-open version range min:max")
	fs.BoolVar(&s.Force, "f", s.Force, "force mirror even if the destination tag already exists")
	fs.BoolVar(&s.DryRun, "n", s.DryRun, "dry run: log intended actions, perform no mutating calls")
	fs.BoolVar(&s.Verbose, "v", s.Verbose, "verbose logging")
	fs.BoolVar(&s.KeepGoing, "k", s.KeepGoing, "continue with remaining tasks after a replication failure")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	images := fs.Args()
	if len(images) == 0 {
		fmt.Fprintln(os.Stderr, "no images given")
		fs.Usage()
		return 2
	}

	logger, sync := newLogger(s.Verbose)
	defer sync()

	pattern, err := regexp.Compile(s.TagPattern)
	if err != nil {
		logger.Error(err, "invalid tag pattern", "pattern", s.TagPattern)
		return 2
	}

	rangeSpec := s.VersionRange
	if rangeSpec == "" {
		rangeSpec = s.MinVersion
	}
	bounds, err := versions.ParseRange(rangeSpec)
	if err != nil {
		logger.Error(err, "invalid version range", "range", rangeSpec)
		return 2
	}

	ctx := logr.NewContext(context.Background(), logger)

	target, err := buildTarget(ctx, &s, fileCfg, os.Getenv)
	if err != nil {
		logger.Error(err, "resolve destination target failed")
		return 2
	}
	if strings.TrimSpace(s.Registry) == "" {
		logger.Error(fmt.Errorf("destination registry is empty"), "resolve destination target failed")
		return 2
	}

	client := registry.NewRemote(registry.Options{
		Target:         target,
		Keychain:       sourceKeychain(s.SourceHub, os.Getenv),
		RequestTimeout: s.Timeout,
		Logger:         logger,
	})

	orchestrator := mirror.NewOrchestrator(mirror.Config{
		Registry:   s.Registry,
		SourceHub:  s.SourceHub,
		TagPattern: pattern,
		Bounds:     bounds,
		Force:      s.Force,
		DryRun:     s.DryRun,
		KeepGoing:  s.KeepGoing,
	}, client, logger)

	if err := orchestrator.Run(ctx, images); err != nil {
		logger.Error(err, "mirroring failed")
		return 1
	}
	logger.Info("mirroring finished", "images", len(images), "dryRun", s.DryRun)
	return 0
}

// sourceKeychain builds the keychain for source-registry pulls from the
// optional credential overrides. Docker Hub answers under several hostnames,
// so the credentials are registered for all of them.
func sourceKeychain(sourceHub string, getenv func(string) string) authn.Keychain {
	username := getenv(envPrefix + "SOURCE_USERNAME")
	password := getenv(envPrefix + "SOURCE_PASSWORD")
	if username == "" && password == "" {
		return registry.NewStaticKeychain(nil)
	}
	auth := &authn.Basic{Username: username, Password: password}
	return registry.NewStaticKeychain(map[string]authn.Authenticator{
		sourceHub:         auth,
		"docker.io":       auth,
		"index.docker.io": auth,
	})
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintf(out, "Usage: hubmirror [options] [--] image[:tag] ...\n\n")
	fmt.Fprintf(out, "Mirrors images from Docker Hub to the destination registry. Bare\n")
	fmt.Fprintf(out, "repository arguments are expanded through the tag pattern and version\n")
	fmt.Fprintf(out, "range; tagged arguments are mirrored as-is.\n\nOptions:\n")
	fs.PrintDefaults()
	fmt.Fprintf(out, "\nEnvironment overrides (flags take precedence):\n")
	for _, name := range envNames {
		key := envPrefix + name
		if val, ok := os.LookupEnv(key); ok {
			if strings.HasSuffix(name, "PASSWORD") {
				val = "********"
			}
			fmt.Fprintf(out, "  %s=%s\n", key, val)
		} else {
			fmt.Fprintf(out, "  %s\n", key)
		}
	}
}

func newLogger(verbose bool) (logr.Logger, func()) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = severityTagEncoder
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	zl := zap.New(core)
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }
}

// severityTagEncoder renders zap levels as the diagnostic-stream severity
// tags DBG/NFO/WRN/ERR.
func severityTagEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch {
	case l <= zapcore.DebugLevel:
		enc.AppendString("DBG")
	case l == zapcore.InfoLevel:
		enc.AppendString("NFO")
	case l == zapcore.WarnLevel:
		enc.AppendString("WRN")
	default:
		enc.AppendString("ERR")
	}
}
