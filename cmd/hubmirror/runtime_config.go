package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matzegebbe/hubmirror/internal/config"
	"github.com/matzegebbe/hubmirror/internal/mirror"
	"github.com/matzegebbe/hubmirror/internal/registry"
)

const (
	envPrefix         = "MIRROR_"
	defaultRegistry   = "docker.io"
	defaultTagPattern = `[0-9]+(\.[0-9]+)+$`
)

// envNames lists every recognized environment override, without the prefix.
// The help output enumerates them and marks the ones currently set.
var envNames = []string{
	"REGISTRY",
	"TAG_PATTERN",
	"MIN_VERSION",
	"VERSION_RANGE",
	"FORCE",
	"DRY_RUN",
	"VERBOSE",
	"KEEP_GOING",
	"TIMEOUT",
	"CONFIG",
	"SOURCE_HUB",
	"TARGET_KIND",
	"INSECURE",
	"REGISTRY_USERNAME",
	"REGISTRY_PASSWORD",
	"SOURCE_USERNAME",
	"SOURCE_PASSWORD",
	"ECR_ACCOUNT_ID",
	"ECR_REGION",
	"ECR_CREATE_REPO",
}

// settings holds the resolved runtime configuration. Precedence is built-in
// defaults < config file < environment overrides < command-line flags; the
// flag layer is applied by main, which uses these values as flag defaults.
type settings struct {
	Registry     string
	SourceHub    string
	TagPattern   string
	MinVersion   string
	VersionRange string
	TargetKind   string
	Force        bool
	DryRun       bool
	Verbose      bool
	KeepGoing    bool
	Insecure     bool
	Timeout      time.Duration
}

func resolveSettings(fileCfg config.Config, getenv func(string) string) (settings, error) {
	s := settings{
		Registry:   defaultRegistry,
		SourceHub:  mirror.DefaultSourceHub,
		TagPattern: defaultTagPattern,
		TargetKind: "docker",
	}

	applyString(&s.Registry, fileCfg.Registry)
	applyString(&s.SourceHub, fileCfg.SourceHub)
	applyString(&s.TagPattern, fileCfg.TagPattern)
	applyString(&s.MinVersion, fileCfg.MinVersion)
	applyString(&s.VersionRange, fileCfg.VersionRange)
	applyString(&s.TargetKind, fileCfg.TargetKind)
	s.Force = fileCfg.Force
	s.DryRun = fileCfg.DryRun
	s.Verbose = fileCfg.Verbose
	s.KeepGoing = fileCfg.KeepGoing
	s.Insecure = fileCfg.Docker.Insecure
	if fileCfg.Timeout != "" {
		d, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return settings{}, fmt.Errorf("config file timeout: %w", err)
		}
		s.Timeout = d
	}

	applyString(&s.Registry, getenv(envPrefix+"REGISTRY"))
	applyString(&s.SourceHub, getenv(envPrefix+"SOURCE_HUB"))
	applyString(&s.TagPattern, getenv(envPrefix+"TAG_PATTERN"))
	applyString(&s.MinVersion, getenv(envPrefix+"MIN_VERSION"))
	applyString(&s.VersionRange, getenv(envPrefix+"VERSION_RANGE"))
	applyString(&s.TargetKind, getenv(envPrefix+"TARGET_KIND"))
	applyBool(&s.Force, getenv(envPrefix+"FORCE"))
	applyBool(&s.DryRun, getenv(envPrefix+"DRY_RUN"))
	applyBool(&s.Verbose, getenv(envPrefix+"VERBOSE"))
	applyBool(&s.KeepGoing, getenv(envPrefix+"KEEP_GOING"))
	applyBool(&s.Insecure, getenv(envPrefix+"INSECURE"))
	if raw := strings.TrimSpace(getenv(envPrefix + "TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return settings{}, fmt.Errorf("%sTIMEOUT: %w", envPrefix, err)
		}
		s.Timeout = d
	}

	s.TargetKind = strings.ToLower(strings.TrimSpace(s.TargetKind))
	return s, nil
}

func applyString(dst *string, val string) {
	if trimmed := strings.TrimSpace(val); trimmed != "" {
		*dst = trimmed
	}
}

func applyBool(dst *bool, val string) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes":
		*dst = true
	case "0", "false", "no":
		*dst = false
	}
}

// buildTarget constructs the destination registry target. For ECR targets an
// empty registry setting is filled in with the computed ECR host so that
// destination naming and pushes line up.
func buildTarget(ctx context.Context, s *settings, fileCfg config.Config, getenv func(string) string) (registry.Target, error) {
	switch s.TargetKind {
	case "", "docker":
		return registry.NewDocker(registry.DockerConfig{
			Registry: s.Registry,
			Username: getenv(envPrefix + "REGISTRY_USERNAME"),
			Password: getenv(envPrefix + "REGISTRY_PASSWORD"),
			Insecure: s.Insecure,
		})
	case "ecr":
		accountID := fileCfg.ECR.AccountID
		applyString(&accountID, getenv(envPrefix+"ECR_ACCOUNT_ID"))
		region := fileCfg.ECR.Region
		applyString(&region, getenv(envPrefix+"ECR_REGION"))
		applyString(&region, getenv("AWS_REGION"))
		if accountID == "" || region == "" {
			return nil, fmt.Errorf("for targetKind=ecr set %sECR_ACCOUNT_ID and %sECR_REGION", envPrefix, envPrefix)
		}
		createRepo := true
		if fileCfg.ECR.CreateRepo != nil {
			createRepo = *fileCfg.ECR.CreateRepo
		}
		applyBool(&createRepo, getenv(envPrefix+"ECR_CREATE_REPO"))

		target, err := registry.NewECR(ctx, registry.ECRConfig{
			AccountID:       accountID,
			Region:          region,
			CreateRepo:      createRepo,
			LifecyclePolicy: fileCfg.ECR.LifecyclePolicy,
		})
		if err != nil {
			return nil, err
		}
		if s.Registry == "" || s.Registry == defaultRegistry {
			s.Registry = target.Registry()
		}
		return target, nil
	default:
		return nil, fmt.Errorf("unknown targetKind %q", s.TargetKind)
	}
}
