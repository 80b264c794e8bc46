package registry

import "context"

type DockerConfig struct {
	Registry string
	Username string
	Password string
	Insecure bool
}

type dockerTarget struct{ cfg DockerConfig }

func NewDocker(cfg DockerConfig) (Target, error) { return &dockerTarget{cfg: cfg}, nil }

func (d *dockerTarget) Registry() string { return d.cfg.Registry }
func (d *dockerTarget) Insecure() bool   { return d.cfg.Insecure }

func (d *dockerTarget) EnsureRepository(ctx context.Context, name string) error { return nil }

func (d *dockerTarget) BasicAuth(ctx context.Context) (string, string, error) {
	return d.cfg.Username, d.cfg.Password, nil
}
