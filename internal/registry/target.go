package registry

import "context"

// Target abstracts the destination registry (a generic Docker registry or ECR).
type Target interface {
	Registry() string
	EnsureRepository(ctx context.Context, name string) error
	BasicAuth(ctx context.Context) (username, password string, err error)
	Insecure() bool
}
