package objectclient

import (
	"context"
	"errors"
	"io"

	"github.com/markdave123-py/vectorsync/internal/core"
)

var ErrNoObjectStore = errors.New("object location given but no object store is configured")

// Router sends object locations to Remote and everything else to Local.
type Router struct {
	Local  *LocalStore
	Remote core.FileStore
}

var _ core.FileStore = (*Router)(nil)

func (r *Router) pick(p string) (core.FileStore, error) {
	if _, ok := ParseLocation(p); ok {
		if r.Remote == nil {
			return nil, ErrNoObjectStore
		}
		return r.Remote, nil
	}
	if r.Local == nil {
		return NewLocalStore(""), nil
	}
	return r.Local, nil
}

func (r *Router) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	fs, err := r.pick(p)
	if err != nil {
		return nil, err
	}
	return fs.Open(ctx, p)
}

func (r *Router) Materialize(ctx context.Context, p string) (string, func(), error) {
	fs, err := r.pick(p)
	if err != nil {
		return "", nil, err
	}
	return fs.Materialize(ctx, p)
}
