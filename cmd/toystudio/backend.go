package main

import (
	"context"
	"fmt"

	"github.com/loykin/toystudio"
	"github.com/loykin/toystudio/pkg/client"
)

// backend is what product commands run against: the local root or a daemon.
type backend interface {
	List(ctx context.Context, installed bool) (any, error)
	Status(ctx context.Context, id string) (any, error)
	Lifecycle(ctx context.Context, op, id string) error
	Seed(ctx context.Context, dir string) ([]string, error)
	Open(ctx context.Context, target string) error
	UVCacheDir(ctx context.Context) (string, error)
	UVPythons(ctx context.Context) (any, error)
	History(ctx context.Context, product string, limit int) (any, error)
	Close() error
}

type localBackend struct {
	studio *toystudio.Studio
}

func (b localBackend) List(ctx context.Context, installed bool) (any, error) {
	if installed {
		return b.studio.ListInstalled(ctx)
	}
	return b.studio.ListAll(ctx)
}

func (b localBackend) Status(ctx context.Context, id string) (any, error) {
	return b.studio.Status(ctx, id)
}

func (b localBackend) Lifecycle(ctx context.Context, op, id string) error {
	switch op {
	case "install":
		return b.studio.Install(ctx, id)
	case "reinstall":
		return b.studio.Reinstall(ctx, id)
	case "uninstall":
		return b.studio.Uninstall(ctx, id)
	case "upgrade":
		return b.studio.Upgrade(ctx, id)
	case "startup":
		return b.studio.Startup(ctx, id)
	case "shutdown":
		return b.studio.Shutdown(ctx, id)
	}
	return fmt.Errorf("unknown operation %q", op)
}

func (b localBackend) Seed(_ context.Context, dir string) ([]string, error) {
	return b.studio.Seed(dir)
}

func (b localBackend) Open(_ context.Context, target string) error { return b.studio.Open(target) }

func (b localBackend) UVCacheDir(context.Context) (string, error) { return b.studio.UVCacheDir() }

func (b localBackend) UVPythons(context.Context) (any, error) { return b.studio.UVPythons() }

func (b localBackend) History(ctx context.Context, product string, limit int) (any, error) {
	return b.studio.History(ctx, product, limit)
}

func (b localBackend) Close() error { return b.studio.Close() }

type remoteBackend struct {
	api *client.Client
}

func (b remoteBackend) List(ctx context.Context, installed bool) (any, error) {
	return b.api.ListProducts(ctx, installed)
}

func (b remoteBackend) Status(ctx context.Context, id string) (any, error) {
	return b.api.Status(ctx, id)
}

func (b remoteBackend) Lifecycle(ctx context.Context, op, id string) error {
	switch op {
	case "install":
		return b.api.Install(ctx, id)
	case "reinstall":
		return b.api.Reinstall(ctx, id)
	case "uninstall":
		return b.api.Uninstall(ctx, id)
	case "upgrade":
		return b.api.Upgrade(ctx, id)
	case "startup":
		return b.api.Startup(ctx, id)
	case "shutdown":
		return b.api.Shutdown(ctx, id)
	}
	return fmt.Errorf("unknown operation %q", op)
}

func (b remoteBackend) Seed(ctx context.Context, dir string) ([]string, error) {
	return b.api.Seed(ctx, dir)
}

func (b remoteBackend) Open(ctx context.Context, target string) error { return b.api.Open(ctx, target) }

func (b remoteBackend) UVCacheDir(ctx context.Context) (string, error) { return b.api.UVCacheDir(ctx) }

func (b remoteBackend) UVPythons(ctx context.Context) (any, error) { return b.api.UVPythons(ctx) }

func (b remoteBackend) History(ctx context.Context, product string, limit int) (any, error) {
	return b.api.History(ctx, client.HistoryQuery{Product: product, Limit: limit})
}

func (b remoteBackend) Close() error { return nil }
