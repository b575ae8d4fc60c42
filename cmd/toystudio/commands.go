package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/toystudio"
	"github.com/loykin/toystudio/internal/config"
	"github.com/loykin/toystudio/pkg/client"
	"github.com/loykin/toystudio/pkg/template"
)

type command struct {
	global *GlobalFlags
	out    io.Writer
	// opts are applied to locally built studios.
	opts []toystudio.Option
}

// configPath is --config, or toystudio.toml under --root.
func (c *command) configPath() string {
	if c.global.ConfigPath != "" {
		return c.global.ConfigPath
	}
	root := c.global.Root
	if root == "" {
		root = "."
	}
	return config.DefaultPath(root)
}

func (c *command) loadConfig() (*toystudio.Config, error) {
	cfg, err := toystudio.LoadConfig(c.configPath())
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	if c.global.ConfigPath != "" && c.global.Root != "" {
		if abs, err := filepath.Abs(c.global.Root); err == nil {
			cfg.Root = abs
		}
	}
	return cfg, nil
}

func (c *command) backend(ctx context.Context) (backend, error) {
	if c.global.APIUrl != "" {
		api, err := client.New(client.Config{
			BaseURL:  c.global.APIUrl,
			Timeout:  c.global.APITimeout,
			Insecure: c.global.Insecure,
		})
		if err != nil {
			return nil, err
		}
		if !api.IsReachable(ctx) {
			return nil, fmt.Errorf("daemon not reachable at %s - start it first with 'toystudio serve'", c.global.APIUrl)
		}
		return remoteBackend{api: api}, nil
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := toystudio.New(cfg, c.opts...)
	if err != nil {
		return nil, err
	}
	return localBackend{studio: s}, nil
}

func (c *command) with(ctx context.Context, fn func(b backend) error) error {
	b, err := c.backend(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	return fn(b)
}

func (c *command) List(ctx context.Context, f ListFlags) error {
	return c.with(ctx, func(b backend) error {
		products, err := b.List(ctx, f.Installed)
		if err != nil {
			return err
		}
		printJSON(c.out, products)
		return nil
	})
}

func (c *command) Status(ctx context.Context, f ProductFlags) error {
	if f.ID == "" {
		return errors.New("product id is required")
	}
	return c.with(ctx, func(b backend) error {
		st, err := b.Status(ctx, f.ID)
		if err != nil {
			return err
		}
		printJSON(c.out, st)
		return nil
	})
}

// Lifecycle runs install, reinstall, uninstall, upgrade or shutdown and prints
// the resulting status.
func (c *command) Lifecycle(ctx context.Context, op string, f ProductFlags) error {
	if f.ID == "" {
		return errors.New("product id is required")
	}
	return c.with(ctx, func(b backend) error {
		if err := b.Lifecycle(ctx, op, f.ID); err != nil {
			return err
		}
		st, err := b.Status(ctx, f.ID)
		if err != nil {
			return err
		}
		printJSON(c.out, st)
		return nil
	})
}

// Startup launches a product. Against the local root it stays attached until
// the product exits or ctx is canceled, then shuts the product down.
func (c *command) Startup(ctx context.Context, f StartupFlags) error {
	if f.ID == "" {
		return errors.New("product id is required")
	}
	return c.with(ctx, func(b backend) error {
		if err := b.Lifecycle(ctx, "startup", f.ID); err != nil {
			return err
		}
		st, err := b.Status(ctx, f.ID)
		if err != nil {
			return err
		}
		printJSON(c.out, st)

		local, ok := b.(localBackend)
		if !ok || f.Detach {
			return nil
		}
		h := local.studio.Orchestrator().Registry().Handle(f.ID)
		if h == nil {
			return nil
		}
		select {
		case <-h.Done():
			_, _ = fmt.Fprintf(c.out, "%s exited with code %d\n", f.ID, h.ExitCode())
			return nil
		case <-ctx.Done():
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return local.studio.Shutdown(stopCtx, f.ID)
	})
}

func (c *command) Open(ctx context.Context, f OpenFlags) error {
	if f.Target == "" {
		return errors.New("open target is required")
	}
	return c.with(ctx, func(b backend) error { return b.Open(ctx, f.Target) })
}

func (c *command) Seed(ctx context.Context, f SeedFlags) error {
	if f.Dir == "" {
		return errors.New("seed directory is required")
	}
	dir, err := filepath.Abs(f.Dir)
	if err != nil {
		return err
	}
	return c.with(ctx, func(b backend) error {
		added, err := b.Seed(ctx, dir)
		if err != nil {
			return err
		}
		if added == nil {
			added = []string{}
		}
		printJSON(c.out, map[string][]string{"added": added})
		return nil
	})
}

func (c *command) UVCacheDir(ctx context.Context) error {
	return c.with(ctx, func(b backend) error {
		dir, err := b.UVCacheDir(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(c.out, dir)
		return nil
	})
}

func (c *command) UVPythons(ctx context.Context) error {
	return c.with(ctx, func(b backend) error {
		pythons, err := b.UVPythons(ctx)
		if err != nil {
			return err
		}
		printJSON(c.out, pythons)
		return nil
	})
}

func (c *command) History(ctx context.Context, f HistoryFlags) error {
	return c.with(ctx, func(b backend) error {
		events, err := b.History(ctx, f.Product, f.Limit)
		if err != nil {
			return err
		}
		printJSON(c.out, events)
		return nil
	})
}

// ConfigGet prints one key, or every setting when the key is empty.
func (c *command) ConfigGet(f ConfigFlags) error {
	v, err := config.Get(c.configPath(), f.Key)
	if err != nil {
		return err
	}
	if s, ok := v.(string); ok {
		_, _ = fmt.Fprintln(c.out, s)
		return nil
	}
	printJSON(c.out, v)
	return nil
}

func (c *command) ConfigSet(f ConfigFlags) error {
	if f.Key == "" {
		return errors.New("config key is required")
	}
	path := c.configPath()
	if err := config.Set(path, f.Key, f.Value); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "%s updated in %s\n", f.Key, path)
	return nil
}

func (c *command) ConfigKeys() error {
	keys, err := config.Keys(c.configPath())
	if err != nil {
		return err
	}
	for _, k := range keys {
		_, _ = fmt.Fprintln(c.out, k)
	}
	return nil
}

// ManifestNew writes a product manifest from a template into the catalog, or
// to --output. With --json it prints the manifest instead.
func (c *command) ManifestNew(f ManifestFlags) error {
	if f.Name == "" {
		return errors.New("product name is required")
	}
	typ := f.Type
	if typ == "" {
		typ = string(template.TypeSimple)
	}
	gen := template.NewGenerator()
	opts := template.Options{
		Name:          f.Name,
		GitURL:        f.GitURL,
		Branch:        f.Branch,
		PythonVersion: f.PythonVersion,
		Version:       f.Version,
		Description:   f.Description,
	}
	if f.JSON {
		b, err := gen.GenerateJSON(template.TemplateType(typ), opts)
		if err != nil {
			return fmt.Errorf("failed to generate manifest: %w", err)
		}
		_, _ = fmt.Fprintln(c.out, string(b))
		return nil
	}

	outputPath := f.Output
	if outputPath == "" {
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		outputPath = cfg.Layout().ManifestPath(template.FileName(f.Name))
	}
	if _, err := os.Stat(outputPath); err == nil && !f.Force {
		return fmt.Errorf("manifest '%s' already exists (use --force to overwrite)", outputPath)
	}
	b, err := gen.GenerateTOML(template.TemplateType(typ), opts)
	if err != nil {
		return fmt.Errorf("failed to generate manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(outputPath, b, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	_, _ = fmt.Fprintf(c.out, "Manifest '%s' created: %s\n", f.Name, outputPath)
	return nil
}
