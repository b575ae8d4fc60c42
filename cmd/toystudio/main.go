package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/toystudio/pkg/client"
	"github.com/loykin/toystudio/pkg/template"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRoot(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildRoot assembles the command tree. Output goes to out.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	c := &command{global: globalFlags, out: out}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.AddCommand(
		createListCommand(c),
		createStatusCommand(c),
		createLifecycleCommand(c, "install", "Clone a product and provision its environment"),
		createLifecycleCommand(c, "reinstall", "Delete a product's install directory and install it again"),
		createLifecycleCommand(c, "uninstall", "Delete a product's install directory"),
		createLifecycleCommand(c, "upgrade", "Install a product from its upgrade manifest"),
		createStartupCommand(c),
		createLifecycleCommand(c, "shutdown", "Stop a running product"),
		createOpenCommand(c),
		createSeedCommand(c),
		createUVCommand(c),
		createHistoryCommand(c),
		createConfigCommand(c),
		createManifestCommand(c),
		createServeCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "toystudio",
		Short: "Install and launch git-hosted Python products",
		Long: `toystudio installs products described by manifest files: it clones their
git repository, provisions a uv environment and launches them.

Examples:
  toystudio list
  toystudio install comfyui.toml
  toystudio startup comfyui.toml
  toystudio serve                                   # Start daemon
  toystudio status comfyui.toml --api-url=http://remote:8080/api`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to toystudio.toml (default <root>/toystudio.toml)")
	root.PersistentFlags().StringVar(&flags.Root, "root", "", "installation root directory")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8080/api); empty works on the local root")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", client.DefaultTimeout, "daemon request timeout")
	root.PersistentFlags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS verification of the daemon")

	return root
}

func createListCommand(c *command) *cobra.Command {
	f := &ListFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Installed, "installed", false, "only installed products")
	return cmd
}

func createStatusCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show install and run state of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), ProductFlags{ID: args[0]})
		},
	}
}

func createLifecycleCommand(c *command, op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Lifecycle(cmd.Context(), op, ProductFlags{ID: args[0]})
		},
	}
}

func createStartupCommand(c *command) *cobra.Command {
	f := &StartupFlags{}
	cmd := &cobra.Command{
		Use:   "startup <id>",
		Short: "Launch an installed product",
		Long: `Launch an installed product.

Without --api-url the command stays attached until the product exits or is
interrupted, then shuts it down. Use --detach to return right after launch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ID = args[0]
			return c.Startup(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Detach, "detach", false, "return after launch")
	return cmd
}

func createOpenCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "open <products|apps|backup|output|root|id>",
		Short: "Reveal a directory in the file manager",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Open(cmd.Context(), OpenFlags{Target: args[0]})
		},
	}
}

func createSeedCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <dir>",
		Short: "Copy manifests missing from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Seed(cmd.Context(), SeedFlags{Dir: args[0]})
		},
	}
}

func createUVCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uv",
		Short: "Query the uv environment manager",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "cache-dir",
			Short: "Print uv's cache directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.UVCacheDir(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "pythons",
			Short: "List uv-managed Python interpreters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.UVPythons(cmd.Context())
			},
		},
	)
	return cmd
}

func createHistoryCommand(c *command) *cobra.Command {
	f := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded lifecycle events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.History(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Product, "product", "", "only events of this product id")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum number of events (default 100)")
	return cmd
}

func createConfigCommand(c *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit toystudio.toml",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [key]",
			Short: "Print a setting, or all settings",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f := ConfigFlags{}
				if len(args) == 1 {
					f.Key = args[0]
				}
				return c.ConfigGet(f)
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Persist a setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.ConfigSet(ConfigFlags{Key: args[0], Value: args[1]})
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List known setting keys",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.ConfigKeys()
			},
		},
	)
	return cmd
}

func createManifestCommand(c *command) *cobra.Command {
	f := &ManifestFlags{}
	newCmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a product manifest from a template",
		Long: fmt.Sprintf(`Create a product manifest from a template.

Supported types: %v

Examples:
  toystudio manifest new my-ui --type=gradio --git-url=https://github.com/me/my-ui.git
  toystudio manifest new tool --git-url=https://example.com/tool.git --output=./tool.toml`,
			template.NewGenerator().GetSupportedTypes()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			return c.ManifestNew(*f)
		},
	}
	newCmd.Flags().StringVar(&f.Type, "type", string(template.TypeSimple), "template type")
	newCmd.Flags().StringVar(&f.GitURL, "git-url", "", "repository URL (required)")
	newCmd.Flags().StringVar(&f.Branch, "branch", "", "branch to clone (default main)")
	newCmd.Flags().StringVar(&f.PythonVersion, "python", "", "Python version (default 3.11)")
	newCmd.Flags().StringVar(&f.Version, "version", "", "product version (default 0.1.0)")
	newCmd.Flags().StringVar(&f.Description, "description", "", "product description")
	newCmd.Flags().StringVarP(&f.Output, "output", "o", "", "output file (default: catalog)")
	newCmd.Flags().BoolVar(&f.JSON, "json", false, "print the manifest as JSON instead of writing it")
	newCmd.Flags().BoolVar(&f.Force, "force", false, "overwrite an existing manifest")
	if err := newCmd.MarkFlagRequired("git-url"); err != nil {
		panic(err)
	}

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Manage product manifests",
	}
	cmd.AddCommand(newCmd)
	return cmd
}

func createServeCommand(c *command) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the toystudio daemon",
		Long: `Start the HTTP API over the installation root. Settings come from the
[server], [metrics] and [history] sections of toystudio.toml.

Examples:
  toystudio serve
  toystudio serve --root=/opt/toystudio
  toystudio serve --daemonize --pidfile=/run/toystudio.pid --logfile=/var/log/toystudio.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Serve(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&f.PidFile, "pidfile", "", "write the daemon pid to this file")
	cmd.Flags().StringVar(&f.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}
