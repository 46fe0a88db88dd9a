package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"assistdojo/internal/app"
	"assistdojo/internal/catalog"
	"assistdojo/internal/devtools"
)

// Version is set via ldflags.
var Version = "dev"

func main() {
	if err := Run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// Run builds the command tree and executes it with the given arguments.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root, err := newRootCommand()
	if err != nil {
		return err
	}
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCommand() (*cobra.Command, error) {
	cfg, err := app.LoadConfig(app.DefaultConfig())
	if err != nil {
		return nil, err
	}
	cfg.Version = Version

	rootCmd := &cobra.Command{
		Use:   "assistdojo",
		Short: "Practice working with a coding assistant in a simulated project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return play(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the progress database and logs")
	flags.StringVar(&cfg.LogPath, "log", cfg.LogPath, `Log file path ("-" for stderr)`)
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or text")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Log debug events")
	flags.StringVar(&cfg.CatalogDir, "catalog-dir", cfg.CatalogDir, "Extra directory of exercise definitions")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for simulated responses (0 picks one)")
	flags.IntVar(&cfg.ResponseDelayMS, "delay-ms", cfg.ResponseDelayMS, "Simulated response delay in milliseconds")
	flags.IntVar(&cfg.ExactThreshold, "exact-threshold", cfg.ExactThreshold, "Percent of tokens required for command steps")
	flags.IntVar(&cfg.FreeformThreshold, "freeform-threshold", cfg.FreeformThreshold, "Percent of tokens required for freeform steps")
	flags.BoolVar(&cfg.Ephemeral, "ephemeral", cfg.Ephemeral, "Keep progress in memory only")
	flags.StringVar(&cfg.Render, "render", cfg.Render, "Output rendering: auto, markdown or plain")
	flags.StringVar(&cfg.LearnerID, "learner", cfg.LearnerID, "Learner id (defaults to a generated one)")

	rootCmd.AddCommand(
		newPlayCmd(&cfg),
		newCatalogCmd(&cfg),
		newProgressCmd(&cfg),
		newVersionCmd(),
	)
	return rootCmd, nil
}

func newPlayCmd(cfg *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "play",
		Aliases: []string{"p"},
		Short:   "Start the interactive tutor",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return play(cmd.Context(), *cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func play(ctx context.Context, cfg app.Config, stdin io.Reader, stdout io.Writer) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("start tutor: %w", err)
	}
	defer a.Close()

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Tutor loop.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				return a.Run(ctx, stdin, stdout)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

func newCatalogCmd(cfg *app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and check exercise definitions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available exercises",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cat, problems, err := app.LoadCatalog(*cfg)
				if err != nil {
					return fmt.Errorf("load catalog: %w", err)
				}
				render, err := app.NewRenderer(cfg.Render)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), render.Markdown(app.CatalogMarkdown(cat.All(), nil)))
				if len(problems) > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "%d definitions skipped; run `assistdojo catalog validate` for details\n", len(problems))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate [dir]",
			Short: "Load the catalog and report definitions that fail to load",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c := *cfg
				if len(args) == 1 {
					c.CatalogDir = args[0]
				}
				cat, problems, err := app.LoadCatalog(c)
				if err != nil {
					return fmt.Errorf("load catalog: %w", err)
				}
				return reportProblems(cmd.OutOrStdout(), cat, problems)
			},
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Replay every reference solution and report exercises that cannot be completed",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cat, problems, err := app.LoadCatalog(*cfg)
				if err != nil {
					return fmt.Errorf("load catalog: %w", err)
				}
				if err := reportProblems(cmd.OutOrStdout(), cat, problems); err != nil {
					return err
				}
				report := devtools.NewManager().Verify(cmd.Context(), cat.All())
				for _, f := range report.Findings {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n", f)
				}
				if !report.OK() {
					return fmt.Errorf("%d verification findings", len(report.Findings))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Verified %d definitions\n", report.Checked)
				return nil
			},
		},
	)
	return cmd
}

func reportProblems(out io.Writer, cat *catalog.Catalog, problems []catalog.LoadError) error {
	for _, p := range problems {
		fmt.Fprintf(out, "SKIP %s\n", p.Error())
	}
	if len(problems) > 0 {
		return errors.New("catalog has invalid definitions")
	}
	fmt.Fprintf(out, "Loaded %d definitions\n", cat.Len())
	return nil
}

func newProgressCmd(cfg *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show scores, badges and due reviews",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := a.Report(cmd.Context())
			if err != nil {
				return fmt.Errorf("build report: %w", err)
			}
			render, err := app.NewRenderer(cfg.Render)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Markdown(report.Markdown()))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
