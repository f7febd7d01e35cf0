package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marrusl/yoinkc/internal/config"
	"github.com/marrusl/yoinkc/internal/gitpush"
	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/internal/logger"
	"github.com/marrusl/yoinkc/internal/pipeline"
	"github.com/marrusl/yoinkc/internal/preflight"
	"github.com/marrusl/yoinkc/internal/validate"
	"github.com/marrusl/yoinkc/internal/yerrors"
	"github.com/marrusl/yoinkc/pkg/types"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "yoinkc",
	Short:        "Inspect a package-managed host and produce a bootc image recipe",
	SilenceUsage: true,
	Long: `yoinkc inspects a live RHEL / CentOS Stream / Fedora host through a
read-only mount and reverse-engineers what the operator changed relative to a
canonical base image. It emits a layered Containerfile, a mirrored config
tree, an audit report, an HTML dashboard, a kickstart fragment, a secrets
review, and a structured snapshot of everything the inspectors found.

The inspection is strictly read-only against the host. The generated recipe
is a starting point for an image-based deployment, not a finished product.`,
	Example: `  # Inspect the host mounted at /host, write everything to ./output
  sudo podman run --rm --pid=host --privileged --security-opt label=disable \
      -v /:/host:ro -v ./output:/output:z yoinkc --output-dir /output

  # Air-gapped: supply the base image package list yourself
  yoinkc --baseline-packages base-packages.txt

  # Re-render from a saved snapshot, no host access needed
  yoinkc --from-snapshot output/inspection-snapshot.json --output-dir rendered`,
	RunE: runRoot,
}

// Execute runs the CLI, mapping fatal errors to their exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(yerrors.ExitCode(err))
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.String("host-root", "/host", "path at which the host root is mounted")
	flags.StringP("output-dir", "o", "./output", "directory for all artifacts (created if missing)")
	flags.String("from-snapshot", "", "load a sealed snapshot from FILE and skip inspection")
	flags.Bool("inspect-only", false, "run inspection and save the snapshot; skip renderers")
	flags.String("target-version", "", "override the auto-detected base image version (e.g. 9.6)")
	flags.String("target-image", "", "override the base image reference entirely")
	flags.String("baseline-packages", "", "newline-separated package list for air-gapped baselines")
	flags.Bool("config-diffs", false, "diff modified configs against package-shipped originals")
	flags.Bool("deep-binary-scan", false, "full-binary string scanning in the non-package inspector (slow)")
	flags.Bool("query-podman", false, "enumerate live containers through the host runtime")
	flags.Bool("validate", false, "build the generated recipe through the host runtime")
	flags.String("push-to-github", "", "push the output directory to REPO (owner/name)")
	flags.String("github-token", "", "token for repo creation (falls back to GITHUB_TOKEN)")
	flags.Bool("public", false, "create a new remote repository as public (default private)")
	flags.BoolP("yes", "y", false, "skip interactive confirmations")
	flags.Bool("skip-preflight", false, "bypass the container privilege probe")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default /etc/yoinkc/yoinkc.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	for flagName, key := range map[string]string{
		"host-root":         "host_root",
		"output-dir":        "output_dir",
		"from-snapshot":     "from_snapshot",
		"inspect-only":      "inspect_only",
		"target-version":    "target_version",
		"target-image":      "target_image",
		"baseline-packages": "baseline_packages",
		"config-diffs":      "config_diffs",
		"deep-binary-scan":  "deep_binary_scan",
		"query-podman":      "query_podman",
		"validate":          "validate",
		"push-to-github":    "push_to_github",
		"github-token":      "github_token",
		"public":            "public",
		"yes":               "yes",
		"skip-preflight":    "skip_preflight",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flagName))
	}
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.AddCommand(newVersionCommand())
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	if cfg.NoColor {
		color.NoColor = true
	}
	log := logger.New(cfg.LogLevel)

	// Preflight only applies when inspecting through a mounted host root.
	if cfg.FromSnapshot == "" && cfg.HostRoot != "/" && !cfg.SkipPreflight {
		if errs := preflight.New().Check(); len(errs) > 0 {
			fmt.Fprintln(os.Stderr, color.RedString("container privilege checks failed:"))
			for _, msg := range errs {
				fmt.Fprintf(os.Stderr, "  • %s\n", msg)
			}
			fmt.Fprintln(os.Stderr, "\nRun with the required flags, e.g.:")
			fmt.Fprintln(os.Stderr, "  sudo podman run --rm --pid=host --privileged --security-opt label=disable \\")
			fmt.Fprintln(os.Stderr, "    -v /:/host:ro -v ./output:/output:z yoinkc --output-dir /output")
			fmt.Fprintln(os.Stderr, "\nOr use --skip-preflight to bypass these checks.")
			return yerrors.New(yerrors.KindPrivilege, "privilege probe failed")
		}
	}

	p := pipeline.New(cfg, log)
	snapshot, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}
	printSummary(snapshot)

	if cfg.InspectOnly {
		return nil
	}

	if cfg.Validate {
		validate.Run(cmd.Context(), p.Exec, p.Bridge, cfg.OutputDir, log)
	}

	if cfg.PushRepo != "" {
		pusher := &gitpush.Pusher{Exec: hostexec.NewSystem(), Log: log}
		return pusher.Push(cmd.Context(), cfg.OutputDir, gitpush.Options{
			Repo:   cfg.PushRepo,
			Token:  cfg.GitHubToken,
			Public: cfg.Public,
			Yes:    cfg.Yes,
		})
	}
	return nil
}

func printSummary(s *types.Snapshot) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s (%s)\n", bold("Inspected:"), s.Host.Hostname, s.Host.PrettyName)
	if s.Target != nil {
		fmt.Printf("%s %s\n", bold("Target:"), s.Target.Image)
	}
	if s.Packages != nil {
		fmt.Printf("%s %d added, %d removed\n", bold("Packages:"), len(s.Packages.Added), len(s.Packages.Removed))
	}
	errors, warns := 0, 0
	for _, warn := range s.Warnings {
		switch warn.Severity {
		case types.SeverityError:
			errors++
		case types.SeverityWarn:
			warns++
		}
	}
	if errors > 0 {
		fmt.Println(color.RedString("Errors: %d", errors))
	}
	if warns > 0 {
		fmt.Println(color.YellowString("Warnings: %d", warns))
	}
	if len(s.SecretsReview) > 0 {
		fmt.Println(color.YellowString("Redactions: %d (see secrets-review.md)", len(s.SecretsReview)))
	}
}
