package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"addhost/internal/bundle"
	"addhost/internal/config"
	"addhost/internal/host/wasmhost"
	"addhost/internal/host/yaegihost"
	"addhost/pkg/extension"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "addhost",
	Short: "addhost - a native extension module and the hosts that load it",
	Long: `addhost registers a minimal native extension module (demo.add) and
drives it through its host boundaries: the dynamic calling convention,
an embedded Go script host, and a WebAssembly host.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logger.With(zap.String("invocation", uuid.NewString()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// callCmd invokes a method through the module's calling convention.
var callCmd = &cobra.Command{
	Use:   "call <method> [args...]",
	Short: "Invoke a module method",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, err := registeredModule()
		if err != nil {
			return err
		}

		// Tokens that do not parse as integers are passed through raw so
		// the module's own marshaling reports the shape error.
		callArgs := make([]any, 0, len(args)-1)
		for _, raw := range args[1:] {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				callArgs = append(callArgs, n)
			} else {
				callArgs = append(callArgs, raw)
			}
		}

		result, err := mod.Call(args[0], callArgs...)
		if err != nil {
			var argErr *extension.ArgumentError
			if errors.As(err, &argErr) {
				return fmt.Errorf("argument error: %w", err)
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	},
}

// evalCmd runs a caller script in the embedded Go host.
var evalCmd = &cobra.Command{
	Use:   "eval <script.go|-|source>",
	Short: "Evaluate a caller script against the module",
	Long: `Evaluate a Go script that imports the module and defines
func Run() int64, e.g.:

  addhost eval 'import "demo/demo"

func Run() int64 { return demo.Add(2, 3) }'

Pass a file path to run a script from disk, or - to read it from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, err := registeredModule()
		if err != nil {
			return err
		}
		src, err := readScript(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		timeout, err := cfg.EvalTimeout()
		if err != nil {
			return err
		}

		h := yaegihost.New(mod, yaegihost.Options{
			Timeout:        timeout,
			AllowedImports: cfg.Host.AllowedImports,
			Logger:         logger,
		})
		result, err := h.Eval(cmd.Context(), src)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	},
}

var (
	wasmFn    string
	wasmGuest string
)

// wasmCmd runs a WASM guest against the module's host functions.
var wasmCmd = &cobra.Command{
	Use:   "wasm [args...]",
	Short: "Run a WASM guest against the module",
	Long: `Instantiate a WASM guest binary against the module's host functions
and invoke one of its exports with integer arguments. Without --guest the
bundled demo guest is used; it imports demo.add and re-exports it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mod, err := registeredModule()
		if err != nil {
			return err
		}

		guest := wasmhost.DemoGuest()
		if wasmGuest != "" {
			guest, err = os.ReadFile(wasmGuest)
			if err != nil {
				return fmt.Errorf("failed to read guest: %w", err)
			}
		}

		callArgs := make([]int64, len(args))
		for i, raw := range args {
			callArgs[i], err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("argument %d: %q is not an integer", i+1, raw)
			}
		}

		h := wasmhost.New(mod, logger)
		result, err := h.Run(cmd.Context(), guest, wasmFn, callArgs...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	},
}

var (
	bundleName    string
	bundleVersion string
	bundleOut     string
	bundleReplace bool
)

// bundleCmd packs a built artifact into a distributable bundle.
var bundleCmd = &cobra.Command{
	Use:   "bundle <artifact>",
	Short: "Pack a built guest artifact into a bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := bundleName
		if name == "" {
			name = cfg.Module.Name
		}
		version := bundleVersion
		if version == "" {
			version = cfg.Bundle.Version
		}
		outDir := bundleOut
		if outDir == "" {
			outDir = cfg.Bundle.OutputDir
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}

		b := &bundle.Builder{
			Name:    name,
			Version: version,
			Replace: bundleReplace,
			Logger:  logger,
		}
		out, err := b.Build(args[0], outDir)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

// registeredModule resolves the configured module name. Only the demo
// module is compiled in.
func registeredModule() (*extension.Module, error) {
	if cfg.Module.Name != "demo" {
		return nil, fmt.Errorf("unknown module %q (only \"demo\" is registered)", cfg.Module.Name)
	}
	return extension.Demo(), nil
}

// readScript resolves the eval argument: "-" reads stdin, an existing file
// path reads the file, anything else is inline source.
func readScript(stdin io.Reader, arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", fmt.Errorf("failed to read script: %w", err)
		}
		return string(data), nil
	}
	return arg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")

	wasmCmd.Flags().StringVar(&wasmFn, "fn", "add", "guest export to invoke")
	wasmCmd.Flags().StringVar(&wasmGuest, "guest", "", "path to a guest .wasm (default: bundled demo guest)")

	bundleCmd.Flags().StringVar(&bundleName, "name", "", "bundle name (default: configured module name)")
	bundleCmd.Flags().StringVar(&bundleVersion, "version", "", "bundle version (default: configured version)")
	bundleCmd.Flags().StringVar(&bundleOut, "out", "", "output directory (default: configured output dir)")
	bundleCmd.Flags().BoolVar(&bundleReplace, "replace", false, "overwrite an existing bundle")

	rootCmd.AddCommand(callCmd, evalCmd, wasmCmd, bundleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
