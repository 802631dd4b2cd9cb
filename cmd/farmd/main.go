// farmd supervises the per-account automation runtimes: it auto-starts
// every stored account against the game gateway and exposes a local
// operator console for the chat command set.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"qq-farm-runtime/config"
	"qq-farm-runtime/logger"
	"qq-farm-runtime/ratelimit"
	"qq-farm-runtime/router"
	"qq-farm-runtime/runtime"
	"qq-farm-runtime/state"
	"qq-farm-runtime/version"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "farmd",
	Short: "farmd - multi-account farm automation runtime",
	Long: `farmd keeps a pool of game accounts logged in against the farm
gateway and automates their farms: harvesting, planting, watering,
friend visits, task claims and warehouse sales.

Available commands:
  run      - Start the manager and auto-start every stored account
  console  - Run the manager with an interactive command console
  version  - Show build information

Examples:
  farmd run                # Start with farmd.yaml from cwd or ~/.farmd
  farmd run -c /etc/farmd.yaml
  farmd console            # Same, plus a local qfarm command prompt`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the account manager and wait for a signal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		manager, _, err := buildCore(cfg)
		if err != nil {
			return err
		}
		defer logger.Cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := manager.Start(ctx); err != nil {
			logger.Warnw("account auto-start finished with errors", "error", err)
		}
		logger.Infow("farmd running", "dataDir", cfg.Data.Dir)

		<-ctx.Done()
		logger.Info("shutting down")
		manager.Stop()
		return nil
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the manager with an interactive command console",
	Long: `Starts the account manager like run, then reads qfarm commands
from stdin and prints the replies. The console user is a super admin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		manager, store, err := buildCore(cfg)
		if err != nil {
			return err
		}
		defer logger.Cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := manager.Start(ctx); err != nil {
			logger.Warnw("account auto-start finished with errors", "error", err)
		}

		const consoleUser = "console"
		rt := router.New(router.Options{
			Manager: manager,
			Store:   store,
			Limiter: ratelimit.New(cfg.LimiterConfig()),
			IsSuperAdmin: func(userID string) bool {
				return userID == consoleUser || cfg.IsSuperAdmin(userID)
			},
			Notify: func(_ any, text string) {
				fmt.Println(text)
			},
			PerUserInFlight: cfg.RateLimit.PerUserInFlight,
		})
		defer rt.Shutdown()
		defer manager.Stop()

		fmt.Println("farmd console — 输入命令，例如: 帮助 / 状态 / 农田 查看 (exit 退出)")
		scanner := bufio.NewScanner(os.Stdin)
		prompt := func() { fmt.Print("qfarm> ") }
		prompt()
		for scanner.Scan() {
			line := scanner.Text()
			if line == "exit" || line == "quit" {
				break
			}
			replies := rt.Handle(ctx, router.Request{
				UserID:  consoleUser,
				Message: line,
				Origin:  consoleUser,
			})
			for _, reply := range replies {
				if reply.Text != "" {
					fmt.Println(reply.Text)
				}
				if reply.ImageURL != "" {
					fmt.Println("[图片] " + reply.ImageURL)
				}
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			prompt()
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show farmd version information",
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		info := version.Get()
		if jsonOutput {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error formatting JSON: %v\n", err)
				return
			}
			fmt.Println(string(output))
			return
		}
		fmt.Println(info.String())
		fmt.Printf("Platform: %s\n", info.Platform)
		fmt.Printf("Go: %s\n", info.GoVersion)
	},
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFromFile(configFile)
	}
	return config.Load()
}

func buildCore(cfg *config.Config) (*runtime.Manager, *state.Store, error) {
	store, err := state.Open(cfg.Data.Dir, cfg.Access.WhitelistUsers, cfg.Access.WhitelistGroups)
	if err != nil {
		return nil, nil, err
	}
	manager, err := runtime.NewManager(cfg.ManagerOptions())
	if err != nil {
		return nil, nil, err
	}
	return manager, store, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: farmd.yaml in cwd or ~/.farmd)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
