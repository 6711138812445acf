package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coffersTech/als/internal/config"
	"github.com/coffersTech/als/internal/logging"
	"github.com/coffersTech/als/internal/model"
	"github.com/coffersTech/als/internal/printer"
	"github.com/coffersTech/als/internal/storage"
)

var (
	logInstance string
	logRole     string
	logPreset   string
	logCaller   string
	logNet      string
	logSource   string
	logRemote   string
	logUser     string
	logPassword string
)

var logCmd = &cobra.Command{
	Use:   "log [message...]",
	Short: "Print one message through the ALS print pipeline",
	Long: `Print one message the way an instrumented process does: shown on the
console for screen presets and appended to the instance file when a caller is set.
With --remote the record is sent to a viewer server's ingest endpoint instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLog,
}

func init() {
	f := logCmd.Flags()
	f.StringVarP(&logInstance, "instance", "i", "", "Instance name (default: <Project>_<Role> (0))")
	f.StringVar(&logRole, "role", "Standalone", "Role used in the default instance name")
	f.StringVarP(&logPreset, "preset", "p", "PrintInfo", "Print preset, e.g. PrintWarn or LogError")
	f.StringVar(&logCaller, "caller", "Console", "Context object name; empty logs without a context")
	f.StringVar(&logNet, "net", "standalone", "Network role of the caller: standalone, server, client, dedicated")
	f.StringVar(&logSource, "source", "cli", "Source id of local records")
	f.StringVar(&logRemote, "remote", "", "Viewer server URL to send the record to")
	f.StringVar(&logUser, "user", "als", "Basic auth user for --remote")
	f.StringVar(&logPassword, "password", "", "Basic auth password for --remote")
}

type namedContext struct {
	name string
	net  model.NetRole
}

func (c namedContext) DisplayName() string    { return c.name }
func (c namedContext) NetRole() model.NetRole { return c.net }

func runLog(cmd *cobra.Command, args []string) error {
	var preset printer.Preset
	if err := preset.UnmarshalText([]byte(logPreset)); err != nil {
		return err
	}
	instance := logInstance
	if instance == "" {
		instance = store.ResolveInstanceName(storage.ProcessInfo{Role: storage.ParseRole(logRole)})
	}
	var ctx printer.Context
	if logCaller != "" {
		ctx = namedContext{name: logCaller, net: netRole(logNet)}
	}
	message := strings.Join(args, " ")

	presets, err := cfg.PrinterPresets()
	if err != nil {
		return err
	}
	p := printer.New(printer.Options{
		Screen:         &printer.WriterScreen{W: cmd.OutOrStdout()},
		Sink:           store,
		Instance:       instance,
		Logger:         logger,
		ShowCallerName: cfg.ShowCallerName,
		FileLog:        cfg.EnableFileLog,
		UniqueOnly:     cfg.UniqueTaskMessages,
		Presets:        presets,
	})
	pcfg := p.Preset(preset)

	if logRemote != "" {
		return sendRemote(cmd.Context(), instance, ctx, pcfg.Level, message)
	}
	if cfg.EnableFileLog && ctx != nil {
		if err := store.StartSession(instance); err != nil {
			return err
		}
	}
	return p.Print(pcfg, ctx, logSource, message)
}

// sendRemote posts one record through the slog bridge.
func sendRemote(ctx context.Context, instance string, caller printer.Context, level model.Level, message string) error {
	h := logging.NewHandler(logging.Options{
		Sink: &logging.RemoteSink{
			ServerURL: logRemote,
			Instance:  instance,
			User:      logUser,
			Password:  logPassword,
		},
		ErrorOutput: os.Stderr,
	})
	attrs := []any{}
	if caller != nil {
		attrs = append(attrs, logging.ContextKey, caller)
	}
	slog.New(h).Log(ctx, slogLevel(level), message, attrs...)
	return h.Close()
}

func slogLevel(l model.Level) slog.Level {
	switch l {
	case model.LevelError:
		return slog.LevelError
	case model.LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func netRole(s string) model.NetRole {
	switch storage.ParseRole(s) {
	case storage.RoleServer:
		return model.ListenServer
	case storage.RoleClient:
		return model.Client
	case storage.RoleDedicatedServer:
		return model.DedicatedServer
	default:
		return model.Standalone
	}
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for server.password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := config.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}
