package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"synapse/pkg/api"
	"synapse/pkg/channels"
	_ "synapse/pkg/channels/telegram" // 註冊 Channels
	_ "synapse/pkg/channels/web"
	"synapse/pkg/config"
	"synapse/pkg/gateway"
	"synapse/pkg/monitor"
	"synapse/pkg/router"
	"synapse/pkg/stream"
	"synapse/pkg/tools"
	"synapse/pkg/utils"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

const sessionSweepInterval = time.Minute

type rootOptions struct {
	configPath string
	systemPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "synapse",
		Short:        "Document and data assistant",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.json", "path to the application config")
	cmd.PersistentFlags().StringVar(&opts.systemPath, "system", "system.json", "path to the system config")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newRouteCmd(opts))
	cmd.AddCommand(newSendEmailCmd(opts))
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the configured channels (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := wireApp(ctx, opts.configPath, opts.systemPath)
	if err != nil {
		return err
	}
	monitor.PrintBanner(os.Stdout)

	go a.handler.Sessions().Run(ctx, sessionSweepInterval)
	go config.WatchSystemConfig(ctx, opts.systemPath, func(sys *config.SystemConfig) {
		monitor.SetLogLevel(sys.LogLevel)
		slog.Info("System config reloaded", "log_level", sys.LogLevel)
	})

	// --- Channels ---
	loaded := channels.LoadFromConfig(a.cfg.Channels, a.sys)
	if len(loaded) == 0 {
		slog.Warn("No channels configured, falling back to the web channel")
		loaded = channels.LoadFromConfig(map[string]jsoniter.RawMessage{"web": jsoniter.RawMessage("{}")}, a.sys)
	}

	gw, err := gateway.NewGatewayBuilder().
		WithMonitor(monitor.NewCLIMonitor()).
		WithChannel(loaded...).
		WithHandler(a.handler).
		Build()
	if err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	<-ctx.Done()
	slog.Info("Shutting down")
	gw.StopAll()
	return nil
}

type runOptions struct {
	file    string
	session string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [message...]",
		Short: "Handle messages once and print the NDJSON event stream",
		Long: "Each argument is sent as one request of the same session, in order. " +
			"The file, if any, is attached to the first request.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.file == "" {
				return errors.New("a message or --file is required")
			}
			return runOnce(cmd.Context(), root, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "document to attach to the first message")
	cmd.Flags().StringVar(&opts.session, "session", "", "session id (default: random)")
	return cmd
}

func runOnce(ctx context.Context, root *rootOptions, opts *runOptions, messages []string) error {
	a, err := wireApp(ctx, root.configPath, root.systemPath)
	if err != nil {
		return err
	}

	file, err := readAttachment(opts.file)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		messages = []string{""}
	}

	session := api.SessionContext{ChannelID: "cli", ChatID: opts.session, Username: os.Getenv("USER")}
	if session.ChatID == "" {
		session.ChatID = utils.GenerateID()
	}

	out := stream.NewWriter(os.Stdout)
	var failed []string
	for i, msg := range messages {
		req := &api.Request{Session: session, Message: msg}
		if i == 0 {
			req.File = file
		}
		outcome, err := a.handler.Handle(ctx, req, out)
		if err != nil {
			return err
		}
		if outcome.Failed {
			failed = append(failed, string(outcome.Tool))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed tools: %s", strings.Join(failed, ", "))
	}
	return nil
}

func readAttachment(path string) (*api.FileAttachment, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)
	return &api.FileAttachment{
		Filename: name,
		MimeType: utils.ResolveMediaType("", name, data),
		Data:     data,
	}, nil
}

func newRouteCmd(root *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "route [message]",
		Short: "Print the routing decision for a message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd.Context(), root.configPath, root.systemPath)
			if err != nil {
				return err
			}
			req := router.Request{}
			if len(args) == 1 {
				req.Message = args[0]
			}
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				req.FileName = filepath.Base(file)
				req.MediaType = utils.ResolveMediaType("", req.FileName, data)
			}

			intent := a.router.Route(cmd.Context(), req)
			out, err := json.MarshalIndent(intent, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "attachment to route with the message")
	return cmd
}

func newSendEmailCmd(root *rootOptions) *cobra.Command {
	var email tools.Email
	var htmlFile string
	cmd := &cobra.Command{
		Use:   "send-email",
		Short: "Send an HTML email through the configured SMTP relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd.Context(), root.configPath, root.systemPath)
			if err != nil {
				return err
			}
			if !a.sender.Configured() {
				return errors.New("email delivery is not configured")
			}
			if htmlFile != "" {
				html, err := os.ReadFile(htmlFile)
				if err != nil {
					return err
				}
				email.HTML = string(html)
			}

			delivery, err := a.handler.SendEmail(cmd.Context(), email)
			if err != nil {
				return errors.New(tools.Message(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), delivery.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&email.To, "to", "", "recipient address")
	cmd.Flags().StringVar(&email.Subject, "subject", "", "subject line")
	cmd.Flags().StringVar(&htmlFile, "html-file", "", "file holding the HTML body")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("html-file")
	return cmd
}
