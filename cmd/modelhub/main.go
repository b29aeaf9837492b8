package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/osvaldoandrade/modelhub/internal/prompt"
	"github.com/osvaldoandrade/modelhub/pkg/app"
	"github.com/osvaldoandrade/modelhub/pkg/config"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// globals are the persistent flags shared by every command.
type globals struct {
	profile  string
	baseURL  string
	logLevel string
	output   string
}

// config resolves the active profile and applies flag overrides.
func (g *globals) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.DefaultPath(), g.profile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(g.baseURL), "/")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = g.output
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (g *globals) app(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := g.config(cmd)
	if err != nil {
		return nil, err
	}
	application, err := app.NewApplication(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}
	return application, nil
}

func closeApp(application *app.Application) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = application.Close(ctx)
}

func main() {
	g := &globals{}
	ui := newUI()

	root := &cobra.Command{
		Use:   "modelhub",
		Short: "modelhub CLI",
		Long:  "modelhub CLI for running image models, managing your session and browsing results.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.PersistentFlags().StringVar(&g.profile, "profile", "", "Config profile")
	root.PersistentFlags().StringVar(&g.baseURL, "base-url", "", "API base URL")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.output, "output-dir", "", "Directory for downloaded images")

	root.AddCommand(initCmd(g, ui))
	root.AddCommand(authCmd(g, ui))
	root.AddCommand(modelCmd(g, ui))
	root.AddCommand(runCmd(g, ui))
	root.AddCommand(imagesCmd(g, ui))
	root.AddCommand(serveCmd(g, ui))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), describe(err))
		os.Exit(1)
	}
}

// describe turns workflow errors into the messages a user acts on.
func describe(err error) string {
	var credits *domain.CreditError
	var validation *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return "Sign in to process images (run `modelhub auth login`)"
	case errors.As(err, &credits):
		return credits.Error()
	case errors.As(err, &validation):
		return validation.Error()
	case errors.Is(err, prompt.ErrAborted), errors.Is(err, context.Canceled):
		return "aborted"
	}
	return err.Error()
}

func startSpinner(suffix string) *spinner.Spinner {
	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	spin.Suffix = " " + suffix
	spin.Writer = os.Stderr
	spin.Start()
	return spin
}

func helpTemplate(ui *ui) string {
	title := ui.title("modelhub")
	return fmt.Sprintf(`%s: CLI for modelhub image models

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  modelhub init
  modelhub auth login --email you@company.com
  modelhub model show upscaler
  modelhub run upscaler --set src=./photo.png --set scale=4 --download
  modelhub run restyle --image-url https://cdn.modelhub.ai/out.png
  modelhub serve --addr 127.0.0.1:8787

`, title, config.DefaultPath())
}
