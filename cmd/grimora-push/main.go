package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/naveenspark/grimora-push/internal/browser"
	"github.com/naveenspark/grimora-push/internal/config"
	"github.com/naveenspark/grimora-push/internal/localplatform"
	"github.com/naveenspark/grimora-push/internal/tui"
	"github.com/naveenspark/grimora-push/pkg/client"
	"github.com/naveenspark/grimora-push/pkg/domain"
	"github.com/naveenspark/grimora-push/pkg/push"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if hint := errorHint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// flags holds command-line values. Empty strings mean "not given".
type flags struct {
	configPath string
	apiURL     string
	origin     string
	vapidKey   string
	stateDir   string
	logLevel   string
	logOutput  string
	yes        bool
	no         bool
	copy       bool
	help       bool
}

func newFlagSet(f *flags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("grimora-push", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.configPath, "config", "", "path to YAML config (default: $"+config.EnvConfig+")")
	fs.StringVar(&f.apiURL, "api-url", "", "subscription API base URL")
	fs.StringVar(&f.origin, "origin", "", "application origin, e.g. https://admin.example.com")
	fs.StringVar(&f.vapidKey, "vapid-key", "", "base64url VAPID public key")
	fs.StringVar(&f.stateDir, "state-dir", "", "directory for local platform state")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.logOutput, "log-output", "", "also write JSON log records to this file")
	fs.BoolVarP(&f.yes, "yes", "y", false, "allow notifications without prompting")
	fs.BoolVar(&f.no, "no", false, "block notifications without prompting")
	fs.BoolVar(&f.copy, "copy", false, "status: copy the subscription endpoint to the clipboard")
	fs.BoolVarP(&f.help, "help", "h", false, "show help")
	return fs
}

func run(args []string, stdout io.Writer) error {
	// --version is not a registered flag; handle it before parsing.
	if len(args) > 0 && (args[0] == "--version" || args[0] == "-v") {
		fmt.Fprintln(stdout, "grimora-push "+version)
		return nil
	}

	var f flags
	fs := newFlagSet(&f)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, fs)
			return nil
		}
		return err
	}

	rest := fs.Args()
	if f.help || len(rest) == 0 {
		printHelp(stdout, fs)
		return nil
	}
	command, rest := rest[0], rest[1:]

	switch command {
	case "version":
		fmt.Fprintln(stdout, "grimora-push "+version)
		return nil
	case "help":
		printHelp(stdout, fs)
		return nil
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	switch command {
	case "settings":
		return openSettings(stdout, cfg.SettingsURL)
	case "reset":
		return runReset(stdout, cfg)
	case "init", "permission", "subscribe", "unsubscribe", "status":
	default:
		return fmt.Errorf("unknown command %q (see grimora-push help)", command)
	}

	if f.yes && f.no {
		return errors.New("--yes and --no are mutually exclusive")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger, closeLog, err := newLogger(os.Stderr, cfg.SlogLevel(), f.logOutput)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger, choosePrompter(f, cfg.Origin, logger))
	if err != nil {
		return err
	}
	defer a.Close()

	switch command {
	case "init":
		return a.initialize(ctx, stdout)
	case "permission":
		return a.permission(ctx, stdout)
	case "subscribe":
		if len(rest) != 1 {
			return errors.New("usage: grimora-push subscribe <user-id>")
		}
		return a.subscribe(ctx, stdout, rest[0])
	case "unsubscribe":
		return a.unsubscribe(ctx, stdout)
	default:
		return a.status(ctx, stdout, f.copy)
	}
}

// loadConfig resolves config file, environment and flags, in that order.
func loadConfig(f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.APIURL, f.apiURL)
	override(&cfg.Origin, f.origin)
	override(&cfg.VAPIDPublicKey, f.vapidKey)
	override(&cfg.LocalPlatform.StateDir, f.stateDir)
	override(&cfg.LogLevel, f.logLevel)
	if cfg.Token == "" {
		cfg.Token = readTokenFile(cfg.LocalPlatform.StateDir)
	}
	return cfg, nil
}

// readTokenFile returns the token stored in dir/token, or "".
func readTokenFile(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// choosePrompter picks how permission is asked: --yes and --no answer
// directly, a terminal gets the interactive prompt, anything else dismisses.
func choosePrompter(f flags, origin string, logger *slog.Logger) localplatform.Prompter {
	switch {
	case f.yes:
		return localplatform.Answer(domain.PermissionGranted)
	case f.no:
		return localplatform.Answer(domain.PermissionDenied)
	case isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()):
		return tui.Prompter{Origin: origin}
	default:
		logger.Warn("stdin is not a terminal; permission prompt dismissed (use --yes or --no)")
		return localplatform.Answer(domain.PermissionDefault)
	}
}

// app wires the coordinator to the local platform and the subscription API.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	platform    *localplatform.Platform
	coordinator *push.Coordinator
}

func newApp(cfg *config.Config, logger *slog.Logger, prompter localplatform.Prompter) (*app, error) {
	platform, err := localplatform.New(cfg.LocalPlatform.StateDir,
		localplatform.WithPushServiceURL(cfg.LocalPlatform.PushServiceURL),
		localplatform.WithStepDelay(cfg.LocalPlatform.StepDelay),
		localplatform.WithPrompter(prompter),
		localplatform.WithLogger(logger.With("component", "platform")),
	)
	if err != nil {
		return nil, err
	}

	api := client.New(cfg.APIURL, cfg.Token, client.WithSyncPath(cfg.SyncPath))
	coordinator := push.New(platform, api,
		push.WithApplicationServerKey(cfg.VAPIDPublicKey),
		push.WithOrigin(cfg.Origin),
		push.WithServiceWorker(cfg.ServiceWorker.Script, cfg.ServiceWorker.Scope),
		push.WithActivationTimeout(cfg.Activation.Timeout),
		push.WithPollInterval(cfg.Activation.PollInterval),
		push.WithLogger(logger.With("component", "push")),
	)
	return &app{cfg: cfg, logger: logger, platform: platform, coordinator: coordinator}, nil
}

func (a *app) Close() {
	_ = a.coordinator.Close()
	_ = a.platform.Close()
}

func (a *app) initialize(ctx context.Context, out io.Writer) error {
	if !a.coordinator.Supported() {
		fmt.Fprintln(out, "Push notifications are not supported here.")
		return nil
	}
	if err := a.coordinator.Initialize(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Push ready (%s).\n", a.coordinator.State())
	return nil
}

func (a *app) permission(ctx context.Context, out io.Writer) error {
	p, err := a.coordinator.RequestPermission(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Notification permission: %s\n", tui.PermissionStyle(p).Render(string(p)))
	return nil
}

func (a *app) subscribe(ctx context.Context, out io.Writer, userID string) error {
	err := a.coordinator.Subscribe(ctx, userID)
	if err != nil && !errors.Is(err, push.ErrSyncFailed) {
		return err
	}
	sub, _ := a.coordinator.Subscription()
	fmt.Fprintf(out, "Subscribed %s\n  endpoint: %s\n", userID, sub.Endpoint)
	if err != nil {
		return fmt.Errorf("subscribed locally but the server did not store it: %w", err)
	}
	return nil
}

func (a *app) unsubscribe(ctx context.Context, out io.Writer) error {
	if err := a.coordinator.Initialize(ctx); err != nil {
		return err
	}
	if _, ok := a.coordinator.Subscription(); !ok {
		fmt.Fprintln(out, "No push subscription.")
		return nil
	}
	if err := a.coordinator.Unsubscribe(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Unsubscribed.")
	return nil
}

// status is read-only: it only initializes push when a worker registration
// already exists, so a fresh state directory stays untouched.
func (a *app) status(ctx context.Context, out io.Writer, copyEndpoint bool) error {
	if a.platform.Registered(a.cfg.ServiceWorker.Scope) {
		if err := a.coordinator.Initialize(ctx); err != nil {
			a.logger.Warn("push not initialized", "error", err)
		}
	}

	view := tui.StatusView{
		Origin:      a.cfg.Origin,
		State:       a.coordinator.State().String(),
		Status:      a.coordinator.Status(ctx),
		SettingsURL: a.cfg.SettingsURL,
	}
	sub, ok := a.coordinator.Subscription()
	if ok {
		view.Subscription = &sub
	}
	fmt.Fprint(out, tui.RenderStatus(view))

	if copyEndpoint {
		if !ok {
			return errors.New("no subscription endpoint to copy")
		}
		if err := clipboard.WriteAll(sub.Endpoint); err != nil {
			return fmt.Errorf("copy endpoint: %w", err)
		}
		fmt.Fprintln(out, "\n   Endpoint copied to clipboard.")
	}
	return nil
}

func runReset(out io.Writer, cfg *config.Config) error {
	platform, err := localplatform.New(cfg.LocalPlatform.StateDir)
	if err != nil {
		return err
	}
	defer platform.Close()
	if err := platform.Reset(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Cleared push state in %s\n", cfg.LocalPlatform.StateDir)
	return nil
}

func openSettings(out io.Writer, url string) error {
	if url == "" {
		return errors.New("settings_url is not configured")
	}
	if err := browser.Open(url); err != nil {
		fmt.Fprintf(out, "Could not open browser. Visit:\n  %s\n", url)
	}
	return nil
}

// errorHint suggests a next step for errors a user can act on.
func errorHint(err error) string {
	switch {
	case errors.Is(err, push.ErrPermissionDenied):
		return "run 'grimora-push settings' to see how to allow notifications"
	case errors.Is(err, push.ErrInsecureContext):
		return "push needs an https origin, or http on localhost"
	case client.IsStatus(err, 401):
		return "check " + config.EnvToken + " or the token file in the state directory"
	case push.Retryable(err):
		return "this may be temporary; try again"
	}
	return ""
}
