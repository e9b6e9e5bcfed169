package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

var errSendFailures = errors.New("some messages failed")

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	dryRun := flag.Bool("dry-run", false, "Simulate sending instead of driving WhatsApp Web")
	serve := flag.Bool("serve", false, "Start the web interface instead of sending from files")
	assumeYes := flag.Bool("yes", false, "Skip the interactive confirmation prompt")
	flag.Parse()

	_ = godotenv.Load()

	config, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLogger, err := InitLogger(config.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err = run(ctx, config, logger, *dryRun, *serve, *assumeYes)
	stop()
	closeLogger()

	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, config *Config, logger zerolog.Logger, dryRun, serve, assumeYes bool) error {
	logger.Info().Bool("dry_run", dryRun).Bool("serve", serve).Msg("WhatsApp bulk sender started")

	if dryRun && config.Files.CompletedCSVPath != "" {
		logger.Info().Msg("completed ledger disabled for simulated sends")
		config.Files.CompletedCSVPath = ""
		config.Sending.SkipCompleted = false
	}

	sender, closeSender, err := newSender(ctx, config, dryRun, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize sender")
		return err
	}
	defer closeSender()

	if serve {
		err = runServer(ctx, config, sender, logger)
	} else {
		err = runCLI(ctx, config, sender, logger, os.Stdin, os.Stdout, assumeYes)
	}

	if err != nil && !errors.Is(err, errSendFailures) {
		logger.Error().Err(err).Msg("WhatsApp bulk sender stopped")
		return err
	}
	logger.Info().Msg("WhatsApp bulk sender finished")
	return err
}

func newSender(ctx context.Context, config *Config, dryRun bool, logger zerolog.Logger) (Sender, func(), error) {
	if dryRun {
		opts := []SimulatedOption{
			WithLatency(time.Duration(config.Sending.SimulatedLatencyMs) * time.Millisecond),
			WithSuccessProbability(config.Sending.SuccessProbability),
		}
		if config.Sending.Seed != 0 {
			opts = append(opts, WithSeed(config.Sending.Seed))
		}
		return NewSimulatedSender(opts...), func() {}, nil
	}

	client := NewWhatsAppClient(config.Browser, logger)
	if err := client.Initialize(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, client.Close, nil
}

// newSessionOptions wires the session collaborators shared by the CLI and the
// web interface. The completed ledger is keyed by template, so it is opened per
// session.
func newSessionOptions(config *Config, template string, sender Sender, logger zerolog.Logger) (SessionOptions, error) {
	opts := SessionOptions{
		Sender:       sender,
		Personalizer: NewPersonalizer(config.Phone.FallbackName),
		Interval:     time.Duration(config.Sending.IntervalSeconds) * time.Second,
		Logger:       logger,
	}

	if config.Files.CompletedCSVPath == "" {
		return opts, nil
	}

	tracker, err := NewCompletedTracker(config.Files.CompletedCSVPath, template, logger)
	if err != nil {
		return opts, err
	}
	opts.OnResult = tracker.Observe
	if config.Sending.SkipCompleted {
		opts.Skip = tracker.IsCompleted
	}
	return opts, nil
}

func runCLI(ctx context.Context, config *Config, sender Sender, logger zerolog.Logger, in io.Reader, out io.Writer, assumeYes bool) error {
	if config.Files.ContactsPath == "" || config.Files.TemplatePath == "" {
		return errors.New("files.contacts_path and files.template_path are required without -serve")
	}

	parser := NewContactParser(config.PhonePolicy())
	logger.Info().Str("path", config.Files.ContactsPath).Msg("loading contacts")
	contacts, err := parser.LoadContactsFile(config.Files.ContactsPath)
	if err != nil {
		return err
	}
	logger.Info().Int("count", len(contacts)).Msg("loaded contacts")

	logger.Info().Str("path", config.Files.TemplatePath).Msg("loading message template")
	template, err := LoadTemplate(config.Files.TemplatePath)
	if err != nil {
		return err
	}

	attachment, err := LoadAttachment(config.Files.AttachmentPath)
	if err != nil {
		return err
	}

	opts, err := newSessionOptions(config, template, sender, logger)
	if err != nil {
		return err
	}
	opts.Attachment = attachment

	session := NewSession(contacts, template, opts)
	if err := session.RequestConfirmation(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Sample message for %s:\n%s\n\n", contacts[0].Phone, session.Preview())
	if !assumeYes {
		ok, err := confirm(in, out, len(contacts))
		if err != nil {
			return err
		}
		if !ok {
			logger.Info().Msg("send cancelled by user")
			return nil
		}
	}
	if err := session.Confirm(); err != nil {
		return err
	}

	started := time.Now()
	result, runErr := session.Run(ctx)
	if result == nil {
		return runErr
	}
	if runErr != nil {
		logger.Warn().Err(runErr).Int("recorded", result.Total()).Msg("send run interrupted")
	}

	path, err := writeReportFile(config.Files.ReportDir, result, time.Now())
	if err != nil {
		return err
	}

	logger.Info().
		Int("total", result.Total()).
		Int("sent", result.Sent()).
		Int("failed", result.Failed()).
		Str("success_rate", fmt.Sprintf("%.1f%%", result.SuccessRate())).
		Dur("duration", time.Since(started)).
		Str("report", path).
		Msg("automation summary")

	for _, res := range result.Results {
		if res.Status == StatusFailure {
			logger.Warn().Str("name", res.Contact.Name).Str("phone", res.Contact.Phone).Str("reason", res.Reason).Msg("failed contact")
		}
	}

	if runErr != nil {
		return runErr
	}
	if result.Failed() > 0 {
		return errSendFailures
	}
	return nil
}

// confirm asks the operator to type "yes" before anything is sent.
func confirm(in io.Reader, out io.Writer, count int) (bool, error) {
	fmt.Fprintf(out, "Send this message to %d contacts? Type 'yes' to continue: ", count)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false, scanner.Err()
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes"), nil
}

func writeReportFile(dir string, result *SendRun, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(dir, ReportFilename(now))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if err := BuildReport(result).WriteCSV(file); err != nil {
		return "", err
	}
	return path, file.Close()
}

func runServer(ctx context.Context, config *Config, sender Sender, logger zerolog.Logger) error {
	store, closeStore, err := NewReportStore(ctx, config.Redis)
	if err != nil {
		return err
	}
	defer closeStore()

	if logger.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              config.Server.Address,
		Handler:           NewServer(config, sender, store, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", srv.Addr).Msg("web interface listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down web interface")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
