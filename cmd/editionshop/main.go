// Command editionshop is the backend entry point for the edition shop. It
// loads configuration, validates it, wires dependencies, sets up signal
// handling, and starts the application in the configured mode.
//
// Besides running the shop it offers two operator helpers:
//
//	editionshop encrypt-key -out key.enc      encrypt a private key file
//	editionshop sign -method POST -path /api/stores -body body.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alanyoungcy/editionshop/internal/app"
	"github.com/alanyoungcy/editionshop/internal/config"
	"github.com/alanyoungcy/editionshop/internal/crypto"
	"github.com/alanyoungcy/editionshop/internal/server/middleware"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "encrypt-key":
			exit(encryptKey(os.Args[2:]))
			return
		case "sign":
			exit(sign(os.Args[2:]))
			return
		}
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("edition shop starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.String("version", app.Version),
	)
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("edition shop stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func exit(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// encryptKey writes the key from EDSHOP_KEY_PRIVATE_KEY, encrypted under
// EDSHOP_KEY_PASSWORD, to -out.
func encryptKey(args []string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	out := fs.String("out", "operator.key.enc", "output path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, password := os.Getenv("EDSHOP_KEY_PRIVATE_KEY"), os.Getenv("EDSHOP_KEY_PASSWORD")
	if key == "" || password == "" {
		return errors.New("EDSHOP_KEY_PRIVATE_KEY and EDSHOP_KEY_PASSWORD must be set")
	}
	data, err := crypto.EncryptKey(key, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Printf("encrypted key written to %s\n", *out)
	return nil
}

// sign prints the authentication headers for one API request signed with the
// configured operator key.
func sign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	method := fs.String("method", "POST", "HTTP method")
	path := fs.String("path", "", "request path, e.g. /api/stores")
	bodyPath := fs.String("body", "", "file holding the exact request body")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("-path is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Key.PrivateKey,
		EncryptedKeyPath: cfg.Key.EncryptedKeyPath,
		KeyPassword:      cfg.Key.KeyPassword,
	})
	if err != nil {
		return err
	}
	signer, err := crypto.NewSigner(key, crypto.Domain{
		Name:    cfg.Server.Auth.DomainName,
		Version: cfg.Server.Auth.DomainVersion,
		ChainID: cfg.Server.Auth.ChainID,
	})
	if err != nil {
		return err
	}

	var body []byte
	if *bodyPath != "" {
		if body, err = os.ReadFile(*bodyPath); err != nil {
			return fmt.Errorf("read body: %w", err)
		}
	}
	ts := time.Now().Unix()
	sig, err := signer.SignRequest(crypto.SignedRequest{
		Timestamp: ts,
		Method:    *method,
		Path:      *path,
		Body:      body,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", middleware.HeaderAddress, signer.Address().Hex())
	fmt.Printf("%s: %s\n", middleware.HeaderTimestamp, strconv.FormatInt(ts, 10))
	fmt.Printf("%s: %s\n", middleware.HeaderSignature, sig)
	return nil
}
