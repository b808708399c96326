// chatroom-server serves chat rooms over TLS. Raw packet clients and
// WebSocket clients share one port.
package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/omochice/chatroom/internal/config"
	"github.com/omochice/chatroom/internal/logging"
	"github.com/omochice/chatroom/internal/server"
	"github.com/omochice/chatroom/internal/tlsutil"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("chatroom-server", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to a YAML config file")
	listen := flagSet.StringP("listen", "l", "", "address to listen on (e.g., :8080)")
	certFile := flagSet.String("cert", "", "PEM certificate file; a self-signed certificate is generated when unset")
	keyFile := flagSet.String("key", "", "PEM private key file")
	adminUser := flagSet.String("admin-user", "", "administrator account created at startup")
	adminPassword := flagSet.String("admin-password", "", "administrator password; prompted for when unset")
	maxUsers := flagSet.Int("max-users", 0, "maximum number of registered users")
	maxClients := flagSet.Int("max-clients", 0, "maximum number of connected clients")
	maxRooms := flagSet.Int("max-rooms", 0, "maximum number of rooms")
	logLevel := flagSet.String("log-level", "", "log level: debug, info, warn, error or off")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.Default()
	cfg.Log.Level = "info"
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if flagSet.Changed("listen") {
		cfg.Listen.Address = *listen
	}
	if flagSet.Changed("cert") {
		cfg.Listen.CertFile = *certFile
	}
	if flagSet.Changed("key") {
		cfg.Listen.KeyFile = *keyFile
	}
	if flagSet.Changed("admin-user") {
		cfg.Listen.AdminUsername = *adminUser
	}
	if flagSet.Changed("admin-password") {
		cfg.Listen.AdminPassword = *adminPassword
	}
	if flagSet.Changed("max-users") {
		cfg.Listen.MaxUsers = *maxUsers
	}
	if flagSet.Changed("max-clients") {
		cfg.Listen.MaxClients = *maxClients
	}
	if flagSet.Changed("max-rooms") {
		cfg.Listen.MaxRooms = *maxRooms
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if cfg.Listen.AdminUsername != "" && cfg.Listen.AdminPassword == "" {
		password, err := promptPassword(cfg.Listen.AdminUsername)
		if err != nil {
			return err
		}
		cfg.Listen.AdminPassword = password
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, os.Stderr)
	if err != nil {
		return err
	}

	cert, err := tlsutil.LoadOrGenerate(cfg.Listen.CertFile, cfg.Listen.KeyFile)
	if err != nil {
		return err
	}
	if cfg.Listen.CertFile == "" {
		logger.Warn("using a generated self-signed certificate; clients need --insecure")
	}

	srv, err := server.New(server.Config{
		Address:   cfg.Listen.Address,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		Limits: server.Limits{
			MaxUsers:   cfg.Listen.MaxUsers,
			MaxClients: cfg.Listen.MaxClients,
			MaxRooms:   cfg.Listen.MaxRooms,
		},
		AdminUsername: cfg.Listen.AdminUsername,
		AdminPassword: cfg.Listen.AdminPassword,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("accepting raw and WebSocket clients", "address", srv.Addr())
		errChan <- srv.Serve()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		srv.Stop()
	}

	logger.Info("server stopped", slog.Int("clients", srv.Hub().ClientCount()))
	return nil
}

func promptPassword(username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("admin password required (use --admin-password)")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}
