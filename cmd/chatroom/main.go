// chatroom is an interactive client for the chat room server.
//
// Usage:
//
//	chatroom [--config FILE] [--address HOST:PORT | --address wss://HOST:PORT/]
//	         [--insecure] [--transcript FILE] [--log-level LEVEL]
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/omochice/chatroom/internal/client"
	"github.com/omochice/chatroom/internal/config"
	"github.com/omochice/chatroom/internal/logging"
	"github.com/omochice/chatroom/internal/tlsutil"
	"github.com/omochice/chatroom/internal/transcript"
	"github.com/omochice/chatroom/internal/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("chatroom", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to a YAML config file")
	address := flagSet.StringP("address", "a", "", "server address, host:port or wss://host:port/")
	serverName := flagSet.String("server-name", "", "name to verify in the server certificate")
	caFile := flagSet.String("ca-file", "", "PEM file with the certificates to trust")
	insecure := flagSet.Bool("insecure", false, "accept any server certificate")
	transcriptPath := flagSet.String("transcript", "", "record received chat lines to this file")
	logLevel := flagSet.String("log-level", "", "log level: debug, info, warn, error or off")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if flagSet.Changed("address") {
		cfg.Server.Address = *address
	}
	if flagSet.Changed("server-name") {
		cfg.Server.ServerName = *serverName
	}
	if flagSet.Changed("ca-file") {
		cfg.Server.CAFile = *caFile
	}
	if flagSet.Changed("insecure") {
		cfg.Server.InsecureSkipVerify = *insecure
	}
	if flagSet.Changed("transcript") {
		cfg.Transcript.Path = *transcriptPath
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, os.Stderr)
	if err != nil {
		return err
	}

	dialConfig := transport.Config{
		Address:            cfg.Server.Address,
		ServerName:         cfg.Server.ServerName,
		InsecureSkipVerify: cfg.Server.InsecureSkipVerify,
		DialTimeout:        cfg.Timeouts.Dial,
		Logger:             logger,
	}
	if cfg.Server.CAFile != "" {
		pool, err := tlsutil.LoadCertPool(cfg.Server.CAFile)
		if err != nil {
			return err
		}
		dialConfig.RootCAs = pool
	}

	var record *transcript.Recorder
	if cfg.Transcript.Path != "" {
		record, err = transcript.Create(cfg.Transcript.Path)
		if err != nil {
			return err
		}
		defer record.Close()
	}

	sh := newShell(newConsole(os.Stdin, os.Stdout), os.Stdout, record)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, dialConfig, client.Options{
		Logger:         logger,
		OnChatMessage:  sh.showChat,
		OnDisconnected: sh.showDisconnected,
		RequestTimeout: cfg.Timeouts.Request,
		ChunkTimeout:   cfg.Timeouts.Chunk,
		PollInterval:   cfg.Timeouts.Poll,
	})
	if err != nil {
		return err
	}
	sh.attach(c)
	sh.println(fmt.Sprintf("Connected to %s. Type help for commands.", cfg.Server.Address))

	// Interrupts end the session the same way quit does.
	go func() {
		<-ctx.Done()
		c.Quit()
		os.Stdin.Close()
	}()

	loopErr := sh.loop()
	if err := c.Quit(); err != nil {
		logger.Debug("quit failed", "error", err)
	}
	return loopErr
}

// console reads lines from a reader and passwords from the terminal.
type console struct {
	reader *bufio.Reader
	out    io.Writer
	fd     int
}

func newConsole(in *os.File, out io.Writer) *console {
	return &console{reader: bufio.NewReader(in), out: out, fd: int(in.Fd())}
}

func (c *console) Line(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	line, err := c.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *console) Password(prompt string) (string, error) {
	if !term.IsTerminal(c.fd) {
		return c.Line(prompt)
	}
	fmt.Fprint(c.out, prompt)
	password, err := term.ReadPassword(c.fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}
