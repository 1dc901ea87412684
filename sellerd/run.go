package sellerd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chanmarket/autoseller"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/lncfg"
	"github.com/lightningnetwork/lnd/signal"
	"golang.org/x/sync/errgroup"
)

// errShutdown is returned by the signal watcher to stop the daemon.
var errShutdown = errors.New("shutdown requested")

// LoadConfig reads the configuration from the command line, the environment
// and the config file. The command line takes precedence over the
// environment, the environment over the config file. Variables of a .env file
// in the working directory are added to the environment first. A nil config
// is returned if only help was requested.
func LoadConfig(args []string) (*Config, error) {
	// A missing .env file is fine, the environment may be set up by other
	// means.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("unable to load .env file: %w", err)
	}

	config := DefaultConfig()

	// Parse command line flags.
	parser := flags.NewParser(&config, flags.Default)
	_, err := parser.ParseArgs(args)
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Parse ini file.
	configFile := lncfg.CleanAndExpandPath(config.ConfigFile)
	if err := flags.IniParse(configFile, &config); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return nil, err
		}
	}

	// Parse command line flags again to restore flags overwritten by ini
	// parse.
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	return &config, nil
}

// Run starts the seller daemon and blocks until it's shut down again.
func Run(args []string) error {
	config, err := LoadConfig(args)
	if err != nil || config == nil {
		return err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if config.ShowVersion {
		fmt.Println(appName, "version", autoseller.Version())
		return nil
	}

	// Start listening for signal interrupts before connecting to lnd,
	// which blocks until lnd is synced. Critical log lines request a
	// shutdown through the interceptor as well.
	interceptor, err := signal.Intercept()
	if err != nil {
		return err
	}

	logCfg := logConfig(config)
	logWriter := build.NewRotatingLogWriter()
	logMgr := NewLogManager(logCfg, logWriter)
	SetupLoggers(logMgr, interceptor)

	// Special show command to list supported subsystems and exit.
	if config.DebugLevel == "show" {
		fmt.Printf("Supported subsystems: %v\n",
			logMgr.SupportedSubsystems())
		return nil
	}

	// Validate our config before we proceed.
	if err := Validate(config); err != nil {
		return err
	}

	// Initialize logging at the default logging level.
	err = logWriter.InitLogRotator(
		logCfg.File, filepath.Join(config.LogDir, defaultLogFilename),
	)
	if err != nil {
		return err
	}
	defer logWriter.Close()

	err = build.ParseAndSetDebugLevels(config.DebugLevel, logMgr)
	if err != nil {
		return err
	}

	log.Infof("Version: %v", autoseller.Version())

	group, ctx := errgroup.WithContext(context.Background())
	group.Go(func() error {
		select {
		case <-interceptor.ShutdownChannel():
			log.Infof("Received shutdown signal")
			return errShutdown

		case <-ctx.Done():
			return nil
		}
	})
	group.Go(func() error {
		return New(config).Run(ctx)
	})

	err = group.Wait()
	if errors.Is(err, errShutdown) {
		return nil
	}
	if err != nil {
		log.Errorf("Seller failed: %v", err)
	}

	return err
}
