// Command apstatchaind starts an APStat Chain engine and its HTTP facade.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/apstatchain/apstatchain/config"
	"github.com/apstatchain/apstatchain/curriculum"
	"github.com/apstatchain/apstatchain/engine"
	"github.com/apstatchain/apstatchain/httpapi"
)

func main() {
	app := &cli.App{
		Name:  "apstatchaind",
		Usage: "run an APStat Chain consensus engine node",
		Commands: []*cli.Command{
			runCommand(),
			genConfigCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "load config, start the engine and HTTP facade, and block until shutdown",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.json", Usage: "path to config file"},
			&cli.StringFlag{Name: "log-file", Value: "", Usage: "rotate logs to this path instead of stderr"},
		},
		Action: func(c *cli.Context) error {
			return runNode(c.String("config"), c.String("log-file"))
		},
	}
}

func genConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "genconfig",
		Usage: "write a default config file and exit",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Value: "config.json", Usage: "output path"},
		},
		Action: func(c *cli.Context) error {
			cfg := config.DefaultConfig()
			if err := config.Save(cfg, c.String("out")); err != nil {
				return err
			}
			fmt.Printf("Wrote default config to %s\n", c.String("out"))
			return nil
		},
	}
}

func runNode(cfgPath, logFile string) error {
	if logFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	catalog, err := curriculum.Load(cfg.CurriculumPath)
	if err != nil {
		log.Printf("[apstatchaind] curriculum unavailable, continuing with empty catalog: %v", err)
	}
	log.Printf("[apstatchaind] curriculum loaded: %d questions", catalog.Len())

	eng := engine.New(engine.Config{
		Catalog:    catalog,
		RNGSeed:    cfg.RNGSeed,
		CleanupAge: cfg.CleanupAge,
	})

	facade := httpapi.NewServer(cfg.ListenAddr, eng, cfg.AuthToken)
	if err := facade.ListenAndServe(); err != nil {
		return fmt.Errorf("http facade: %w", err)
	}
	log.Printf("[apstatchaind] HTTP facade listening on %s", cfg.ListenAddr)
	if cfg.AuthToken != "" {
		log.Println("[apstatchaind] Bearer token authentication enabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[apstatchaind] shutting down...")

	if err := facade.Shutdown(); err != nil {
		log.Printf("[apstatchaind] facade shutdown: %v", err)
	}
	log.Println("[apstatchaind] shutdown complete.")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[apstatchaind] config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
