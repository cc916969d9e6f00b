package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/shuntia/lunaris/internal"
	"github.com/shuntia/lunaris/internal/config"
	"github.com/shuntia/lunaris/pkg/logger"
)

const Version = "0.1.0"

var (
	log = logger.Get("Bootstrap")

	logLevelFlag = flag.String("log-level", "info", "Define logging level from one of [verbose, debug, info, important, warning, error]")
	configFlag   = flag.String("config", "", "Path to a YAML config file; falls back to environment variables when unset")
	helpFlag     = flag.Bool("help", false, "Whether to display help information")
)

func main() {
	flag.Parse()

	if *helpFlag {
		flag.Usage()
		return
	}

	level, err := parseLogLevelFromString(*logLevelFlag)
	if err != nil {
		fmt.Println(err.Error())
		flag.Usage()
		return
	}
	logger.SetMinLoggingLevel(level)

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		return
	}

	log.Emit(logger.INFO, "--- Starting Lunaris (version %s) ---\n", Version)

	k := internal.New(*cfg)
	if err := k.Run(context.Background()); err != nil {
		log.Emit(logger.FATAL, "Lunaris exited with error: %v\n", err)
		return
	}

	log.Emit(logger.STOP, "Lunaris shutdown complete\n")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func parseLogLevelFromString(l string) (logger.LogLevel, error) {
	switch strings.ToLower(l) {
	case "verbose":
		return logger.VERBOSE.Level(), nil
	case "debug":
		return logger.DEBUG.Level(), nil
	case "info":
		return logger.INFO.Level(), nil
	case "important":
		return logger.SUCCESS.Level(), nil
	case "warning":
		return logger.WARNING.Level(), nil
	case "error":
		return logger.ERROR.Level(), nil
	default:
		return logger.INFO.Level(), fmt.Errorf("logging level %s is not recognized", l)
	}
}
