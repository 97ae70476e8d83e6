package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// SetupLogging configures log output to both stdout and a file in cfg.LogDir.
// Caller should close the returned io.Closer on shutdown.
func SetupLogging(cfg Config, filename string) (io.Closer, error) {
	f, err := openLogFile(cfg, filename)
	if err != nil {
		return nil, err
	}

	mw := io.MultiWriter(os.Stdout, f)
	log.SetOutput(mw)
	gin.DefaultWriter = mw
	gin.DefaultErrorWriter = mw

	return f, nil
}

// SetupFileLogging sends log output to the log file only.
// The terminal client uses it so stdout stays reserved for command output.
func SetupFileLogging(cfg Config, filename string) (io.Closer, error) {
	f, err := openLogFile(cfg, filename)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	return f, nil
}

func openLogFile(cfg Config, filename string) (*os.File, error) {
	dir := cfg.LogDir
	if dir == "" {
		dir = defaultLogDir()
	}
	if filename == "" {
		filename = "app.log"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
