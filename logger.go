package main

import (
	"github.com/fansqz/remote-debugger/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"io"
	"os"
)

var logFile *os.File

// SetupLogger 日志写入文件，文件无法打开时输出到stderr
func SetupLogger(cfg config.LogConfig) {
	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	}
	var output io.Writer = os.Stderr
	var openErr error
	if cfg.Path != "" {
		logFile, openErr = os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if openErr == nil {
			output = logFile
		}
	}
	// 只有输出到终端时才使用颜色
	if logFile == nil && term.IsTerminal(int(os.Stderr.Fd())) {
		formatter.ForceColors = true
	} else {
		formatter.DisableColors = true
	}
	logrus.SetFormatter(formatter)
	logrus.SetOutput(output)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("[Logger] unknown log level %q, use info", cfg.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if openErr != nil {
		logrus.Warnf("[Logger] open log file %s fail, err = %v", cfg.Path, openErr)
	}
}

func CloseLogger() {
	if logFile != nil {
		logrus.SetOutput(os.Stderr)
		_ = logFile.Close()
		logFile = nil
	}
}
