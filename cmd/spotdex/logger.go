// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"

	"github.com/kadirpekel/spotdex/pkg/config"
	"github.com/kadirpekel/spotdex/pkg/logger"
)

const (
	logLevelEnvVar  = "LOG_LEVEL"
	logFileEnvVar   = "LOG_FILE"
	logFormatEnvVar = "LOG_FORMAT"
)

// initLogger installs the default logger. Priority per setting:
// CLI flag > environment variable > config file > default.
func initLogger(cli *CLI, cfg *config.Config) (func(), error) {
	level := firstNonEmpty(cli.LogLevel, os.Getenv(logLevelEnvVar), cfg.Logging.Level, "info")
	file := firstNonEmpty(cli.LogFile, os.Getenv(logFileEnvVar), cfg.Logging.File)
	format := firstNonEmpty(cli.LogFormat, os.Getenv(logFormatEnvVar), cfg.Logging.Format, "text")

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if file != "" {
		f, closeFn, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, err
		}
		output = f
		cleanup = closeFn
	}

	logger.Init(parsed, output, format)
	return cleanup, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
