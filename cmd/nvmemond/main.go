/*
 * Copyright 2026 EdgeMetal Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/pflag"

	"github.com/edgemetal/nvmemond/pkg/config"
	"github.com/edgemetal/nvmemond/pkg/lifecycle"
	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/monitor"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := pflag.String("config", "/etc/nvmemond/nvmemond.json", "Path to daemon config file")
	logLevel := pflag.String("log-level", "", "Override configured log level")
	pflag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg monitor.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	if *logLevel != "" {
		logConfig.Level = *logLevel
	}

	monitorLogger, err := lifecycle.CreateComponentLogger(ctx, "monitor", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		_ = lifecycle.ShutdownLogger()
	}()

	svc := monitor.New(&cfg, monitorLogger)

	return lifecycle.Run(ctx, svc, monitorLogger)
}
