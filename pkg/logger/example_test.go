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

package logger_test

import (
	"context"

	"github.com/edgemetal/nvmemond/pkg/logger"
)

func ExampleInit() {
	config := &logger.Config{
		Level:      "debug",
		Debug:      true,
		Output:     "stdout",
		TimeFormat: "",
	}

	err := logger.Init(context.Background(), config)
	if err != nil {
		panic(err)
	}

	logger.Info().Str("component", "example").Msg("Logger initialized successfully")
}

func ExampleWithComponent() {
	componentLogger := logger.WithComponent("discovery")

	componentLogger.Info().
		Int("endpoints", 4).
		Msg("Enumeration pass complete")
}

func ExampleInit_withOTel() {
	config := logger.DefaultConfig()
	config.OTel = logger.OTelConfig{
		Enabled:     true,
		Endpoint:    "collector.fleet.internal:4317",
		ServiceName: "nvmemond",
		Insecure:    true,
	}

	if err := logger.Init(context.Background(), config); err != nil {
		panic(err)
	}

	defer func() {
		_ = logger.Shutdown()
	}()

	logger.Info().Str("component", "monitor").Msg("Logs mirrored to the collector")
}
