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

// nvmemi is a bring-up tool: it issues a single NVMe-MI command against
// one endpoint and prints the result as JSON.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/pflag"

	"github.com/edgemetal/nvmemond/pkg/lifecycle"
	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/mctp"
	"github.com/edgemetal/nvmemond/pkg/mi"
	"github.com/edgemetal/nvmemond/pkg/taskq"
)

var errUsage = fmt.Errorf("usage: nvmemi --bus N --addr 0xNN {health|scan|identify}")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	bus := pflag.Int("bus", 0, "I2C bus the drive sits on")
	addr := pflag.Int("addr", 0x6a, "7-bit I2C address of the drive")
	controller := pflag.Uint16("controller", 0, "Controller id for identify")
	cns := pflag.Uint8("cns", mi.CNSSecondaryControllerList, "Identify CNS value")
	pflag.Parse()

	if pflag.NArg() != 1 {
		return errUsage
	}

	ctx := context.Background()

	cliLogger, err := lifecycle.CreateComponentLogger(ctx, "nvmemi", &logger.Config{Level: "warn", Output: "stderr"})
	if err != nil {
		return err
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	owner := taskq.New()
	defer owner.Stop()

	sess, err := mi.NewSession(ctx, mi.DefaultRoot(cliLogger), owner, mctp.NewDBusResolver(conn), *bus, *addr)
	if err != nil {
		return err
	}
	defer sess.Close()

	result := make(chan error, 1)

	switch cmd := pflag.Arg(0); cmd {
	case "health":
		sess.SubsystemHealthPoll(func(err error, status *mi.SubsystemHealthStatus) {
			result <- report(err, status)
		})
	case "scan":
		sess.ScanControllers(func(err error, list []mi.Controller) {
			ids := make([]uint16, len(list))
			for i, c := range list {
				ids[i] = c.ID()
			}

			result <- report(err, map[string]interface{}{"controllers": ids})
		})
	case "identify":
		req := mi.IdentifyRequest{CNS: *cns}

		sess.AdminIdentify(mi.ControllerAt(*controller), req, func(err error, data []byte) {
			result <- report(err, map[string]interface{}{"data": hex.EncodeToString(data)})
		})
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	return <-result
}

func report(err error, payload interface{}) error {
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(payload)
}
