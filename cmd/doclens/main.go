// Copyright 2025 The Doclens Authors
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

// Command doclens runs the document analysis service.
//
// Usage:
//
//	doclens serve --config config.yaml
//	doclens serve --port 9090
//	doclens validate --config config.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/doclens/doclens/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the analysis server."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (compact or text)." default:"compact"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("doclens version %s\n", version)
	return nil
}

// ValidateCmd loads the configuration and reports whether it is usable.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate command")
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	fmt.Printf("Configuration OK: %s\n", cli.Config)
	fmt.Printf("  listen:   %s\n", cfg.Server.Address())
	for route, p := range cfg.Admission.Routes {
		fmt.Printf("  route %q: %d req / %s (burst %d)\n", route, p.Limit, p.Window, p.Burst)
	}
	if cfg.Database != nil {
		fmt.Printf("  storage:  %s\n", cfg.Database.Driver)
	} else {
		fmt.Printf("  storage:  in-memory (not persisted)\n")
	}
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("doclens"),
		kong.Description("doclens - document analysis with admission control"),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
