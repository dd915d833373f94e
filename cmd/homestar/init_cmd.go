package main

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/homestar/pkg/config"
)

// runInitCmd implements `homestar init`, restored from the original
// runtime's `cli/init.rs`: write a default config document either to a
// path argument or, with none given, to stdout.
func runInitCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Defaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: serializing default config: %v\n", err)
		return 2
	}

	if len(args) == 0 {
		_, _ = stdout.Write(data)
		return 0
	}

	path := args[0]
	if _, err := os.Stat(path); err == nil {
		_, _ = fmt.Fprintf(stderr, "Error: %s already exists, refusing to overwrite\n", path)
		return 2
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: writing %s: %v\n", path, err)
		return 2
	}

	_, _ = fmt.Fprintf(stdout, "Wrote default configuration to %s\n", path)
	return 0
}
