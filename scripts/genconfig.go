// Emits the default experiment configuration as YAML with every key
// spelled out, as a starting point for custom runs.
// Run with: go run ./scripts/genconfig.go > config.yaml
package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/x0rium/robust-semantic-agent/internal/config"
)

func main() {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("# Default configuration. Omitted keys keep these values.")
	if _, err := os.Stdout.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "write config: %v\n", err)
		os.Exit(1)
	}
}
