//go:build ignore

package main

import (
	"fmt"
	"os"

	"github.com/ormasoftchile/sitrep/pkg/config"
)

func main() {
	data, err := config.GenerateSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("schemas/config-v1.json", data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/config-v1.json")
}
