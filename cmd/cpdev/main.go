// Command cpdev is a dev CLI for camposter maintenance and debugging tasks.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/browser"

	"github.com/ibeckermayer/camposter/internal/auth"
	"github.com/ibeckermayer/camposter/internal/config"
	"github.com/ibeckermayer/camposter/internal/describer"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: cpdev open <config|scratch>")
			os.Exit(1)
		}
		runOpen(os.Args[2])
	case "describe":
		if len(os.Args) < 3 {
			fmt.Println("Usage: cpdev describe <image>")
			os.Exit(1)
		}
		runDescribe(os.Args[2])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: cpdev <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  open config       Open config file in default editor")
	fmt.Println("  open scratch      Open snapshot directory in file explorer")
	fmt.Println("  describe <image>  Print the configured model's description of a local image")
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: could not load config: %v (using defaults)", err)
		cfg = config.Default()
	}
	return cfg
}

func runOpen(target string) {
	var path string
	var err error

	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "scratch":
		path, err = filepath.Abs(loadConfig().Scratch.Dir)
	default:
		fmt.Printf("Unknown target: %s\n", target)
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Failed to get path: %v", err)
	}

	if err := browser.OpenFile(path); err != nil {
		log.Fatalf("Failed to open: %v", err)
	}
}

func runDescribe(imagePath string) {
	cfg := loadConfig()

	secrets, err := auth.NewEnvProvider(cfg.Credentials.EnvFile)
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	d, err := describer.New(cfg, secrets)
	if err != nil {
		log.Fatalf("Failed to create describer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	description, err := d.Describe(ctx, imagePath)
	if err != nil {
		log.Fatalf("Failed to describe %s: %v", imagePath, err)
	}

	fmt.Println(describer.Truncate(description, cfg.Post.CharCap))
}
