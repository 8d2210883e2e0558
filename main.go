package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/petervdpas/jamnet/internal/app"
	"github.com/petervdpas/jamnet/internal/config"
)

var (
	peerDir = flag.String("dir", ".", "Peer directory (config, identity key, catalog)")
	version = flag.Bool("version", false, "Show version")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("jamnet v%s\n", appVersion)
		return
	}

	absDir, err := filepath.Abs(*peerDir)
	if err != nil {
		log.Fatalf("Invalid peer directory: %v", err)
	}
	if stat, err := os.Stat(absDir); err != nil || !stat.IsDir() {
		log.Fatalf("Peer directory does not exist: %s", absDir)
	}

	cfgPath := filepath.Join(absDir, "jamnet.json")
	cfg, createdNew, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if createdNew {
		log.Printf("Created default config: %s", cfgPath)
	}

	printBanner(absDir, cfgPath, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := app.Run(ctx, app.Options{
		PeerDir: absDir,
		CfgPath: cfgPath,
		Cfg:     cfg,
	}); err != nil {
		log.Fatalf("Peer failed: %v", err)
	}
}

func printBanner(peerDir, cfgPath string, cfg config.Config) {
	fmt.Println("────────────────────────────────────────")
	fmt.Println(" jamnet peer")
	fmt.Println("────────────────────────────────────────")
	fmt.Printf("Peer Directory: %s\n", peerDir)
	fmt.Printf("Config File:    %s\n", cfgPath)
	fmt.Printf("Catalog File:   %s\n", cfg.Catalog.File)
	fmt.Printf("Topic:          %s\n", cfg.P2P.Topic)
	fmt.Println()
	fmt.Println("Type \"help\" for commands. Press Ctrl+C to stop.")
	fmt.Println()
}
