package app

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/petervdpas/jamnet/internal/catalog"
	"github.com/petervdpas/jamnet/internal/config"
	"github.com/petervdpas/jamnet/internal/p2p"
	"github.com/petervdpas/jamnet/internal/state"
	"github.com/petervdpas/jamnet/internal/storage"
	"github.com/petervdpas/jamnet/internal/util"
)

type Options struct {
	PeerDir string
	CfgPath string
	Cfg     config.Config
}

// Run wires the peer together and drives the event coordinator until ctx is
// cancelled or stdin closes. Any error here is a startup failure; once the
// loop is running, errors are reported and the peer keeps going.
func Run(ctx context.Context, opt Options) error {
	cfg := opt.Cfg

	store := catalog.NewStore(util.ResolvePath(opt.PeerDir, cfg.Catalog.File))
	if cfg.Catalog.CreateIfMissing {
		if err := store.EnsureFile(); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}

	var history *storage.DB
	if cfg.History.Enabled {
		db, err := storage.Open(util.ResolvePath(opt.PeerDir, cfg.History.Dir))
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()
		history = db
	}

	peers := state.NewPeerTable()

	keyFile := util.ResolvePath(opt.PeerDir, cfg.Identity.KeyFile)
	node, err := p2p.New(ctx, cfg.P2P, keyFile, peers, history)
	if err != nil {
		return fmt.Errorf("start p2p node: %w", err)
	}
	defer node.Close()

	log.Printf("Peer ID: %s", node.ID())
	for _, a := range node.ListenAddrs() {
		log.Printf("Listening on %s", a)
	}

	var watch <-chan string
	if cfg.Catalog.WatchFile {
		w, err := store.Watch(ctx)
		if err != nil {
			log.Printf("catalog watch disabled: %v", err)
		} else {
			watch = w
		}
	}

	node.RunReadLoop(ctx)

	coord := NewCoordinator(node.ID(), store, peers, history, node, os.Stdout)
	coord.Run(ctx, readLines(ctx), node.Inbound(), watch)
	return nil
}

// readLines pumps operator input into a channel so the coordinator can
// select over it. The channel closes on EOF.
func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
