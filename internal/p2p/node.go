package p2p

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/petervdpas/jamnet/internal/config"
	"github.com/petervdpas/jamnet/internal/proto"
	"github.com/petervdpas/jamnet/internal/state"
	"github.com/petervdpas/jamnet/internal/storage"
	"github.com/petervdpas/jamnet/internal/util"

	logging "github.com/ipfs/go-log/v2"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

func init() {
	// Silence noisy libp2p subsystems — dial failures and backoff errors
	// go to stderr by default and pollute terminal output.
	logging.SetLogLevel("swarm2", "error")
	logging.SetLogLevel("autonat", "warn")
}

// Node owns the libp2p host and the one broadcast topic every jamnet peer
// subscribes to. Inbound payloads are handed off raw; classification is the
// coordinator's job.
type Node struct {
	Host  host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	peers   *state.PeerTable
	history *storage.DB // nil when sighting history is disabled

	inbound chan proto.Inbound
}

type mdnsNotifee struct {
	n *Node
}

func (mn *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), util.DefaultConnectTimeout)
	defer cancel()
	_ = mn.n.Host.Connect(ctx, pi)

	mn.n.peers.Add(pi.ID.String())
	if mn.n.history != nil {
		if err := mn.n.history.RecordSighting(pi.ID.String()); err != nil {
			log.Printf("history: record sighting for %s: %v", pi.ID, err)
		}
	}
}

// loadOrCreateKey loads a persistent identity key from disk,
// or generates a new Ed25519 key and saves it on first run.
func loadOrCreateKey(keyFile string) (crypto.PrivKey, bool, error) {
	data, err := os.ReadFile(keyFile)
	if err == nil {
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err == nil {
			return priv, false, nil
		}
		log.Printf("WARNING: corrupt identity key at %s: %v (generating new key)", keyFile, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, false, err
	}

	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, false, fmt.Errorf("marshal identity key: %w", err)
	}

	if dir := filepath.Dir(keyFile); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, false, fmt.Errorf("create key directory: %w", err)
		}
	}

	if err := os.WriteFile(keyFile, raw, 0o600); err != nil {
		return nil, false, fmt.Errorf("save identity key: %w", err)
	}

	return priv, true, nil
}

func New(ctx context.Context, cfg config.P2P, keyFile string, peers *state.PeerTable, history *storage.DB) (*Node, error) {
	priv, isNew, err := loadOrCreateKey(keyFile)
	if err != nil {
		return nil, err
	}
	if isNew {
		log.Printf("Generated new identity key: %s", keyFile)
	} else {
		log.Printf("Loaded identity key: %s", keyFile)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.ListenPort)),
	)
	if err != nil {
		return nil, err
	}

	n := &Node{
		Host:    h,
		peers:   peers,
		history: history,
		inbound: make(chan proto.Inbound, 32),
	}

	// Departure rule: drop a peer from the view only when no live connection
	// remains — a single closed connection does not mean the peer is gone.
	h.Network().Notify(&network.NotifyBundle{
		DisconnectedF: func(nw network.Network, c network.Conn) {
			pid := c.RemotePeer()
			if nw.Connectedness(pid) != network.Connected {
				peers.Remove(pid.String())
			}
		},
	})

	// LAN discovery via mDNS.
	md := mdns.NewMdnsService(h, cfg.MdnsTag, &mdnsNotifee{n: n})
	if err := md.Start(); err != nil {
		_ = h.Close()
		return nil, err
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	topicName := cfg.Topic
	if topicName == "" {
		topicName = proto.DefaultTopic
	}
	topic, err := ps.Join(topicName)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	sub, err := topic.Subscribe()
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	n.ps = ps
	n.topic = topic
	n.sub = sub
	return n, nil
}

func (n *Node) Close() error {
	return n.Host.Close()
}

func (n *Node) ID() string {
	return n.Host.ID().String()
}

// Publish sends a raw payload to every subscriber of the catalog topic.
// The event coordinator is the only caller.
func (n *Node) Publish(ctx context.Context, data []byte) error {
	return n.topic.Publish(ctx, data)
}

// Inbound delivers raw broadcast payloads from other peers.
func (n *Node) Inbound() <-chan proto.Inbound {
	return n.inbound
}

// RunReadLoop pumps the topic subscription into the inbound channel until
// ctx is cancelled. Own messages are skipped; the topic echoes every publish
// back to its sender.
func (n *Node) RunReadLoop(ctx context.Context) {
	go func() {
		defer close(n.inbound)
		for {
			m, err := n.sub.Next(ctx)
			if err != nil {
				return
			}
			if m.ReceivedFrom == n.Host.ID() {
				continue
			}
			msg := proto.Inbound{From: m.ReceivedFrom.String(), Data: m.Data}
			select {
			case n.inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ListenAddrs returns the host's listen addresses filtered to exclude
// loopback and link-local, for the startup banner.
func (n *Node) ListenAddrs() []string {
	var out []string
	for _, a := range n.Host.Addrs() {
		if !routableAddr(a) {
			continue
		}
		out = append(out, a.String())
	}
	return out
}

func routableAddr(a ma.Multiaddr) bool {
	ip, err := manet.ToIP(a)
	if err != nil {
		return false
	}
	return !ip.IsLoopback() && !ip.IsLinkLocalUnicast() && !ip.IsLinkLocalMulticast()
}
