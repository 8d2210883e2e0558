package app

import (
	"context"
	"io"
	"log"

	"github.com/petervdpas/jamnet/internal/catalog"
	"github.com/petervdpas/jamnet/internal/proto"
	"github.com/petervdpas/jamnet/internal/state"
	"github.com/petervdpas/jamnet/internal/storage"
)

// Publisher sends a payload to every subscriber of the broadcast topic.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}

// Coordinator is the process's single decision point. It serializes operator
// commands, inbound broadcast traffic, and completed responses through one
// loop, and it is the only component that publishes outbound traffic.
type Coordinator struct {
	selfID  string
	store   *catalog.Store
	peers   *state.PeerTable
	history *storage.DB // nil when sighting history is disabled
	pub     Publisher
	out     io.Writer

	// Completed responses from producer goroutines, consumed solely here.
	responses chan proto.CatalogResponse

	// Non-nil while "create song" is collecting fields; operator input
	// feeds the draft instead of command dispatch.
	draft *songDraft
}

func NewCoordinator(selfID string, store *catalog.Store, peers *state.PeerTable, history *storage.DB, pub Publisher, out io.Writer) *Coordinator {
	return &Coordinator{
		selfID:    selfID,
		store:     store,
		peers:     peers,
		history:   history,
		pub:       pub,
		out:       out,
		responses: make(chan proto.CatalogResponse, 64),
	}
}

// Run waits on whichever event source becomes ready first, handles exactly
// one occurrence to completion, then waits again. It returns when ctx is
// cancelled or operator input ends.
func (c *Coordinator) Run(ctx context.Context, lines <-chan string, inbound <-chan proto.Inbound, watch <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			c.handleLine(ctx, line)

		case resp := <-c.responses:
			c.publishResponse(ctx, resp)

		case in, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			c.handleInbound(in)

		case ev, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
			c.printf("catalog file changed on disk (%s)\n", ev)
		}
	}
}

// publishResponse re-publishes a completed response verbatim; the receiver
// check on every subscriber finds its intended audience.
func (c *Coordinator) publishResponse(ctx context.Context, resp proto.CatalogResponse) {
	env := proto.NewResponse(c.selfID, resp)
	b, err := env.Marshal()
	if err != nil {
		log.Printf("marshal response: %v", err)
		return
	}
	if err := c.pub.Publish(ctx, b); err != nil {
		log.Printf("publish response: %v", err)
	}
}

func (c *Coordinator) handleInbound(in proto.Inbound) {
	env, err := proto.Classify(in.Data)
	if err != nil {
		// Non-conforming traffic on a shared topic is expected; drop it.
		return
	}

	switch env.Kind {
	case proto.KindResponse:
		if !env.AddressedToSelf(c.selfID) {
			return
		}
		c.printf("Catalog from %s:\n", in.From)
		c.printSongs(env.Response.Songs)

	case proto.KindRequest:
		if !env.RequestsSelf(c.selfID) {
			return
		}
		requester := env.From
		if requester == "" {
			// Untagged legacy payloads carry no sender; fall back to the
			// transport-level origin.
			requester = in.From
		}
		c.respondWithPublicSongs(requester)

	case proto.KindChat:
		c.printf("[chat] %s: %s\n", in.From, env.Chat.Text)
	}
}
