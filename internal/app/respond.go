package app

import (
	"log"

	"github.com/petervdpas/jamnet/internal/proto"
)

// respondWithPublicSongs builds a catalog response for the requesting peer
// off the coordinator loop. Each accepted request gets its own goroutine; the
// completed response comes back through the delivery queue so the coordinator
// stays the sole publisher. A failed catalog load abandons the production —
// the requester gets no reply and no error.
func (c *Coordinator) respondWithPublicSongs(requester string) {
	go func() {
		songs, err := c.store.PublicSnapshot()
		if err != nil {
			log.Printf("error fetching local songs to answer request: %v", err)
			return
		}
		c.responses <- proto.CatalogResponse{
			Scope:    proto.ScopeAll,
			Songs:    songs,
			Receiver: requester,
		}
	}()
}
