package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/petervdpas/jamnet/internal/catalog"
	"github.com/petervdpas/jamnet/internal/proto"
	"github.com/petervdpas/jamnet/internal/state"
)

type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.payloads = append(f.payloads, cp)
	return nil
}

func (f *fakePublisher) published() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakePublisher, *bytes.Buffer) {
	t.Helper()

	store := catalog.NewStore(filepath.Join(t.TempDir(), "songs.json"))
	if err := store.EnsureFile(); err != nil {
		t.Fatal(err)
	}

	pub := &fakePublisher{}
	out := &bytes.Buffer{}
	c := NewCoordinator("self-peer", store, state.NewPeerTable(), nil, pub, out)
	return c, pub, out
}

func lastEnvelope(t *testing.T, pub *fakePublisher) proto.Envelope {
	t.Helper()
	payloads := pub.published()
	if len(payloads) == 0 {
		t.Fatal("nothing published")
	}
	env, err := proto.Classify(payloads[len(payloads)-1])
	if err != nil {
		t.Fatalf("published payload unclassifiable: %v", err)
	}
	return env
}

func TestListSongsAllPublishesRequest(t *testing.T) {
	c, pub, _ := newTestCoordinator(t)

	c.handleLine(context.Background(), "list songs all")

	env := lastEnvelope(t, pub)
	if env.Kind != proto.KindRequest {
		t.Fatalf("expected request, got %q", env.Kind)
	}
	if env.Request.Scope != proto.ScopeAll {
		t.Fatalf("expected scope all, got %q", env.Request.Scope)
	}
	if env.From != "self-peer" {
		t.Fatalf("unexpected sender: %q", env.From)
	}
}

func TestListSongsTargetedPublishesRequest(t *testing.T) {
	c, pub, _ := newTestCoordinator(t)

	c.handleLine(context.Background(), "list songs peer-xyz")

	env := lastEnvelope(t, pub)
	if env.Kind != proto.KindRequest || env.Request.Scope != proto.ScopeOne {
		t.Fatalf("expected targeted request, got %+v", env)
	}
	if env.Request.Target != "peer-xyz" {
		t.Fatalf("unexpected target: %q", env.Request.Target)
	}
}

func TestTargetedRequestForOtherPeerIgnored(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	env := proto.NewRequest("peer-a", proto.ScopeOne, "somebody-else")
	b, _ := env.Marshal()
	c.handleInbound(proto.Inbound{From: "peer-a", Data: b})

	select {
	case resp := <-c.responses:
		t.Fatalf("unexpected response produced: %+v", resp)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAllRequestProducesFilteredResponse(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	if _, err := c.store.Create("A", "B", "L", "true"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.store.Create("C", "D", "M", "false"); err != nil {
		t.Fatal(err)
	}
	if err := c.store.SetVisibility(1, true); err != nil {
		t.Fatal(err)
	}

	env := proto.NewRequest("peer-a", proto.ScopeAll, "")
	b, _ := env.Marshal()
	c.handleInbound(proto.Inbound{From: "peer-a", Data: b})

	select {
	case resp := <-c.responses:
		if resp.Receiver != "peer-a" {
			t.Fatalf("expected receiver peer-a, got %q", resp.Receiver)
		}
		if len(resp.Songs) != 1 || resp.Songs[0].ID != 1 || resp.Songs[0].Title != "C" {
			t.Fatalf("unexpected response songs: %+v", resp.Songs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response produced")
	}
}

func TestResponseForSelfIsPrinted(t *testing.T) {
	c, _, out := newTestCoordinator(t)

	env := proto.NewResponse("peer-b", proto.CatalogResponse{
		Scope:    proto.ScopeAll,
		Songs:    []catalog.Song{{ID: 3, Title: "Song", Artist: "Artist", Explicit: "yes", Public: true}},
		Receiver: "self-peer",
	})
	b, _ := env.Marshal()
	c.handleInbound(proto.Inbound{From: "peer-b", Data: b})

	got := out.String()
	if !strings.Contains(got, "Song [explicit]") {
		t.Fatalf("expected explicit-decorated title in output, got %q", got)
	}
	if !strings.Contains(got, "peer-b") {
		t.Fatalf("expected sender in output, got %q", got)
	}
}

func TestResponseForOtherPeerIsDiscarded(t *testing.T) {
	c, _, out := newTestCoordinator(t)

	env := proto.NewResponse("peer-b", proto.CatalogResponse{
		Scope:    proto.ScopeAll,
		Songs:    []catalog.Song{{ID: 3, Title: "Song"}},
		Receiver: "somebody-else",
	})
	b, _ := env.Marshal()
	c.handleInbound(proto.Inbound{From: "peer-b", Data: b})

	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}

func TestInboundChatIsPrinted(t *testing.T) {
	c, _, out := newTestCoordinator(t)

	env := proto.NewChat("peer-b", "hello there")
	b, _ := env.Marshal()
	c.handleInbound(proto.Inbound{From: "peer-b", Data: b})

	if !strings.Contains(out.String(), "hello there") {
		t.Fatalf("chat text missing from output: %q", out.String())
	}
}

func TestChatCommandPublishes(t *testing.T) {
	c, pub, _ := newTestCoordinator(t)

	c.handleLine(context.Background(), "chat good evening")

	env := lastEnvelope(t, pub)
	if env.Kind != proto.KindChat || env.Chat.Text != "good evening" {
		t.Fatalf("unexpected chat envelope: %+v", env)
	}
}

func TestGarbageInboundIsDropped(t *testing.T) {
	c, _, out := newTestCoordinator(t)

	c.handleInbound(proto.Inbound{From: "peer-b", Data: []byte("%%% not json %%%")})

	if out.Len() != 0 {
		t.Fatalf("expected silence on garbage, got %q", out.String())
	}
}

func TestCreateSongPromptFlow(t *testing.T) {
	c, _, out := newTestCoordinator(t)
	ctx := context.Background()

	for _, line := range []string{"create song", "My Title", "My Artist", "la la la", "yes"} {
		c.handleLine(ctx, line)
	}

	if !strings.Contains(out.String(), "Created song 0") {
		t.Fatalf("expected creation confirmation, got %q", out.String())
	}

	songs, err := c.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(songs) != 1 {
		t.Fatalf("expected 1 song, got %d", len(songs))
	}
	if songs[0].Title != "My Title" || songs[0].Public {
		t.Fatalf("unexpected song: %+v", songs[0])
	}
}

func TestCreateSongRejectsMissingFields(t *testing.T) {
	c, _, out := newTestCoordinator(t)
	ctx := context.Background()

	for _, line := range []string{"create song", "My Title", "", "la la la", ""} {
		c.handleLine(ctx, line)
	}

	if !strings.Contains(out.String(), "too few fields") {
		t.Fatalf("expected rejection message, got %q", out.String())
	}
	songs, _ := c.store.Load()
	if len(songs) != 0 {
		t.Fatalf("rejected input was persisted: %+v", songs)
	}
}

func TestDeleteSongBadID(t *testing.T) {
	c, _, out := newTestCoordinator(t)

	c.handleLine(context.Background(), "delete song banana")
	if !strings.Contains(out.String(), "invalid song id") {
		t.Fatalf("expected id error, got %q", out.String())
	}

	out.Reset()
	c.handleLine(context.Background(), "delete song 42")
	if !strings.Contains(out.String(), "no song with id 42") {
		t.Fatalf("expected not-found report, got %q", out.String())
	}
}

func TestPublishAndPrivateCommands(t *testing.T) {
	c, _, out := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := c.store.Create("T", "A", "L", ""); err != nil {
		t.Fatal(err)
	}

	c.handleLine(ctx, "publish song 0")
	if !strings.Contains(out.String(), "Published song 0") {
		t.Fatalf("expected publish confirmation, got %q", out.String())
	}
	songs, _ := c.store.Load()
	if !songs[0].Public {
		t.Fatal("song not public after publish command")
	}

	out.Reset()
	c.handleLine(ctx, "private song 0")
	songs, _ = c.store.Load()
	if songs[0].Public {
		t.Fatal("song still public after private command")
	}
}

func TestUnknownCommandReported(t *testing.T) {
	c, pub, out := newTestCoordinator(t)

	c.handleLine(context.Background(), "dance party")

	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("expected unknown-command report, got %q", out.String())
	}
	if len(pub.published()) != 0 {
		t.Fatal("unknown command must not publish")
	}
}

func TestListPeersPrintsView(t *testing.T) {
	c, _, out := newTestCoordinator(t)
	c.peers.Add("peer-b")
	c.peers.Add("peer-a")

	c.handleLine(context.Background(), "list peers")

	got := out.String()
	if !strings.Contains(got, "peer-a") || !strings.Contains(got, "peer-b") {
		t.Fatalf("peers missing from output: %q", got)
	}
	if strings.Index(got, "peer-a") > strings.Index(got, "peer-b") {
		t.Fatalf("expected sorted peer output: %q", got)
	}
}

func TestRunLoopPublishesProducedResponse(t *testing.T) {
	c, pub, _ := newTestCoordinator(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := make(chan string)
	inbound := make(chan proto.Inbound)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, lines, inbound, nil)
	}()

	env := proto.NewRequest("peer-a", proto.ScopeAll, "")
	b, _ := env.Marshal()
	inbound <- proto.Inbound{From: "peer-a", Data: b}

	deadline := time.After(2 * time.Second)
	for {
		payloads := pub.published()
		if len(payloads) > 0 {
			got, err := proto.Classify(payloads[0])
			if err != nil {
				t.Fatal(err)
			}
			if got.Kind != proto.KindResponse || got.Response.Receiver != "peer-a" {
				t.Fatalf("unexpected published envelope: %+v", got)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("response never published")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop on cancel")
	}
}
