package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/petervdpas/jamnet/internal/catalog"
	"github.com/petervdpas/jamnet/internal/proto"
)

// songDraft holds the in-progress fields of an interactive "create song".
type songDraft struct {
	fields [4]string
	step   int
}

var draftPrompts = [4]string{"Title", "Artist", "Lyrics", "Explicit"}

func (c *Coordinator) handleLine(ctx context.Context, line string) {
	line = strings.TrimSpace(line)

	if c.draft != nil {
		c.feedDraft(line)
		return
	}
	if line == "" {
		return
	}

	switch {
	case line == "list peers":
		c.cmdListPeers()

	case line == "list songs":
		c.cmdListLocalSongs()

	case strings.HasPrefix(line, "list songs "):
		c.cmdRequestSongs(ctx, strings.TrimPrefix(line, "list songs "))

	case line == "create song":
		c.draft = &songDraft{}
		c.printf("%s: ", draftPrompts[0])

	case strings.HasPrefix(line, "delete song "):
		c.cmdDeleteSong(strings.TrimPrefix(line, "delete song "))

	case strings.HasPrefix(line, "publish song "):
		c.cmdSetVisibility(strings.TrimPrefix(line, "publish song "), true)

	case strings.HasPrefix(line, "private song "):
		c.cmdSetVisibility(strings.TrimPrefix(line, "private song "), false)

	case strings.HasPrefix(line, "chat "):
		c.cmdChat(ctx, strings.TrimPrefix(line, "chat "))

	case line == "peer log":
		c.cmdPeerLog()

	case line == "help":
		c.printHelp()

	default:
		c.printf("unknown command: %q (try \"help\")\n", line)
	}
}

func (c *Coordinator) cmdListPeers() {
	ids := c.peers.IDs()
	c.printf("Discovered peers (%d):\n", len(ids))
	for _, id := range ids {
		c.printf("  %s\n", id)
	}
}

func (c *Coordinator) cmdListLocalSongs() {
	songs, err := c.store.Load()
	if err != nil {
		c.printf("error loading local songs: %v\n", err)
		return
	}
	c.printf("Local songs (%d):\n", len(songs))
	c.printSongs(songs)
}

func (c *Coordinator) cmdRequestSongs(ctx context.Context, arg string) {
	arg = strings.TrimSpace(arg)

	var env proto.Envelope
	if arg == "all" {
		env = proto.NewRequest(c.selfID, proto.ScopeAll, "")
	} else {
		env = proto.NewRequest(c.selfID, proto.ScopeOne, arg)
	}

	b, err := env.Marshal()
	if err != nil {
		log.Printf("marshal request: %v", err)
		return
	}
	if err := c.pub.Publish(ctx, b); err != nil {
		log.Printf("publish request: %v", err)
	}
}

func (c *Coordinator) feedDraft(line string) {
	d := c.draft
	d.fields[d.step] = strings.TrimSpace(line)
	d.step++

	if d.step < len(d.fields) {
		c.printf("%s: ", draftPrompts[d.step])
		return
	}

	c.draft = nil
	if d.fields[0] == "" || d.fields[1] == "" || d.fields[2] == "" {
		c.printf("too few fields - title, artist and lyrics are required\n")
		return
	}

	song, err := c.store.Create(d.fields[0], d.fields[1], d.fields[2], d.fields[3])
	if err != nil {
		c.printf("error creating song: %v\n", err)
		return
	}
	c.printf("Created song %d: %s - %s\n", song.ID, song.Title, song.Artist)
}

func (c *Coordinator) cmdDeleteSong(arg string) {
	id, ok := c.parseSongID(arg)
	if !ok {
		return
	}
	if err := c.store.Delete(id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.printf("no song with id %d\n", id)
			return
		}
		c.printf("error deleting song %d: %v\n", id, err)
		return
	}
	c.printf("Deleted song %d\n", id)
}

func (c *Coordinator) cmdSetVisibility(arg string, public bool) {
	id, ok := c.parseSongID(arg)
	if !ok {
		return
	}
	if err := c.store.SetVisibility(id, public); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.printf("no song with id %d\n", id)
			return
		}
		c.printf("error updating song %d: %v\n", id, err)
		return
	}
	if public {
		c.printf("Published song %d\n", id)
	} else {
		c.printf("Made song %d private\n", id)
	}
}

func (c *Coordinator) parseSongID(arg string) (int, bool) {
	arg = strings.TrimSpace(arg)
	id, err := strconv.Atoi(arg)
	if err != nil || id < 0 {
		c.printf("invalid song id: %q\n", arg)
		return 0, false
	}
	return id, true
}

func (c *Coordinator) cmdChat(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		c.printf("empty chat message\n")
		return
	}
	env := proto.NewChat(c.selfID, text)
	b, err := env.Marshal()
	if err != nil {
		log.Printf("marshal chat: %v", err)
		return
	}
	if err := c.pub.Publish(ctx, b); err != nil {
		log.Printf("publish chat: %v", err)
	}
}

func (c *Coordinator) cmdPeerLog() {
	if c.history == nil {
		c.printf("peer history is disabled\n")
		return
	}
	sightings, err := c.history.Sightings()
	if err != nil {
		c.printf("error reading peer log: %v\n", err)
		return
	}
	c.printf("Peer sightings (%d):\n", len(sightings))
	for _, s := range sightings {
		c.printf("  %s  first %s  last %s  (%dx)\n",
			s.PeerID,
			s.FirstSeen.Format("2006-01-02 15:04:05"),
			s.LastSeen.Format("2006-01-02 15:04:05"),
			s.Count)
	}
}

func (c *Coordinator) printSongs(songs []catalog.Song) {
	for _, s := range songs {
		title := s.Title
		if s.ExplicitFlag() {
			title += " [explicit]"
		}
		c.printf("  %3d  %-30s %-20s %s\n", s.ID, title, s.Artist, s.Lyrics)
	}
}

func (c *Coordinator) printHelp() {
	c.printf("Commands:\n")
	c.printf("  list peers            show discovered peers\n")
	c.printf("  list songs            show the local catalog\n")
	c.printf("  list songs all        ask all peers for their public songs\n")
	c.printf("  list songs <peer-id>  ask one peer for its public songs\n")
	c.printf("  create song           add a song (interactive)\n")
	c.printf("  delete song <id>      remove a song\n")
	c.printf("  publish song <id>     make a song public\n")
	c.printf("  private song <id>     make a song private\n")
	c.printf("  chat <message>        send free text to all peers\n")
	c.printf("  peer log              show the peer sighting history\n")
}

func (c *Coordinator) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
