package storage

import (
	"testing"
)

func TestRecordSighting(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.RecordSighting("peerA"); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordSighting("peerB"); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordSighting("peerA"); err != nil {
		t.Fatal(err)
	}

	sightings, err := db.Sightings()
	if err != nil {
		t.Fatal(err)
	}
	if len(sightings) != 2 {
		t.Fatalf("expected 2 sightings, got %d", len(sightings))
	}

	byID := map[string]Sighting{}
	for _, s := range sightings {
		byID[s.PeerID] = s
	}

	a := byID["peerA"]
	if a.Count != 2 {
		t.Fatalf("expected peerA count 2, got %d", a.Count)
	}
	if a.LastSeen.Before(a.FirstSeen) {
		t.Fatal("last_seen before first_seen")
	}
	if byID["peerB"].Count != 1 {
		t.Fatalf("expected peerB count 1, got %d", byID["peerB"].Count)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RecordSighting("peerA"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	// Reopen: schema exists, data survives.
	db2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()

	sightings, err := db2.Sightings()
	if err != nil {
		t.Fatal(err)
	}
	if len(sightings) != 1 || sightings[0].PeerID != "peerA" {
		t.Fatalf("unexpected sightings after reopen: %+v", sightings)
	}
}
