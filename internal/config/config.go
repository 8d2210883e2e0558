package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/petervdpas/jamnet/internal/util"
)

type Config struct {
	Identity Identity `json:"identity"`
	Catalog  Catalog  `json:"catalog"`
	P2P      P2P      `json:"p2p"`
	History  History  `json:"history"`
}

type Identity struct {
	KeyFile string `json:"key_file"`
}

type Catalog struct {
	// Path to the songs JSON document, relative to the peer directory.
	File string `json:"file"`

	// Seed an empty catalog at startup when the file does not exist.
	// Load itself never creates the file.
	CreateIfMissing bool `json:"create_if_missing"`

	// Watch the catalog file and report external edits.
	WatchFile bool `json:"watch_file"`
}

type P2P struct {
	ListenPort int    `json:"listen_port"`
	MdnsTag    string `json:"mdns_tag"`
	Topic      string `json:"topic"`
}

type History struct {
	// When enabled, discovered peers are recorded in a SQLite database
	// under Dir and shown by the "peer log" command.
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

func Default() Config {
	return Config{
		Identity: Identity{
			KeyFile: "data/identity.key",
		},
		Catalog: Catalog{
			File:            "songs.json",
			CreateIfMissing: false,
			WatchFile:       true,
		},
		P2P: P2P{
			ListenPort: 0,
			MdnsTag:    "jamnet-mdns",
			Topic:      "jamnet.catalog.v1",
		},
		History: History{
			Enabled: true,
			Dir:     "data",
		},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Identity.KeyFile) == "" {
		return errors.New("identity.key_file is required")
	}

	if strings.TrimSpace(c.Catalog.File) == "" {
		return errors.New("catalog.file is required")
	}

	if c.P2P.ListenPort < 0 || c.P2P.ListenPort > 65535 {
		return errors.New("p2p.listen_port must be 0..65535")
	}
	if strings.TrimSpace(c.P2P.MdnsTag) == "" {
		return errors.New("p2p.mdns_tag is required")
	}
	if strings.TrimSpace(c.P2P.Topic) == "" {
		return errors.New("p2p.topic is required")
	}

	if c.History.Enabled && strings.TrimSpace(c.History.Dir) == "" {
		return errors.New("history.dir is required when history is enabled")
	}

	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
