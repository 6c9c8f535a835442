package config

import (
	"bytes"
	"io"
	"net/url"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultPort = "1935"

const BuffioSize = 1024 * 64

// Path component of the tcUrl sent by the publisher in the connect command
const DefaultIngestPath = "/camera"
const DefaultClientWindowSize uint32 = 2500000
const DefaultPeerBandwidth uint32 = 2500000

// Outgoing chunk size announced with Set Chunk Size after a successful connect
const DefaultChunkSize uint32 = 1024
const DefaultMaxChunkStreams = 64

const FlashMediaServerVersion string = "FMS/3,5,7,7009"

const Capabilities int = 31

const Mode int = 1

const DefaultStreamID int = 1

// Largest chunk size a peer may announce (the most significant bit of Set Chunk Size must be 0)
const MaxChunkSize uint32 = 0x7FFFFFFF

// Config holds the settings of an ingest server.
type Config struct {
	// host:port the server listens on
	Addr       string `yaml:"addr"`
	IngestPath string `yaml:"ingest_path"`
	// Stream keys accepted by publish
	StreamKeys      []string `yaml:"stream_keys"`
	WindowAckSize   uint32   `yaml:"window_ack_size"`
	PeerBandwidth   uint32   `yaml:"peer_bandwidth"`
	ChunkSize       uint32   `yaml:"chunk_size"`
	MaxChunkStreams int      `yaml:"max_chunk_streams"`
	// Size of the buffered reader and writer of every connection
	BufferSize int  `yaml:"buffer_size"`
	Debug      bool `yaml:"debug"`
}

// Default returns a configuration with every field set to its default value and no stream keys.
func Default() Config {
	return Config{
		Addr:            ":" + DefaultPort,
		IngestPath:      DefaultIngestPath,
		WindowAckSize:   DefaultClientWindowSize,
		PeerBandwidth:   DefaultPeerBandwidth,
		ChunkSize:       DefaultChunkSize,
		MaxChunkStreams: DefaultMaxChunkStreams,
		BufferSize:      BuffioSize,
	}
}

// WithDefaults returns a copy of c where every zero field is set to its default value.
func (c Config) WithDefaults() Config {
	d := Default()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.IngestPath == "" {
		c.IngestPath = d.IngestPath
	}
	if c.WindowAckSize == 0 {
		c.WindowAckSize = d.WindowAckSize
	}
	if c.PeerBandwidth == 0 {
		c.PeerBandwidth = d.PeerBandwidth
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.MaxChunkStreams == 0 {
		c.MaxChunkStreams = d.MaxChunkStreams
	}
	if c.BufferSize == 0 {
		c.BufferSize = d.BufferSize
	}
	return c
}

// Load reads the YAML configuration file at path. Fields that aren't present keep their default values.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: open")
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a YAML configuration, rejecting unknown fields, and validates it.
func Parse(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: read")
	}
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	// An empty document leaves the defaults untouched
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "config: decode")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate returns an error describing the first invalid field.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr must not be empty")
	}
	if c.IngestPath == "" || c.IngestPath[0] != '/' {
		return errors.Errorf("config: ingest_path must start with '/', got %q", c.IngestPath)
	}
	if _, err := url.Parse(c.IngestPath); err != nil {
		return errors.Wrap(err, "config: ingest_path")
	}
	for i, key := range c.StreamKeys {
		if key == "" {
			return errors.Errorf("config: stream_keys[%d] must not be empty", i)
		}
	}
	if c.WindowAckSize == 0 {
		return errors.New("config: window_ack_size must be greater than 0")
	}
	if c.PeerBandwidth == 0 {
		return errors.New("config: peer_bandwidth must be greater than 0")
	}
	if c.ChunkSize == 0 || c.ChunkSize > MaxChunkSize {
		return errors.Errorf("config: chunk_size must be between 1 and %d, got %d", MaxChunkSize, c.ChunkSize)
	}
	if c.MaxChunkStreams <= 0 {
		return errors.Errorf("config: max_chunk_streams must be greater than 0, got %d", c.MaxChunkStreams)
	}
	if c.BufferSize <= 0 {
		return errors.Errorf("config: buffer_size must be greater than 0, got %d", c.BufferSize)
	}
	return nil
}
