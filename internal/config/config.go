// Package config implements the configuration collaborator of the boundary
// layer: a Loader that resolves YAML resource files from a search path, and
// an immutable Snapshot that is overlaid functionally. Each overlay produces
// a new Snapshot, so a failed overlay never leaves a half-updated view
// behind.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v2"

	"github.com/fsbridge/fsbridge/pkg/engine"
)

// Resource file names looked up in each search-path directory, applied in
// order so site values win over defaults.
const (
	DefaultResource = "fsbridge-default.yaml"
	SiteResource    = "fsbridge-site.yaml"
)

// EnvConfDir overrides the default search path when set.
const EnvConfDir = "FSBRIDGE_CONF_DIR"

// Well-known configuration keys consumed by GetOptions. Engine-specific keys
// (fs.s3.* and the like) pass through untouched in Options.Extra.
const (
	KeyEngine         = "fs.engine"
	KeyDefaultHost    = "fs.default.host"
	KeyDefaultPort    = "fs.default.port"
	KeyDefaultUser    = "fs.default.user"
	KeyConnectTimeout = "fs.connect.timeout"
	KeyIOTimeout      = "fs.io.timeout"
)

// DefaultEngine is used when fs.engine is not configured.
const DefaultEngine = "s3"

// Loader resolves configuration resources and applies overlays.
type Loader struct {
	searchPath []string
}

// NewLoader returns a Loader with the default search path.
func NewLoader() *Loader {
	l := &Loader{}
	l.SetDefaultSearchPath()
	return l
}

// SetDefaultSearchPath points the loader at $FSBRIDGE_CONF_DIR when set,
// otherwise /etc/fsbridge followed by $HOME/.fsbridge.
func (l *Loader) SetDefaultSearchPath() {
	if dir := os.Getenv(EnvConfDir); dir != "" {
		l.searchPath = []string{dir}
		return
	}
	l.searchPath = []string{"/etc/fsbridge"}
	if home, err := os.UserHomeDir(); err == nil {
		l.searchPath = append(l.searchPath, filepath.Join(home, ".fsbridge"))
	}
}

// SetSearchPath replaces the search path with a single directory.
func (l *Loader) SetSearchPath(dir string) {
	l.searchPath = []string{dir}
}

// New returns an empty Snapshot.
func (l *Loader) New() Snapshot {
	return Snapshot{values: map[string]string{}}
}

// LoadDefaultResources layers every resource file found on the search path
// into one Snapshot. Missing files are skipped; a malformed file fails the
// whole load.
func (l *Loader) LoadDefaultResources() (Snapshot, error) {
	snap := l.New()
	for _, dir := range l.searchPath {
		for _, name := range []string{DefaultResource, SiteResource} {
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return Snapshot{}, fmt.Errorf("read config resource %s: %w", path, err)
			}
			layered, err := overlayYAML(snap, data)
			if err != nil {
				return Snapshot{}, fmt.Errorf("parse config resource %s: %w", path, err)
			}
			snap = layered
		}
	}
	return snap, nil
}

// OverlayValue returns a new Snapshot with key set to value. The input
// Snapshot is never modified. Keys must be non-empty and free of whitespace
// and control characters.
func (l *Loader) OverlayValue(s Snapshot, key, value string) (Snapshot, error) {
	if !validKey(key) {
		return Snapshot{}, fmt.Errorf("invalid configuration key %q", key)
	}
	next := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		next[k] = v
	}
	next[key] = value
	return Snapshot{values: next}, nil
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// overlayYAML parses one resource file and layers it over snap, returning a
// new Snapshot. Nested mappings flatten into dot-joined keys.
func overlayYAML(snap Snapshot, data []byte) (Snapshot, error) {
	var raw map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, err
	}
	next := make(map[string]string, len(snap.values)+len(raw))
	for k, v := range snap.values {
		next[k] = v
	}
	if err := flatten("", raw, next); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{values: next}, nil
}

func flatten(prefix string, node map[interface{}]interface{}, out map[string]string) error {
	for k, v := range node {
		key := fmt.Sprintf("%v", k)
		if prefix != "" {
			key = prefix + "." + key
		}
		switch val := v.(type) {
		case map[interface{}]interface{}:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		case nil:
			out[key] = ""
		case string, int, int64, uint64, float64, bool:
			out[key] = fmt.Sprintf("%v", val)
		default:
			return fmt.Errorf("key %s: unsupported value type %T", key, v)
		}
	}
	return nil
}

// Snapshot is one immutable layered configuration view. The zero Snapshot is
// empty and usable.
type Snapshot struct {
	values map[string]string
}

// Get returns the value for key and whether it is present. Absence is not an
// error.
func (s Snapshot) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetInt returns the value for key parsed as a 64-bit integer. A key that is
// absent or does not parse reads as not present.
func (s Snapshot) GetInt(key string) (int64, bool) {
	v, ok := s.values[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Len returns the number of keys in the snapshot.
func (s Snapshot) Len() int {
	return len(s.values)
}

// GetOptions derives the finalized engine option set from the snapshot.
func (s Snapshot) GetOptions() engine.Options {
	opts := engine.Options{
		Engine: DefaultEngine,
		Extra:  make(map[string]string, len(s.values)),
	}
	for k, v := range s.values {
		opts.Extra[k] = v
	}
	if v, ok := s.Get(KeyEngine); ok && v != "" {
		opts.Engine = v
	}
	if v, ok := s.Get(KeyDefaultHost); ok {
		opts.DefaultHost = v
	}
	if n, ok := s.GetInt(KeyDefaultPort); ok && n > 0 && n <= 65535 {
		opts.DefaultPort = uint16(n)
	}
	if v, ok := s.Get(KeyDefaultUser); ok {
		opts.User = v
	}
	if v, ok := s.Get(KeyConnectTimeout); ok {
		if d, err := time.ParseDuration(v); err == nil {
			opts.ConnectTimeout = d
		}
	}
	if v, ok := s.Get(KeyIOTimeout); ok {
		if d, err := time.ParseDuration(v); err == nil {
			opts.IOTimeout = d
		}
	}
	return opts
}
