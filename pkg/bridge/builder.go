package bridge

import (
	"math"

	"golang.org/x/sys/unix"

	"github.com/fsbridge/fsbridge/internal/callenv"
	"github.com/fsbridge/fsbridge/internal/config"
	"github.com/fsbridge/fsbridge/pkg/engine"
)

// Builder accumulates connection parameters on top of loaded configuration.
// Setters only record overrides; nothing is validated or connected until
// Connect. A Builder is reusable: Connect does not consume it.
type Builder struct {
	loader *config.Loader
	conf   config.Snapshot

	host    string
	hostSet bool
	port    uint16
	portSet bool
	user    string
}

// defaultOptions is the option set used by Connect and ConnectAsUser, which
// bypass configuration loading.
func defaultOptions() engine.Options {
	return engine.Options{Engine: config.DefaultEngine}
}

// NewBuilder returns a Builder loaded from the default configuration search
// path. A failed load falls back to an empty configuration rather than
// failing the builder.
func NewBuilder() *Builder {
	env := callenv.Current()
	return guard(env, (*Builder)(nil), func() *Builder {
		return newBuilder(config.NewLoader())
	})
}

// NewBuilderFromDirectory is NewBuilder with the search path replaced by a
// single directory.
func NewBuilderFromDirectory(dir string) *Builder {
	env := callenv.Current()
	return guard(env, (*Builder)(nil), func() *Builder {
		loader := config.NewLoader()
		loader.SetSearchPath(dir)
		return newBuilder(loader)
	})
}

func newBuilder(loader *config.Loader) *Builder {
	conf, err := loader.LoadDefaultResources()
	if err != nil {
		conf = loader.New()
	}
	return &Builder{loader: loader, conf: conf}
}

// SetHost overrides the host to connect to.
func (b *Builder) SetHost(host string) {
	b.host = host
	b.hostSet = true
}

// SetPort overrides the port to connect to. Port 0 restores the configured
// default.
func (b *Builder) SetPort(port uint16) {
	b.port = port
	b.portSet = port != 0
}

// SetUser overrides the user identity. An empty name is ignored.
func (b *Builder) SetUser(name string) {
	if name != "" {
		b.user = name
	}
}

// ConfSetString overlays key=value onto the builder's configuration.
// Returns 0 on success and 1 when the overlay is rejected, in which case
// the existing configuration is untouched.
func (b *Builder) ConfSetString(key, value string) int {
	env := callenv.Current()
	return guard(env, -1, func() int {
		next, err := b.loader.OverlayValue(b.conf, key, value)
		if err != nil {
			reportError(env, int(unix.EINVAL), "Could not change Builder value")
			return 1
		}
		b.conf = next
		return 0
	})
}

// ConfGetString returns the configured value for key and whether it is
// present. Absence is not an error.
func (b *Builder) ConfGetString(key string) (string, bool) {
	env := callenv.Current()
	var found bool
	value := guard(env, "", func() string {
		v, ok := b.conf.Get(key)
		found = ok
		return v
	})
	return value, found
}

// ConfGetInt stores the configured value for key into val if it is present
// and fits in 32 bits. A present value outside the 32-bit range returns 1
// with val untouched. In every other case the return is 0; an absent key
// leaves val untouched and records an EINVAL diagnostic, so callers must
// distinguish the cases by whether val changed, not by the return value or
// the error channel.
func (b *Builder) ConfGetInt(key string, val *int32) int {
	env := callenv.Current()
	return guard(env, -1, func() int {
		if n, ok := b.conf.GetInt(key); ok {
			if n < math.MinInt32 || n > math.MaxInt32 {
				return 1
			}
			if val != nil {
				*val = int32(n)
			}
			return 0
		}
		reportError(env, int(unix.EINVAL), "Could not get Builder value")
		return 0
	})
}

// Connect builds an engine from the builder's configuration and overrides
// and connects it. Returns nil on failure. The builder remains valid and
// can connect again.
func (b *Builder) Connect() *FS {
	env := callenv.Current()
	if b == nil {
		reportError(env, int(unix.ENODEV), "Cannot connect using null Builder handle")
		return nil
	}
	var host *string
	var port *uint16
	if b.hostSet {
		host = &b.host
	}
	if b.portSet {
		port = &b.port
	}
	return doConnect(env, host, port, b.user, b.conf.GetOptions())
}

// ConfGetString reads key from the default configuration, without a builder.
func ConfGetString(key string) (string, bool) {
	b := NewBuilder()
	if b == nil {
		return "", false
	}
	return b.ConfGetString(key)
}

// ConfGetInt reads key from the default configuration, without a builder.
// It shares the contract of (*Builder).ConfGetInt.
func ConfGetInt(key string, val *int32) int {
	b := NewBuilder()
	if b == nil {
		return -1
	}
	return b.ConfGetInt(key, val)
}
