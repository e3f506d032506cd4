// Command fsbridge is a small client for remote filesystems reachable
// through the boundary layer: read files, list and stat paths, or expose a
// connected filesystem as a read-only FUSE mount.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/fsbridge/fsbridge/internal/config"
	_ "github.com/fsbridge/fsbridge/internal/engine/memfs"
	_ "github.com/fsbridge/fsbridge/internal/engine/s3"
	"github.com/fsbridge/fsbridge/internal/fuse"
	"github.com/fsbridge/fsbridge/pkg/bridge"
)

const usage = `usage: fsbridge [flags] <command> [args]

commands:
  cat <path>         print a remote file to stdout
  ls <path>          list a remote directory
  stat <path>        print metadata for a remote path
  conf <key>         print a configuration value
  mount <dir>        serve the filesystem as a read-only FUSE mount

flags:
`

type options struct {
	confDir string
	host    string
	port    uint16
	user    string
	metrics string
}

func main() {
	// Per-thread error reporting needs the command to stay on one thread.
	runtime.LockOSThread()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("fsbridge", flag.ContinueOnError)
	var opts options
	flags.StringVar(&opts.confDir, "conf", "", "configuration directory (default: standard search path)")
	flags.StringVar(&opts.host, "host", "", "connect to this host instead of the configured default")
	flags.Uint16Var(&opts.port, "port", 0, "port for --host (0 means the default port)")
	flags.StringVar(&opts.user, "user", "", "user identity for remote operations")
	flags.StringVar(&opts.metrics, "metrics", "", "serve Prometheus metrics on this address while mounted")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() < 1 {
		flags.Usage()
		return 2
	}

	cmd := flags.Arg(0)
	rest := flags.Args()[1:]
	switch cmd {
	case "cat":
		return cmdCat(opts, rest)
	case "ls":
		return cmdLs(opts, rest)
	case "stat":
		return cmdStat(opts, rest)
	case "conf":
		return cmdConf(opts, rest)
	case "mount":
		return cmdMount(opts, rest)
	}
	fmt.Fprintf(os.Stderr, "fsbridge: unknown command %q\n", cmd)
	flags.Usage()
	return 2
}

// connect builds a filesystem handle from the options.
func connect(opts options) (*bridge.FS, int) {
	var b *bridge.Builder
	if opts.confDir != "" {
		b = bridge.NewBuilderFromDirectory(opts.confDir)
	} else {
		b = bridge.NewBuilder()
	}
	if b == nil {
		fmt.Fprintf(os.Stderr, "fsbridge: %s\n", lastError())
		return nil, 1
	}
	if opts.host != "" {
		b.SetHost(opts.host)
		b.SetPort(opts.port)
	}
	b.SetUser(opts.user)

	fs := b.Connect()
	if fs == nil {
		fmt.Fprintf(os.Stderr, "fsbridge: connect: %s\n", lastError())
		return nil, 1
	}
	return fs, 0
}

func lastError() string {
	buf := make([]byte, 512)
	bridge.GetLastError(buf)
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

func needArg(args []string, what string) (string, bool) {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "fsbridge: expected exactly one %s\n", what)
		return "", false
	}
	return args[0], true
}

func cmdCat(opts options, args []string) int {
	path, ok := needArg(args, "path")
	if !ok {
		return 2
	}
	fs, code := connect(opts)
	if fs == nil {
		return code
	}
	defer bridge.Disconnect(fs)

	file := bridge.OpenFile(fs, path, os.O_RDONLY, 0, 0, 0)
	if file == nil {
		fmt.Fprintf(os.Stderr, "fsbridge: open %s: %s\n", path, lastError())
		return 1
	}
	defer bridge.CloseFile(fs, file)

	buf := make([]byte, 128*1024)
	for {
		n := bridge.Read(fs, file, buf)
		if n < 0 {
			fmt.Fprintf(os.Stderr, "fsbridge: read %s: %s\n", path, lastError())
			return 1
		}
		if n == 0 {
			return 0
		}
		if _, err := os.Stdout.Write(buf[:n]); err != nil {
			fmt.Fprintf(os.Stderr, "fsbridge: %v\n", err)
			return 1
		}
	}
}

func cmdLs(opts options, args []string) int {
	path, ok := needArg(args, "path")
	if !ok {
		return 2
	}
	fs, code := connect(opts)
	if fs == nil {
		return code
	}
	defer bridge.Disconnect(fs)

	infos := bridge.ListDirectory(fs, path)
	if infos == nil {
		fmt.Fprintf(os.Stderr, "fsbridge: ls %s: %s\n", path, lastError())
		return 1
	}
	for _, info := range infos {
		kind := "-"
		if info.IsDir {
			kind = "d"
		}
		fmt.Printf("%s %12d  %s\n", kind, info.Size, info.Path)
	}
	return 0
}

func cmdStat(opts options, args []string) int {
	path, ok := needArg(args, "path")
	if !ok {
		return 2
	}
	fs, code := connect(opts)
	if fs == nil {
		return code
	}
	defer bridge.Disconnect(fs)

	info := bridge.GetPathInfo(fs, path)
	if info == nil {
		fmt.Fprintf(os.Stderr, "fsbridge: stat %s: %s\n", path, lastError())
		return 1
	}
	fmt.Printf("path:     %s\n", info.Path)
	fmt.Printf("size:     %d\n", info.Size)
	fmt.Printf("dir:      %v\n", info.IsDir)
	fmt.Printf("mode:     %v\n", info.Mode)
	if info.Owner != "" {
		fmt.Printf("owner:    %s\n", info.Owner)
	}
	if !info.ModTime.IsZero() {
		fmt.Printf("modified: %s\n", info.ModTime)
	}
	return 0
}

func cmdConf(opts options, args []string) int {
	key, ok := needArg(args, "key")
	if !ok {
		return 2
	}
	if opts.confDir != "" {
		os.Setenv(config.EnvConfDir, opts.confDir)
	}
	v, found := bridge.ConfGetString(key)
	if !found {
		fmt.Fprintf(os.Stderr, "fsbridge: %s is not configured\n", key)
		return 1
	}
	fmt.Println(v)
	return 0
}

func cmdMount(opts options, args []string) int {
	dir, ok := needArg(args, "directory")
	if !ok {
		return 2
	}
	fs, code := connect(opts)
	if fs == nil {
		return code
	}
	defer bridge.Disconnect(fs)

	manager := fuse.NewMountManager(fuse.NewFileSystem(fs, nil), fuse.DefaultConfig(dir))
	if err := manager.Mount(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fsbridge: %v\n", err)
		return 1
	}

	if opts.metrics != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", bridge.Metrics().Handler())
			if err := http.ListenAndServe(opts.metrics, mux); err != nil {
				fmt.Fprintf(os.Stderr, "fsbridge: metrics server: %v\n", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		manager.Unmount()
	}()

	manager.Wait()
	return 0
}
