// Command memfsd is the daemon: it wires the connector/OS connection
// registries and the plugin store into one kernel.Frontend, starts the wire
// protocol listener, and optionally mounts FUSE and/or a supplemental 9P
// listener, grounded on cmd/musclefs/musclefs.go's main() (gops agent,
// signal handling, netutil.Listen, a go9p/p/srv.Srv for the 9P surface).
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/lionkov/go9p/p/srv"
	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/memfs/config"
	"github.com/nicolagi/memfs/connector"
	"github.com/nicolagi/memfs/fuseadapter"
	"github.com/nicolagi/memfs/internal/netutil"
	"github.com/nicolagi/memfs/kernel"
	"github.com/nicolagi/memfs/ninep"
	"github.com/nicolagi/memfs/osview"
	"github.com/nicolagi/memfs/wire"
)

func main() {
	if err := agent.Listen(agent.Options{}); err != nil {
		log.Printf("Could not start gops agent: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	base := flag.String("base", config.DefaultBaseDirectoryPath, "Base directory for configuration and logs")
	verbosity := flag.String("verbosity", "info", "log level: "+strings.Join(levelNames(), ", "))
	flag.Parse()

	ll, err := log.ParseLevel(*verbosity)
	if err != nil {
		log.Fatalf("Could not parse log level %q: %v", *verbosity, err)
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load(*base)
	if err != nil {
		log.Fatalf("Could not load config from %q: %v", *base, err)
	}

	plugins := kernel.NewPluginStore()
	osview.RegisterMappings(plugins)
	connector.RegisterMapping(plugins)

	osRegistry := kernel.NewConnectionRegistry[*osview.OsRoot](plugins, func(r *osview.OsRoot) kernel.Branch { return r })
	connectorRegistry := kernel.NewConnectionRegistry[*connector.Root](plugins, func(r *connector.Root) kernel.Branch { return r })

	osRegistry.AddRoot("self", osview.NewOsRoot(osview.NewSelfProvider()))
	if err := addConfiguredConnector(connectorRegistry, cfg); err != nil {
		log.Fatalf("Could not open configured connector: %v", err)
	}

	nodeBackend := kernel.NewNodeBackend()
	nodeBackend.Mount("os", osRegistry)
	nodeBackend.Mount("connector", connectorRegistry)
	nodeBackend.Mount("ctl", &ctlBackend{leaf: newCtlLeaf(osRegistry, connectorRegistry)})

	frontend := kernel.NewFrontend(nodeBackend, plugins)

	listener, err := netutil.Listen(cfg.ListenNet, cfg.ListenAddr)
	if err != nil {
		log.Fatalf("Could not start net listener: %v", err)
	}
	go serveWire(listener, frontend)

	var ninepListener net.Listener
	if cfg.NinePListenNet != "" {
		ops, err := ninep.NewOps(frontend, cfg.ReadOnly)
		if err != nil {
			log.Fatalf("Could not build 9P ops: %v", err)
		}
		fs := &srv.Srv{}
		fs.Dotu = false
		fs.Id = "memfs"
		if !fs.Start(ops) {
			log.Fatal("go9p/p/srv.Srv.Start returned false")
		}
		ninepListener, err = netutil.Listen(cfg.NinePListenNet, cfg.NinePListenAddr)
		if err != nil {
			log.Fatalf("Could not start 9P net listener: %v", err)
		}
		go func() {
			if err := fs.StartListener(ninepListener); err != nil {
				log.Fatalf("Could not start 9P listener: %v", err)
			}
		}()
	}

	if cfg.FUSEMount != "" {
		fuseServer, err := fuseadapter.Mount(cfg.FUSEMount, frontend, cfg.ReadOnly)
		if err != nil {
			log.Fatalf("Could not mount FUSE at %q: %v", cfg.FUSEMount, err)
		}
		defer func() { _ = fuseServer.Unmount() }()
	}

	log.Print("Awaiting a signal to exit.")
	sig := <-sigc
	log.Printf("Got signal %q, exiting.", sig)
	_ = listener.Close()
	if ninepListener != nil {
		_ = ninepListener.Close()
	}
	agent.Close()
}

func serveWire(listener net.Listener, frontend *kernel.Frontend) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("Wire listener accept failed, stopping: %v", err)
			return
		}
		go wire.ServeConn(conn, frontend, log.StandardLogger())
	}
}

func addConfiguredConnector(registry *kernel.ConnectionRegistry[*connector.Root], cfg *config.C) error {
	switch cfg.Connector {
	case "", "self":
		return nil
	case "file":
		conn, err := connector.NewFileConnector(cfg.FilePath)
		if err != nil {
			return err
		}
		registry.AddRoot("default", connector.NewRoot(conn))
	case "s3":
		conn, err := connector.NewS3Connector(cfg.S3Region, cfg.S3Bucket, cfg.S3Key)
		if err != nil {
			return err
		}
		registry.AddRoot("default", connector.NewRoot(conn))
	case "memory":
		registry.AddRoot("default", connector.NewRoot(connector.NewMemoryConnector(nil)))
	default:
		return fmt.Errorf("unknown connector type %q", cfg.Connector)
	}
	return nil
}

func levelNames() []string {
	names := make([]string, 0, len(log.AllLevels))
	for _, l := range log.AllLevels {
		names = append(names, l.String())
	}
	return names
}
