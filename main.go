// Command kmsgate is the KMS host emulator's entrypoint: a "server"
// subcommand runs the activation host, and a "client" subcommand runs the
// self-test client used for manual and CI smoke-testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaykms/kmsgate/catalog"
	"github.com/relaykms/kmsgate/client"
	"github.com/relaykms/kmsgate/config"
	"github.com/relaykms/kmsgate/kmsmsg"
	"github.com/relaykms/kmsgate/logging"
	"github.com/relaykms/kmsgate/session"
	"github.com/relaykms/kmsgate/store"
)

// Exit codes, per the configuration surface's documented process contract.
const (
	exitOK             = 0
	exitBindFailure    = 2
	exitStorageFailure = 3
	exitConfigError    = 4
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitConfigError)
	}

	switch os.Args[1] {
	case "server":
		os.Exit(runServer(os.Args[2:]))
	case "client":
		os.Exit(runClient(os.Args[2:]))
	default:
		printUsage()
		os.Exit(exitConfigError)
	}
}

func printUsage() {
	fmt.Println("kmsgate: KMS host emulator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  kmsgate server [options]    Run the KMS activation host")
	fmt.Println("  kmsgate client [options]    Run the self-test client")
	fmt.Println()
	fmt.Println("Run 'kmsgate server -h' or 'kmsgate client -h' for details.")
}

func runServer(args []string) int {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	ip := fs.String("ip", "", "IP address to listen on")
	port := fs.Int("port", 0, "Port to listen on")
	epid := fs.String("epid", "", "Manual EPID override")
	hwid := fs.String("hwid", "", "Hardware ID (16 hex chars, or RANDOM)")
	lcid := fs.Int("lcid", 0, "Locale ID for derived EPIDs")
	count := fs.Int("count", 0, "Client count to report when above the required minimum")
	activation := fs.Int("activation", 0, "Activation interval in minutes")
	renewal := fs.Int("renewal", 0, "Renewal interval in minutes")
	timeoutIdle := fs.Int("timeout-idle", 0, "Per-session idle read timeout, seconds")
	sqlitePath := fs.String("sqlite", "", "Path to the activation store database (unset disables persistence)")
	loglevel := fs.String("loglevel", "", "MINI, INFO, or DEBUG")
	configFile := fs.String("config", "", "Path to a YAML config file")
	envFile := fs.String("envfile", ".env", "Path to a .env file (missing is not an error)")
	fs.Parse(args)

	o := config.Overrides{EnvFile: envFile}
	if *configFile != "" {
		o.ConfigFile = configFile
	}
	setIfFlagged(fs, "ip", ip, &o.IP)
	setIfFlaggedInt(fs, "port", port, &o.Port)
	setIfFlagged(fs, "epid", epid, &o.EPID)
	setIfFlagged(fs, "hwid", hwid, &o.HWID)
	setIfFlaggedInt(fs, "lcid", lcid, &o.LCID)
	setIfFlaggedInt(fs, "count", count, &o.ClientCount)
	setIfFlaggedUint32(fs, "activation", activation, &o.ActivationIntervalMin)
	setIfFlaggedUint32(fs, "renewal", renewal, &o.RenewalIntervalMin)
	setIfFlaggedInt(fs, "timeout-idle", timeoutIdle, &o.TimeoutIdleSec)
	setIfFlagged(fs, "sqlite", sqlitePath, &o.SQLite)
	setIfFlagged(fs, "loglevel", loglevel, &o.LogLevel)

	cfg, err := config.Load(o)
	if err != nil {
		log.Printf("config error: %v", err)
		return exitConfigError
	}

	logging.Init(cfg.LogLevel)
	sink := logging.Sink{Ctx: context.Background()}

	cat, err := catalog.Load()
	if err != nil {
		log.Printf("catalog error: %v", err)
		return exitConfigError
	}

	engine := &kmsmsg.Engine{Catalog: cat, Config: cfg, Sink: sink}
	if cfg.SQLitePath != "" {
		st, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Printf("storage init error: %v", err)
			return exitStorageFailure
		}
		defer st.Close()
		engine.Store = st
	}

	srv := &session.Server{Config: cfg, Engine: engine, Sink: sink}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("listen error: %v", err)
			return exitBindFailure
		}
	case <-ctx.Done():
		logging.Printf("shutting down")
		session.Shutdown(stop, srv.Done())
	}
	return exitOK
}

func runClient(args []string) int {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	ip := fs.String("ip", "127.0.0.1", "KMS server IP address")
	port := fs.Int("port", 1688, "KMS server port")
	mode := fs.String("mode", "Windows 11 Professional", "Product SKU display name, or 'list'")
	version := fs.Int("version", 6, "KMS protocol major version to speak (4, 5, or 6)")
	cmid := fs.String("cmid", "", "Client Machine ID (random if empty)")
	name := fs.String("name", "", "Machine name (random if empty)")
	fs.Parse(args)

	cfg := client.DefaultConfig()
	cfg.IP = *ip
	cfg.Port = *port
	cfg.Mode = *mode
	cfg.Version = uint16(*version)
	cfg.CMID = *cmid
	cfg.Machine = *name

	if err := client.Run(cfg); err != nil {
		log.Printf("client error: %v", err)
		return exitConfigError
	}
	return exitOK
}

func setIfFlagged(fs *flag.FlagSet, name string, val *string, dst **string) {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	if found {
		*dst = val
	}
}

func setIfFlaggedInt(fs *flag.FlagSet, name string, val *int, dst **int) {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	if found {
		*dst = val
	}
}

func setIfFlaggedUint32(fs *flag.FlagSet, name string, val *int, dst **uint32) {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	if found {
		v := uint32(*val)
		*dst = &v
	}
}
