package main

import (
	"errors"
	"flag"
	"io"
)

// ErrUsage is returned when the command line does not carry both required
// positionals.
var ErrUsage = errors.New("usage: rr-dnsd [--port N] <root_ip> <zone_file>")

// cliArgs holds the parsed command-line surface: the two required
// positionals from spec (root_ip, zone_file) plus the optional --port flag.
// Everything else the server needs comes from config.Load's environment
// surface.
type cliArgs struct {
	RootIP   string
	ZoneFile string
	Port     int
}

// parseArgs parses args (os.Args[1:]) into cliArgs. A Port of 0 means "no
// --port given"; the caller falls back to the configured/default port.
func parseArgs(args []string) (cliArgs, error) {
	fs := flag.NewFlagSet("rr-dnsd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	port := fs.Int("port", 0, "port to bind the DNS server to (default: config/env value)")
	if err := fs.Parse(args); err != nil {
		return cliArgs{}, err
	}

	rest := fs.Args()
	if len(rest) != 2 {
		return cliArgs{}, ErrUsage
	}

	return cliArgs{RootIP: rest[0], ZoneFile: rest[1], Port: *port}, nil
}
