// Skyctl is the command-line client for monitoring and controlling a
// running skylockd instance. It connects over HTTP and WebSocket to
// query estimates and stream live events from the daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/large-farva/skylock/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8090", "Skylock daemon URL (e.g. http://192.168.1.40:8090)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter estimate,log)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --limit are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "estimates":
		opts := ctl.EstimatesOptions{JSON: *jsonOut}
		estFlags := pflag.NewFlagSet("estimates", pflag.ContinueOnError)
		estFlags.StringVar(&opts.Satellite, "satellite", "", "Filter by satellite identity")
		estFlags.BoolVar(&opts.Resolved, "resolved", false, "Show only resolved estimates")
		estFlags.IntVar(&opts.Limit, "limit", 0, "Limit number of estimates shown")
		_ = estFlags.Parse(subArgs)
		err = ctl.Estimates(*host, opts)

	case "catalog":
		opts := ctl.CatalogOptions{JSON: *jsonOut}
		catFlags := pflag.NewFlagSet("catalog", pflag.ContinueOnError)
		catFlags.StringVar(&opts.Find, "find", "", "Search satellite identities by substring")
		catFlags.IntVar(&opts.Limit, "limit", 0, "Limit number of matches shown")
		_ = catFlags.Parse(subArgs)
		err = ctl.Catalog(*host, opts)

	case "track":
		err = ctl.Track(*host, *jsonOut)

	case "sessions":
		opts := ctl.SessionsOptions{JSON: *jsonOut}
		sesFlags := pflag.NewFlagSet("sessions", pflag.ContinueOnError)
		sesFlags.StringVar(&opts.Delete, "delete", "", "Delete a recorded session by ID")
		_ = sesFlags.Parse(subArgs)
		if sesFlags.NArg() > 0 {
			opts.Info = sesFlags.Arg(0)
		}
		err = ctl.Sessions(*host, opts)

	case "stats":
		err = ctl.Stats(*host, *jsonOut)

	case "logs":
		opts := ctl.LogsOptions{JSON: *jsonOut}
		logFlags := pflag.NewFlagSet("logs", pflag.ContinueOnError)
		logFlags.StringVar(&opts.Level, "level", "", "Filter by log level (info, error, warn)")
		logFlags.IntVar(&opts.Limit, "limit", 0, "Limit number of log entries shown")
		logFlags.BoolVar(&opts.Tail, "tail", false, "Stream live log events (like watch --filter log)")
		_ = logFlags.Parse(subArgs)
		err = ctl.Logs(*host, opts)

	case "config":
		err = ctl.Config(*host, *jsonOut)

	case "profiles":
		err = ctl.Profiles(*jsonOut)

	// ── Control commands ──────────────────────────────────────────
	case "pause":
		err = ctl.Pause(*host, *jsonOut)

	case "resume":
		err = ctl.Resume(*host, *jsonOut)

	case "flush":
		err = ctl.Flush(*host, *jsonOut)

	case "refresh":
		err = ctl.Refresh(*host, *jsonOut)

	case "reload":
		err = ctl.Reload(*host, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  skyctl — Skylock control CLI

  USAGE
    skyctl [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show daemon state, uptime, and the current serving satellite
    health          Check daemon and component health
    version         Show CLI and daemon version information
    estimates       List recent serving-satellite estimates
    catalog         Show orbital catalog and element cache state
    track           Show the obstruction track of the last closed window
    sessions        List recorded sessions (or show one with an ID argument)
    stats           Show aggregate estimate statistics
    logs            Show recent daemon log messages
    config          Show the daemon's running configuration
    profiles        List local config profiles

  COMMANDS (control)
    pause           Pause obstruction-frame ingestion
    resume          Resume frame ingestion
    flush           Seal the open window at the next sample
    refresh         Force a catalog update from the network
    reload          Reload configuration from disk

  COMMANDS (live)
    watch           Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8090)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    estimates:
        --satellite NAME    Filter by satellite identity
        --resolved          Show only resolved estimates
        --limit N           Limit number of estimates shown

    catalog:
        --find TEXT         Search satellite identities by substring
        --limit N           Limit number of matches shown

    sessions:
        --delete ID         Delete a recorded session by ID

    logs:
        --level LEVEL       Filter by log level (info, error, warn)
        --limit N           Limit number of log entries shown
        --tail              Stream live log events

  EXAMPLES
    skyctl status
    skyctl --json status
    skyctl --host http://192.168.1.40:8090 watch
    skyctl estimates --resolved --limit 20
    skyctl estimates --satellite STARLINK-3041
    skyctl catalog --find starlink-30
    skyctl track
    skyctl sessions
    skyctl sessions 20260311T140512Z
    skyctl sessions --delete 20260311T140512Z
    skyctl logs --level error --limit 20
    skyctl logs --tail
    skyctl pause
    skyctl resume
    skyctl flush
    skyctl refresh
    skyctl reload
    skyctl profiles
    skyctl watch --filter estimate,window_closed

`)
}
