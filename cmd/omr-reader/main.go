package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ironsheep/omr-reader/internal/config"
	"github.com/ironsheep/omr-reader/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "omr-reader %s\n", Version)
		fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
		return exitOK
	case "--help", "-h", "help":
		usage(stdout)
		return exitOK
	}

	// Logging goes to stderr (stdout carries results and the MCP protocol)
	logger := log.New(stderr, "", log.Ldate|log.Ltime|log.Lshortfile)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Printf("Configuration error: %v", err)
		return exitUsage
	}
	if cfg.Debug() {
		logger.Printf("omr-reader v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	c := &cli{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}
	switch cmd {
	case "serve":
		srvLogger := logger
		if !cfg.Debug() {
			srvLogger = log.New(io.Discard, "", 0)
		}
		if err := server.New(cfg, srvLogger).Run(); err != nil {
			logger.Printf("Server error: %v", err)
			return exitFailure
		}
		return exitOK
	case "read":
		return c.read(args)
	case "annotate":
		return c.annotate(args)
	case "align":
		return c.align(args)
	case "detect":
		return c.detect(args)
	case "validate":
		return c.validate(args)
	case "marker":
		return c.marker(args)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "omr-reader - read photographed OMR answer sheets")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: omr-reader <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                                  Run the MCP server on stdin/stdout (default)")
	fmt.Fprintln(w, "  read -template T.json PHOTO            Read a sheet and print the JSON report")
	fmt.Fprintln(w, "  annotate -template T.json -out O PHOTO Draw bubble states on the aligned sheet")
	fmt.Fprintln(w, "  align -template T.json [-out O] PHOTO  Rectify a photo onto the template canvas")
	fmt.Fprintln(w, "  detect [-dictionary D] PHOTO           List the fiducial markers in a photo")
	fmt.Fprintln(w, "  validate T.json                        Check template metadata")
	fmt.Fprintln(w, "  marker -id N [-side PX] -out O         Render a marker as PNG")
	fmt.Fprintln(w, "  version                                Print version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  OMR_CONFIG=/path/config.json   Read parameter overrides")
	fmt.Fprintln(w, "  OMR_LOG_LEVEL=debug            Enable debug logging")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit codes: 0 ok, 1 failure, 2 usage, 3 invalid metadata, 4 invalid image,")
	fmt.Fprintln(w, "5 marker detection failed, 6 capture quality, 7 homography, 8 bubble read,")
	fmt.Fprintln(w, "9 precondition, 10 sheet needs review (read -strict)")
}
