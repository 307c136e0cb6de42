package main

import (
	"flag"
	"fmt"
	"os"

	"peergate.dev/peergate/cmd"
	"peergate.dev/peergate/internal/brand"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := cmd.RunServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Serve failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Print the full effective configuration")
		checkFlags.BoolVar(verbose, "v", false, "Print the full effective configuration (short)")
		checkFlags.Parse(os.Args[2:])

		if err := cmd.RunCheck(*verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "version":
		fmt.Printf("%s version %s\n", brand.Name, brand.Version)
		fmt.Printf("Build: %s\n", brand.BuildTime)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  serve     Run the management console
  check     Validate the environment configuration
            Options: --verbose (-v)
  version   Print version information
  help      Show this help

Configuration is read from environment variables and an optional .env file
in the working directory. Run '%s check -v' to see the effective settings.
`, brand.Name, brand.Description, brand.BinaryName, brand.BinaryName)
}
