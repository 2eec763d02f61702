package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "get":
		return runGet(args[1:])
	case "status":
		return runStatus(args[1:])
	case "logs":
		return runLogs(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "keygen":
		return runKeygen(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("ytdl-web: run youtube-dl jobs and serve their progress, logs and archives")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  ytdl-web doctor")
	fmt.Println("  ytdl-web serve")
	fmt.Println("  ytdl-web get <url> [--flag --format=best]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     start the HTTP API")
	fmt.Println("  get       run one download in the foreground and watch its progress")
	fmt.Println("  status    show job metadata (and progress when the store has it)")
	fmt.Println("  logs      print a job's debug and download logs")
	fmt.Println("  doctor    run dependency and filesystem preflight checks")
	fmt.Println("  keygen    print new job keys or sanitize one")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Settings come from the environment and an optional .env file")
	fmt.Println("  - Use --json on commands for machine-readable output")
}
