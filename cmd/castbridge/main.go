package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

// These values are set at compile-time.
var (
	version string
	build   string
)

func main() {
	check(newApp().Run(os.Args))
}

func check(err error) {
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Encountered error(s): %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionPrinter = func(cCtx *cli.Context) {
		fmt.Fprintf(cCtx.App.Writer, "%s (%s)\n", version, build)
	}

	return &cli.App{
		Name:                   "castbridge",
		Usage:                  "Cast media to a Chromecast from the terminal.",
		Version:                version,
		Compiled:               time.Now(),
		UseShortOptionHandling: true,
		Suggest:                true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List the Chromecast devices found on the network.",
			},
			&cli.StringFlag{
				Name:    "device",
				Aliases: []string{"t"},
				EnvVars: []string{"CASTBRIDGE_DEVICE"},
				Usage:   "Cast to a specific device address. (For example, 192.168.1.40:8009)",
			},
			&cli.StringFlag{
				Name:    "media",
				Aliases: []string{"m"},
				Usage:   "URL of the media to cast.",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Media title. Defaults to the media file name.",
			},
			&cli.StringFlag{
				Name:  "subtitle",
				Usage: "Media subtitle.",
			},
			&cli.StringFlag{
				Name:  "poster",
				Usage: "URL of a poster image.",
			},
			&cli.StringFlag{
				Name:  "content-type",
				Usage: "Media content type. Probed from the URL when not set.",
			},
			&cli.IntFlag{
				Name:  "position",
				Usage: "Start position in seconds.",
			},
			&cli.Float64Flag{
				Name:  "duration",
				Usage: "Media duration in seconds.",
			},
			&cli.StringFlag{
				Name:  "custom",
				Usage: "Custom data for the receiver, as a JSON object.",
			},
			&cli.BoolFlag{
				Name:  "headless",
				Usage: "Print events instead of starting the interactive screen.",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Configuration directory.",
			},
			&cli.DurationFlag{
				Name:  "discovery-timeout",
				Usage: "How long to wait for devices when none is given.",
			},
			&cli.DurationFlag{
				Name:  "status-interval",
				Usage: "How often to poll the device for media status.",
			},
			&cli.StringFlag{
				Name:    "log-file",
				EnvVars: []string{"CASTBRIDGE_LOG_FILE"},
				Usage:   "Write debug logs to a file.",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging.",
			},
		},
		Action: run,
	}
}
