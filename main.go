package main

import (
	"fmt"
	"os"

	"github.com/MixinNetwork/tcpipc/config"
	"github.com/MixinNetwork/tcpipc/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	defaultRPC := os.Getenv("TCPIPC_RPC")
	if defaultRPC == "" {
		defaultRPC = "http://127.0.0.1:9101"
	}

	app := cli.NewApp()
	app.Name = "tcpipc"
	app.Usage = "A point to point framed message link over TCP."
	app.Version = config.BuildVersion
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "the TOML configuration `FILE`",
		},
		&cli.IntFlag{
			Name:    "log",
			Aliases: []string{"l"},
			Value:   logger.INFO,
			Usage:   "the log level",
		},
		&cli.StringFlag{
			Name:  "filter",
			Usage: "the RE2 regex pattern to filter log",
		},
		&cli.IntFlag{
			Name:  "limiter",
			Usage: "the maximum repeats of the same log line, 0 for no limit",
		},
		&cli.StringFlag{
			Name:    "node",
			Aliases: []string{"n"},
			Value:   defaultRPC,
			Usage:   "the RPC endpoint, and the default value is read from environment variable TCPIPC_RPC",
		},
	}
	linkFlags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "the link port",
		},
		&cli.StringFlag{
			Name:  "unix",
			Usage: "the unix socket `PATH` used instead of TCP",
		},
		&cli.StringFlag{
			Name:    "journal",
			Aliases: []string{"j"},
			Usage:   "the journal data directory",
		},
		&cli.IntFlag{
			Name:  "rpc",
			Usage: "the local RPC port to inspect the link, 0 to disable",
		},
	}
	addressFlag := &cli.StringFlag{
		Name:    "address",
		Aliases: []string{"a"},
		Usage:   "the IPv4 address of the server",
	}
	app.EnableBashCompletion = true
	app.Commands = []*cli.Command{
		{
			Name:   "listen",
			Usage:  "Accept exactly one peer and exchange messages with it",
			Action: listenCmd,
			Flags:  linkFlags,
		},
		{
			Name:   "connect",
			Usage:  "Connect to a listening peer and exchange messages with it",
			Action: connectCmd,
			Flags:  append([]cli.Flag{addressFlag}, linkFlags...),
		},
		{
			Name:   "run",
			Usage:  "Open the link with the role from the configuration file",
			Action: runCmd,
		},
		{
			Name:   "send",
			Usage:  "Connect, send a single message and close",
			Action: sendCmd,
			Flags: []cli.Flag{
				addressFlag,
				&cli.IntFlag{
					Name:    "port",
					Aliases: []string{"p"},
					Usage:   "the link port",
				},
				&cli.UintFlag{
					Name:  "id",
					Usage: "the message id",
				},
				&cli.StringFlag{
					Name:  "data",
					Usage: "the message payload `HEX`",
				},
			},
		},
		{
			Name:   "replay",
			Usage:  "Send all inbound messages of a journal to a peer",
			Action: replayCmd,
			Flags: []cli.Flag{
				addressFlag,
				&cli.IntFlag{
					Name:    "port",
					Aliases: []string{"p"},
					Usage:   "the link port",
				},
				&cli.StringFlag{
					Name:    "journal",
					Aliases: []string{"j"},
					Usage:   "the journal data directory",
				},
				&cli.Uint64Flag{
					Name:  "offset",
					Usage: "the first journal sequence to replay",
				},
			},
		},
		{
			Name:   "journal",
			Usage:  "Dump the records of a journal",
			Action: journalCmd,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "journal",
					Aliases: []string{"j"},
					Usage:   "the journal data directory",
				},
				&cli.Uint64Flag{
					Name:  "offset",
					Usage: "the first journal sequence",
				},
				&cli.IntFlag{
					Name:  "limit",
					Value: config.JournalPageSize,
					Usage: "the maximum records to dump",
				},
			},
		},
		{
			Name:   "getinfo",
			Usage:  "Get info from the link RPC endpoint",
			Action: getInfoCmd,
		},
		{
			Name:   "sendmessage",
			Usage:  "Send a message through the link RPC endpoint",
			Action: sendMessageCmd,
			Flags: []cli.Flag{
				&cli.UintFlag{
					Name:  "id",
					Usage: "the message id",
				},
				&cli.StringFlag{
					Name:  "data",
					Usage: "the message payload `HEX`",
				},
			},
		},
		{
			Name:   "receivemessage",
			Usage:  "Take the oldest queued message from the link RPC endpoint",
			Action: receiveMessageCmd,
		},
		{
			Name:   "listmessages",
			Usage:  "List journal records from the link RPC endpoint",
			Action: listMessagesCmd,
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "offset",
					Usage: "the first journal sequence",
				},
				&cli.IntFlag{
					Name:  "limit",
					Value: config.JournalPageSize,
					Usage: "the maximum records to list",
				},
			},
		},
	}
	return app
}
