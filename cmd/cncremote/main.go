package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/guseggert/cncremote/command"
	"github.com/guseggert/cncremote/config"
	"github.com/guseggert/cncremote/controller"
	inet "github.com/guseggert/cncremote/internal/net"
	"github.com/guseggert/cncremote/remote"
	"github.com/guseggert/cncremote/ui"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "cncremote",
		Usage: "remote control for a CNC or 3D printer controller over WebSockets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Usage:   "The controller host[:port] or ws:// URL.",
				EnvVars: []string{"CNCREMOTE_HOST"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a profile. Defaults to the nearest " + config.FileName + ".",
				EnvVars: []string{"CNCREMOTE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level, overriding the profile.",
				EnvVars: []string{"CNCREMOTE_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			consoleCommand,
			runCommand,
			lsCommand,
			playCommand,
			uploadCommand,
			fetchCommand,
			killCommand,
			tempCommand,
			serveCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type env struct {
	profile config.Profile
	logger  *zap.Logger
	console *ui.Console
	client  *remote.Client
}

func loadProfile(cctx *cli.Context) (config.Profile, error) {
	if path := cctx.String("config"); path != "" {
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return config.Profile{}, fmt.Errorf("getting working dir: %w", err)
	}
	p, _, err := config.LoadNearest(wd)
	return p, err
}

func newLogger(cctx *cli.Context, p config.Profile) (*zap.Logger, error) {
	if l := cctx.String("log-level"); l != "" {
		p.LogLevel = l
	}
	level, err := p.Level()
	if err != nil {
		return nil, err
	}
	logger, err := zap.NewDevelopment(zap.IncreaseLevel(level))
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// newEnv builds a client for the configured host with output going to stdout.
func newEnv(cctx *cli.Context) (*env, error) {
	p, err := loadProfile(cctx)
	if err != nil {
		return nil, err
	}
	if h := cctx.String("host"); h != "" {
		p.Host = h
	}
	if p.Host == "" {
		return nil, errors.New("no host given, set --host, CNCREMOTE_HOST or host in " + config.FileName)
	}
	logger, err := newLogger(cctx, p)
	if err != nil {
		return nil, err
	}
	console := ui.NewConsole(os.Stdout)
	opts := append(p.ClientOptions(), remote.WithLogger(logger), remote.WithSinks(ui.All(console)))
	return &env{
		profile: p,
		logger:  logger,
		console: console,
		client:  remote.New(p.Host, opts...),
	}, nil
}

// withClient connects, runs f, and lets replies drain for wait before disconnecting.
func withClient(cctx *cli.Context, wait time.Duration, f func(ctx context.Context, e *env) error) error {
	e, err := newEnv(cctx)
	if err != nil {
		return err
	}
	defer e.logger.Sync()
	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt)
	defer stop()

	if _, err := e.client.Connect(ctx); err != nil {
		return err
	}
	defer e.client.Close()

	if err := f(ctx, e); err != nil {
		return err
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
	return nil
}

var waitFlag = &cli.DurationFlag{
	Name:  "wait",
	Usage: "How long to wait for replies before disconnecting.",
	Value: time.Second,
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "send G-code lines and print the replies",
	ArgsUsage: "<line>...",
	Flags: []cli.Flag{
		waitFlag,
		&cli.BoolFlag{
			Name:  "silent",
			Usage: "Drop the replies.",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() == 0 {
			return errors.New("no command given")
		}
		return withClient(cctx, cctx.Duration("wait"), func(ctx context.Context, e *env) error {
			for _, line := range cctx.Args().Slice() {
				if err := e.client.Commands().Run(ctx, line, cctx.Bool("silent")); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var lsCommand = &cli.Command{
	Name:  "ls",
	Usage: "list the G-code files on the controller's SD card",
	Action: func(cctx *cli.Context) error {
		return withClient(cctx, 0, func(ctx context.Context, e *env) error {
			lctx, cancel := e.profile.ListContext(ctx)
			defer cancel()
			names, err := e.client.Commands().ListFiles(lctx, command.ListFilesCommand)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		})
	},
}

var playCommand = &cli.Command{
	Name:      "play",
	Usage:     "start a job from the SD card",
	ArgsUsage: "<file>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return errors.New("expected exactly one file name")
		}
		return withClient(cctx, 0, func(ctx context.Context, e *env) error {
			return e.client.Commands().Play(ctx, cctx.Args().First())
		})
	},
}

var killCommand = &cli.Command{
	Name:  "kill",
	Usage: "abort the running job",
	Flags: []cli.Flag{waitFlag},
	Action: func(cctx *cli.Context) error {
		return withClient(cctx, cctx.Duration("wait"), func(ctx context.Context, e *env) error {
			return e.client.Commands().Kill(ctx)
		})
	},
}

var tempCommand = &cli.Command{
	Name:  "temp",
	Usage: "print the hotend and bed temperatures",
	Flags: []cli.Flag{waitFlag},
	Action: func(cctx *cli.Context) error {
		return withClient(cctx, cctx.Duration("wait"), func(ctx context.Context, e *env) error {
			return e.client.Commands().GetTemperature(ctx)
		})
	},
}

var uploadCommand = &cli.Command{
	Name:      "upload",
	Usage:     "upload a file to the controller's SD card",
	ArgsUsage: "<path>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return errors.New("expected exactly one path")
		}
		e, err := newEnv(cctx)
		if err != nil {
			return err
		}
		defer e.logger.Sync()
		defer e.client.Close()
		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt)
		defer stop()

		res, err := e.client.UploadFile(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		e.logger.Sugar().Debugw("upload done", "Transfer", res.Transfer.ID.String(), "Bytes", res.Transfer.BytesSent(), "Code", res.CloseCode)
		return nil
	},
}

var fetchCommand = &cli.Command{
	Name:      "fetch",
	Usage:     "download a stored file from the controller",
	ArgsUsage: "<file> [dest]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() < 1 || cctx.NArg() > 2 {
			return errors.New("expected a file name and an optional destination")
		}
		e, err := newEnv(cctx)
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		name := cctx.Args().Get(0)
		dest := cctx.Args().Get(1)
		if dest == "" {
			dest = filepath.Base(name)
		}
		f, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("creating %q: %w", dest, err)
		}
		defer f.Close()

		n, err := e.client.Fetch(cctx.Context, name, f)
		if err != nil {
			return err
		}
		e.logger.Sugar().Debugw("fetched file", "Name", name, "Dest", dest, "Bytes", n)
		return f.Close()
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run a fake controller for trying the client out",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen-addr",
			Usage: "The address for the HTTP server to listen on. Defaults to a free loopback port.",
		},
		&cli.StringFlag{
			Name:  "upload-dir",
			Usage: "Where uploaded files are stored. Defaults to a temp dir.",
		},
		&cli.StringSliceFlag{
			Name:  "file",
			Usage: "A file name to include in the listing.",
		},
	},
	Action: func(cctx *cli.Context) error {
		p, err := loadProfile(cctx)
		if err != nil {
			return err
		}
		logger, err := newLogger(cctx, p)
		if err != nil {
			return err
		}
		defer logger.Sync()

		addr := cctx.String("listen-addr")
		if addr == "" {
			addr, err = inet.FreeLoopbackAddr()
			if err != nil {
				return err
			}
		}
		c, err := controller.New(
			controller.WithLogger(logger),
			controller.WithListenAddr(addr),
			controller.WithUploadDir(cctx.String("upload-dir")),
			controller.WithFiles(cctx.StringSlice("file")...),
		)
		if err != nil {
			return fmt.Errorf("building controller: %w", err)
		}

		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt)
		defer stop()
		go func() {
			<-ctx.Done()
			c.Stop()
		}()
		logger.Sugar().Infow("serving fake controller", "Addr", addr, "UploadDir", c.UploadDir())
		return c.Run()
	},
}

var consoleCommand = &cli.Command{
	Name:  "console",
	Usage: "interactive session: G-code lines are sent as typed, /help lists the other commands",
	Action: func(cctx *cli.Context) error {
		e, err := newEnv(cctx)
		if err != nil {
			return err
		}
		defer e.logger.Sync()
		defer e.client.Close()
		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt)
		defer stop()

		if _, err := e.client.Connect(ctx); err != nil {
			return err
		}

		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				quit, err := consoleLine(ctx, e, strings.TrimSpace(line))
				if err != nil {
					e.console.ReportError(err.Error())
				}
				if quit {
					return nil
				}
			}
		}
	},
}

const consoleHelp = `/connect          toggle the command channel
/status           query the machine state
/kill             abort the running job
/unlock           clear an alarm
/temp             report temperatures
/jog <axes>       relative move, e.g. /jog X10 Y-5
/extrude <mm>     extrude (negative retracts)
/heat <hotend|bed> <temp>
/off              motors off
/ls               list SD card files
/play <file>      start a job
/upload <path>    upload a file
/quit`

func consoleLine(ctx context.Context, e *env, line string) (bool, error) {
	cmds := e.client.Commands()
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, cmds.Run(ctx, line, false)
	}

	fields := strings.Fields(line)
	args := fields[1:]
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Println(consoleHelp)
	case "/connect":
		_, err := e.client.Connect(ctx)
		return false, err
	case "/status":
		return false, cmds.StatusQuery(ctx)
	case "/kill":
		return false, cmds.Kill(ctx)
	case "/unlock":
		return false, cmds.Unlock(ctx)
	case "/temp":
		return false, cmds.GetTemperature(ctx)
	case "/off":
		return false, cmds.MotorsOff(ctx)
	case "/jog":
		if len(args) == 0 {
			return false, errors.New("usage: /jog <axes>")
		}
		feed := e.profile.Feeds.XY
		if strings.HasPrefix(strings.ToUpper(args[0]), "Z") {
			feed = e.profile.Feeds.Z
		}
		return false, cmds.Jog(ctx, strings.Join(args, " "), feed)
	case "/extrude":
		var mm float64
		if len(args) != 1 {
			return false, errors.New("usage: /extrude <mm>")
		}
		if _, err := fmt.Sscanf(args[0], "%g", &mm); err != nil {
			return false, fmt.Errorf("parsing length: %w", err)
		}
		return false, cmds.Extrude(ctx, mm, e.profile.Feeds.Extrude)
	case "/heat":
		if len(args) != 2 {
			return false, errors.New("usage: /heat <hotend|bed> <temp>")
		}
		h := command.Hotend
		if args[0] == "bed" {
			h = command.Bed
		}
		var temp float64
		if _, err := fmt.Sscanf(args[1], "%g", &temp); err != nil {
			return false, fmt.Errorf("parsing temperature: %w", err)
		}
		if temp == 0 {
			return false, cmds.HeaterOff(ctx, h)
		}
		return false, cmds.SetHeater(ctx, h, temp)
	case "/ls":
		return false, cmds.RefreshFiles(ctx, e.console, nil)
	case "/play":
		if len(args) != 1 {
			return false, errors.New("usage: /play <file>")
		}
		return false, cmds.Play(ctx, args[0])
	case "/upload":
		if len(args) != 1 {
			return false, errors.New("usage: /upload <path>")
		}
		_, err := e.client.UploadFile(ctx, args[0])
		return false, err
	default:
		return false, fmt.Errorf("unknown command %q, try /help", fields[0])
	}
	return false, nil
}
