package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/flipboard/internal/app"
	"github.com/BioHazard786/flipboard/internal/command"
	"github.com/BioHazard786/flipboard/internal/config"
	"github.com/BioHazard786/flipboard/internal/connection"
	"github.com/BioHazard786/flipboard/internal/transport"
	"github.com/BioHazard786/flipboard/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:     "remote <room-id|link>",
	Aliases: []string{"r"},
	Short:   "Control a hosted board",
	Long: `Join a room as a remote. Every line you type is sent to the board as a
message; lines starting with / are commands (type /help).

Examples:
  flipboard remote ab12cd34
  flipboard remote "https://flipboard.example.com/?mode=direct&remote=ab12cd34"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room, err := config.ParseRoom(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}
		manager, err := newManager(cfg)
		if err != nil {
			return err
		}
		// A mode carried by the link wins over the configured one.
		if room.Mode != "" && flagMode == "" {
			if err := manager.SetMode(room.Mode); err != nil {
				return err
			}
		}

		remote := app.NewRemote(manager, room.ID, app.RemoteOptions{ReconnectDelay: cfg.ReconnectDelay})
		defer remote.Close()

		ctx := cmd.Context()
		stopSpinner := ui.RunConnectionSpinner(fmt.Sprintf("Joining room %s (%s)...", room.ID, manager.Mode()))
		err = remote.Connect(ctx)
		stopSpinner()
		if err != nil {
			return transport.NewError("join room", err)
		}
		ui.PrintSuccessf("Connected to room %s", room.ID)

		remote.OnStatus(func(s transport.Status) {
			if s != transport.StatusConnected {
				fmt.Println(ui.StatusNotice(s))
			}
		})
		remote.OnCommand(func(c command.Command) {
			ui.PrintInfof("host sent %s", c.Type)
		})

		stopResume := watchResume(ctx, func() {
			if err := remote.Resume(ctx); err != nil {
				ui.PrintErrorf("resume: %v", err)
			}
		})
		defer stopResume()

		console := &console{remote: remote, manager: manager, out: os.Stdout, readFile: os.ReadFile}
		return console.run(ctx, os.Stdin)
	},
}

func init() {
	rootCmd.AddCommand(remoteCmd)
}

const consoleHelp = `Anything not starting with / is sent as a message.
  /theme dark|light     switch the board theme
  /sound loud|subtle    switch the flap sound
  /clock [24h|12h]      start the live clock
  /clock stop           stop the live clock
  /board <file>         send a board from a text or JSON file
  /clear                blank the board
  /mode relay|direct    reconnect over another transport
  /status               show the connection status
  /reconnect            drop and rejoin the room
  /quit                 leave`

var errQuit = errors.New("quit")

// console turns typed lines into commands for the remote.
type console struct {
	remote   *app.Remote
	manager  *connection.Manager
	out      io.Writer
	readFile func(string) ([]byte, error)
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, ui.TitleStyle.Render(fmt.Sprintf("%s Room %s", ui.IconRoom, c.remote.RoomID())))
	fmt.Fprintln(c.out, ui.MutedStyle.Render("Type a message, or /help."))
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := c.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(c.out, ui.FormatError(err))
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.remote.SendMessage(line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
		return nil
	case "quit", "exit", "q":
		return errQuit
	case "theme":
		return c.remote.Send(command.SetTheme(command.Theme(strings.ToLower(arg))))
	case "sound":
		return c.remote.Send(command.SetSound(command.Sound(strings.ToLower(arg))))
	case "clock":
		if strings.EqualFold(arg, "stop") {
			return c.remote.Send(command.StopLiveClock())
		}
		return c.remote.Send(command.StartLiveClock(strings.ToLower(arg)))
	case "clear":
		return c.remote.Send(command.UpdateBoard(command.EmptyBoard()))
	case "board":
		board, err := c.loadBoard(arg)
		if err != nil {
			return err
		}
		return c.remote.Send(command.UpdateBoard(board))
	case "status":
		fmt.Fprintf(c.out, "%s %s over %s\n", ui.IconConnect, c.remote.Status(), c.manager.Mode())
		return nil
	case "reconnect":
		return c.remote.Reconnect(ctx)
	case "mode":
		mode, err := connection.ParseMode(arg)
		if err != nil {
			return err
		}
		c.manager.DestroyAll()
		if err := c.manager.SetMode(mode); err != nil {
			return err
		}
		return c.remote.Connect(ctx)
	default:
		return fmt.Errorf("unknown command /%s, try /help", name)
	}
}

// loadBoard reads a board file. A .json file holds a [][]{char,color}
// grid; anything else is drawn as text, one line per row.
func (c *console) loadBoard(path string) (command.Board, error) {
	if path == "" {
		return nil, fmt.Errorf("usage: /board <file>")
	}
	data, err := c.readFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var board command.Board
		if err := json.Unmarshal(data, &board); err != nil {
			return nil, fmt.Errorf("invalid board file: %w", err)
		}
		return board.Normalize(), nil
	}
	return command.ParseBoardText(string(data)), nil
}
