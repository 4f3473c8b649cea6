// Command stagectl joins a room as operator or viewer from the terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/Stage/internal/client"
	"github.com/dkeye/Stage/internal/config"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
)

const usage = `commands:
  slide <songId> <index> [displayMode]
  blank
  show
  bg <image>
  text <quick slide text>
  pin
  close
  quit`

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Error().Err(err).Msg("stagectl")
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred disconnects always happen.
func run(args []string) error {
	fs := pflag.NewFlagSet("stagectl", pflag.ContinueOnError)
	role := fs.String("role", "viewer", "operator or viewer")
	room := fs.String("room", "", "room id to operate (operator; random when empty)")
	user := fs.String("user", "", "operator user id")
	pin := fs.String("pin", "", "room PIN (viewer)")
	slug := fs.String("slug", "", "room slug (viewer)")
	fs.String("url", "", "server WebSocket URL")
	fs.Int("reconnect-attempts", 0, "reconnect attempts before giving up")
	fs.Bool("debug", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *role != "operator" && *role != "viewer" {
		return fmt.Errorf("unknown role %q", *role)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	v := viper.New()
	bind(v, fs, "client.url", "url")
	bind(v, fs, "client.reconnect_attempts", "reconnect-attempts")
	if debug, _ := fs.GetBool("debug"); debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	cfg, err := config.LoadWith(v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := client.NewManager(client.OptionsFrom(cfg.Client))
	m.OnConnectionStatusChange(func(c client.StatusChange) {
		if c.Err != nil {
			log.Error().Err(c.Err).Str("status", c.Status.String()).Msg("connection")
			cancel()
			return
		}
		log.Debug().Str("status", c.Status.String()).Dur("latency", c.Latency).Msg("connection")
	})
	m.Connect()
	defer m.Disconnect()

	if *role == "operator" {
		id := *room
		if id == "" {
			id = "room-" + uuid.NewString()[:8]
		}
		return operate(ctx, cancel, m, domain.UserID(*user), domain.RoomID(id))
	}
	return watch(ctx, cancel, m, *pin, *slug)
}

func bind(v *viper.Viper, fs *pflag.FlagSet, key, flag string) {
	if f := fs.Lookup(flag); f != nil && f.Changed {
		_ = v.BindPFlag(key, f)
	}
}

func operate(ctx context.Context, cancel context.CancelFunc, m *client.Manager, user domain.UserID, room domain.RoomID) error {
	op := client.NewOperator(m, user, client.OperatorHandlers{
		Joined: func(j protocol.OperatorJoined) {
			log.Info().Str("room", string(j.RoomID)).Str("pin", string(j.PIN)).Int("viewers", j.ViewerCount).Msg("operating")
		},
		ViewerCount: func(n int) { log.Info().Int("viewers", n).Msg("viewer count") },
		PINChanged:  func(p domain.PIN) { log.Info().Str("pin", string(p)).Msg("new PIN") },
		Evicted: func() {
			log.Warn().Msg("another operator took over")
			cancel()
		},
		Closed: func() { cancel() },
		Error:  func(err error) { log.Error().Err(err).Msg("server error") },
	})
	defer op.Detach()
	if err := op.Join(room); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, usage)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
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
			done, err := command(op, line)
			if err != nil {
				log.Warn().Err(err).Msg("command failed")
			}
			if done {
				return nil
			}
		}
	}
}

// console is the part of client.Operator the command loop drives.
type console interface {
	UpdateSlide(domain.Slide) error
	Blank(on bool) error
	UpdateBackground(image string) error
	UpdateQuickSlideText(text string) error
	RegeneratePIN() error
	CloseRoom() error
	Leave() error
}

func command(op console, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "slide":
		if len(fields) < 3 {
			return false, errors.New("usage: slide <songId> <index> [displayMode]")
		}
		idx, err := strconv.Atoi(fields[2])
		if err != nil {
			return false, err
		}
		s := domain.Slide{SongID: fields[1], SlideIndex: idx}
		if len(fields) > 3 {
			s.DisplayMode = fields[3]
		}
		return false, op.UpdateSlide(s)
	case "blank":
		return false, op.Blank(true)
	case "show":
		return false, op.Blank(false)
	case "bg":
		if len(fields) < 2 {
			return false, op.UpdateBackground("")
		}
		return false, op.UpdateBackground(fields[1])
	case "text":
		return false, op.UpdateQuickSlideText(strings.TrimSpace(strings.TrimPrefix(line, "text")))
	case "pin":
		return false, op.RegeneratePIN()
	case "close":
		return true, op.CloseRoom()
	case "quit", "exit":
		return true, op.Leave()
	}
	return false, fmt.Errorf("unknown command %q", fields[0])
}

func watch(ctx context.Context, cancel context.CancelFunc, m *client.Manager, pin, slug string) error {
	key, err := domain.NewRoomKey(pin, slug)
	if err != nil {
		return fmt.Errorf("need exactly one of --pin or --slug: %w", err)
	}
	v := client.NewViewer(m, client.ViewerHandlers{
		State: func(s domain.PresentationState, seq uint64) {
			ev := log.Info().Uint64("seq", seq).Str("background", s.BackgroundImage).Str("text", s.QuickSlideText)
			if s.Slide != nil {
				ev = ev.Str("song", s.Slide.SongID).Int("slide", s.Slide.SlideIndex).Bool("blank", s.Slide.IsBlank)
			}
			ev.Msg("state")
		},
		Phase: func(p client.ViewerPhase) {
			log.Info().Str("phase", p.String()).Msg("viewer")
			if p == client.PhaseClosed {
				cancel()
			}
		},
		Error: func(err error) {
			log.Error().Err(err).Msg("server error")
			if errors.Is(err, domain.ErrRoomNotFound) {
				cancel()
			}
		},
	})
	defer v.Detach()
	if err := v.Join(key); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
