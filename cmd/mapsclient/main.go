package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/maps-app/client/internal/config"
	authmodel "github.com/zhouzirui/maps-app/client/internal/model/auth"
	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
	roommodel "github.com/zhouzirui/maps-app/client/internal/model/room"
	"github.com/zhouzirui/maps-app/client/internal/service/api"
	"github.com/zhouzirui/maps-app/client/internal/service/auth"
	"github.com/zhouzirui/maps-app/client/internal/service/geo"
	"github.com/zhouzirui/maps-app/client/internal/service/identity"
	"github.com/zhouzirui/maps-app/client/internal/service/realtime"
	"github.com/zhouzirui/maps-app/client/internal/storage"
	"github.com/zhouzirui/maps-app/client/pkg/utils"
)

type flags struct {
	email    string
	password string
	room     string
	theme    string
	watch    bool
}

func main() {
	var f flags
	flag.StringVar(&f.email, "email", "", "sign in with this email when no stored session is valid")
	flag.StringVar(&f.password, "password", "", "password for -email")
	flag.StringVar(&f.room, "room", "", "room to join once connected")
	flag.StringVar(&f.theme, "theme", "", "set the stored theme: light, dark or toggle")
	flag.BoolVar(&f.watch, "watch", false, "share the configured location on every watch tick")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.App)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, f, logger); err != nil {
		logger.Fatal("maps client stopped", zap.Error(err))
	}
}

func newLogger(app config.AppConfig) (*zap.Logger, error) {
	if app.Production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, cfg *config.Config, f flags, logger *zap.Logger) error {
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := applyTheme(store, f.theme); err != nil {
		return err
	}

	// The gateway reads the credential through the holder, which in turn
	// calls the gateway; the closures are only invoked at request time.
	var holder *auth.Holder
	client := api.New(api.Config{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		UploadTimeout: cfg.API.UploadTimeout,
	},
		api.WithTokenSource(func() string { return holder.Token() }),
		api.WithUnauthorizedHandler(func() { holder.HandleUnauthorized() }),
		api.WithLogger(logger),
	)

	if !cfg.Firebase.Enabled() && cfg.Firebase.EmulatorHost == "" {
		logger.Warn("firebase credentials not configured, sign-in will fail")
	}
	firebase := identity.NewFirebase(identity.Config{
		APIKey:       cfg.Firebase.APIKey,
		EmulatorHost: cfg.Firebase.EmulatorHost,
		Timeout:      cfg.API.Timeout,
	}, nil, logger)

	holder = auth.NewHolder(firebase, client.Auth, store, auth.WithLogger(logger))

	session, err := authenticate(ctx, holder, f)
	if err != nil {
		return err
	}

	stopRefresh := keepFresh(ctx, holder, utils.SystemClock(), logger)
	defer stopRefresh()

	out := newConsole(os.Stdout)
	out.printf("signed in as %s (%s)", displayName(session.User), session.User.Role)

	var engine *realtime.Engine
	engine = realtime.NewEngine(
		realtime.NewWebSocketTransport(realtime.WebSocketConfig{
			URL:               cfg.Socket.URL,
			ConnectTimeout:    cfg.Socket.ConnectTimeout,
			ReconnectAttempts: cfg.Socket.ReconnectAttempts,
			ReconnectDelay:    cfg.Socket.ReconnectDelay,
		}, logger),
		holder,
		realtime.Options{
			Logger:            logger,
			HeartbeatInterval: cfg.Socket.HeartbeatInterval,
			OnNotice:          out.notice,
			OnEvent: func(ev realtime.Event) {
				out.event(ev)
				// room state does not survive a reconnect
				if _, ok := ev.(realtime.ConnectEvent); ok && f.room != "" {
					go func() {
						if err := engine.JoinRoom(f.room, nil); err != nil {
							logger.Warn("join room failed", zap.String("room", f.room), zap.Error(err))
						}
					}()
				}
			},
		},
	)
	if err := engine.Connect(); err != nil {
		return err
	}
	defer engine.Disconnect()

	center := geomodel.Point{Lat: cfg.Location.DefaultLat, Lng: cfg.Location.DefaultLng}
	if f.watch {
		locator := geo.NewLocator(geo.StaticSource{
			Location: geomodel.Location{Latitude: center.Lat, Longitude: center.Lng},
		}, nil, logger)
		opts := geo.DefaultWatchOptions()
		opts.Interval = cfg.Location.UpdateInterval
		cancel, err := locator.WatchLocation(func(loc geomodel.Location) {
			shareLocation(ctx, engine, holder, loc, logger)
		}, opts)
		if err != nil {
			return err
		}
		defer cancel()
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			cmd, err := parseCommand(line)
			if err != nil {
				out.printf("%v", err)
				continue
			}
			if cmd.kind == cmdQuit {
				return nil
			}
			execute(ctx, cmd, engine, holder, center, out, logger)
		}
	}
}

func applyTheme(store *storage.Store, value string) error {
	switch value {
	case "":
		return nil
	case "toggle":
		_, err := store.ToggleTheme()
		return err
	default:
		return store.SetTheme(storage.Theme(value))
	}
}

// authenticate prefers the persisted session and falls back to the flags.
func authenticate(ctx context.Context, holder *auth.Holder, f flags) (authmodel.Session, error) {
	if session, ok := holder.Restore(ctx); ok {
		return session, nil
	}
	if f.email == "" {
		return authmodel.Session{}, errors.New("no stored session, pass -email and -password")
	}
	session, err := holder.SignIn(ctx, authmodel.Credentials{Email: f.email, Password: f.password})
	if err != nil {
		return authmodel.Session{}, fmt.Errorf("sign in: %s", api.Message(err, err.Error()))
	}
	return session, nil
}

func execute(ctx context.Context, cmd command, engine *realtime.Engine, holder *auth.Holder, center geomodel.Point, out *console, logger *zap.Logger) {
	var err error
	switch cmd.kind {
	case cmdSay:
		err = engine.SendMessage(cmd.text, roommodel.MessageText)
	case cmdLeave:
		err = engine.LeaveRoom()
	case cmdTyping:
		err = engine.SetTyping(cmd.typing)
	case cmdLocation:
		loc := geomodel.Location{Latitude: cmd.point.Lat, Longitude: cmd.point.Lng}
		shareLocation(ctx, engine, holder, loc, logger)
		out.printf("%s from the map center", geo.FormatDistance(geo.Distance(center, cmd.point)))
	case cmdRead:
		engine.MarkAllRead()
	case cmdPause:
		engine.PauseHeartbeat()
	case cmdResume:
		engine.ResumeHeartbeat()
	}
	// connection and room preconditions already raised a notice
	if err != nil && !errors.Is(err, realtime.ErrNotConnected) && !errors.Is(err, realtime.ErrNotInRoom) {
		out.printf("%v", err)
	}
}

func shareLocation(ctx context.Context, engine *realtime.Engine, holder *auth.Holder, loc geomodel.Location, logger *zap.Logger) {
	loc.Timestamp = time.Now()
	if err := engine.UpdateLocation(loc); err != nil {
		logger.Debug("realtime location skipped", zap.Error(err))
	}
	if _, err := holder.UpdateLocation(ctx, loc); err != nil {
		logger.Warn("profile location update failed", zap.Error(err))
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func displayName(u authmodel.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// console serialises writes from the engine callbacks and the command loop.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *console) notice(n realtime.Notice) {
	c.printf("[%s] %s", n.Level, n.Message)
}

func (c *console) event(ev realtime.Event) {
	switch e := ev.(type) {
	case realtime.JoinedRoomEvent:
		c.printf("joined %s with %d participants", e.Room.Name, len(e.Participants))
		for _, m := range e.Messages {
			c.message(m)
		}
	case realtime.NewMessageEvent:
		c.message(e.Message)
	case realtime.UserJoinedEvent:
		c.printf("* %s joined", e.Participant.DisplayName)
	case realtime.UserLeftEvent:
		c.printf("* %s left", e.DisplayName)
	case realtime.UserTypingEvent:
		if e.IsTyping {
			c.printf("* %s is typing", e.DisplayName)
		}
	case realtime.LocationUpdateEvent:
		c.printf("* %s is at %.5f,%.5f", e.UserID, e.Location.Latitude, e.Location.Longitude)
	case realtime.RoomDeletedEvent:
		c.printf("* room %s was deleted", e.RoomID)
	}
}

func (c *console) message(m roommodel.Message) {
	if m.Type == roommodel.MessageSystem {
		c.printf("* %s", m.Content)
		return
	}
	c.printf("%s %s: %s", m.Timestamp.Local().Format("15:04"), m.SenderName, m.Content)
}
