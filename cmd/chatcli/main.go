// chatcli is a console harness for the realtime session core: it connects
// a session, opens a conversation, drives the discovery deck and prints
// inbound traffic. Useful against a staging backend.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/matchlink/internal/config"
	"github.com/ivankudzin/matchlink/internal/discovery"
	"github.com/ivankudzin/matchlink/internal/domain"
	"github.com/ivankudzin/matchlink/internal/domain/enums"
	"github.com/ivankudzin/matchlink/internal/infra/httpclient"
	"github.com/ivankudzin/matchlink/internal/infra/logger"
	"github.com/ivankudzin/matchlink/internal/metrics"
	"github.com/ivankudzin/matchlink/internal/realtime"
	"github.com/ivankudzin/matchlink/internal/rest"
	"github.com/ivankudzin/matchlink/internal/session"
	"github.com/ivankudzin/matchlink/internal/toasts"
)

func main() {
	matchID := flag.Int64("match", 0, "conversation to open on start")
	lat := flag.Float64("lat", 53.9006, "viewer latitude")
	lon := flag.Float64("lon", 27.5590, "viewer longitude")
	flag.Parse()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Env, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	token := os.Getenv("MATCHLINK_TOKEN")
	if token == "" {
		log.Fatal("MATCHLINK_TOKEN is required")
	}

	metrics.Register(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restClient := rest.NewClient(httpclient.NewAuthenticated(cfg.REST.Timeout, token), cfg.REST.BaseURL)
	manager := realtime.NewManager(cfg.Realtime, log)
	toastQueue := toasts.NewQueue(cfg.Toasts.DisplayDuration, func(items []toasts.Item) {
		for _, item := range items {
			fmt.Printf("  [toast] %s: %s\n", item.Title, item.Body)
		}
	})

	sess, err := session.New(cfg, token, session.User{}, session.Dependencies{
		Channel: manager,
		History: restClient,
		Toasts:  toastQueue,
	}, log)
	if err != nil {
		log.Fatal("create session", zap.Error(err))
	}
	defer sess.Close()

	stateSub := sess.OnState(func(state realtime.State) {
		fmt.Printf("  [connection] %s\n", state)
	})
	defer stateSub.Cancel()
	offlineSub := sess.OnOffline(func(err error) {
		fmt.Printf("  [offline] %v\n", err)
	})
	defer offlineSub.Cancel()

	if err := sess.Connect(ctx); err != nil {
		log.Fatal("connect session", zap.Error(err))
	}

	deck := discovery.NewService(discovery.Dependencies{
		Source: restClient,
		Swipes: restClient,
		Location: discovery.LocationFunc(func(context.Context) (domain.Coordinate, error) {
			return domain.Coordinate{Lat: *lat, Lon: *lon}, nil
		}),
	}, discovery.Config{
		RadiusDefaultKM: cfg.Discovery.RadiusDefaultKM,
		RadiusMaxKM:     cfg.Discovery.RadiusMaxKM,
		PageSize:        cfg.REST.PageSize,
	}, log)

	var conv *session.Conversation
	if *matchID > 0 {
		conv, err = sess.OpenConversation(ctx, *matchID)
		if err != nil {
			log.Fatal("open conversation", zap.Error(err))
		}
		go printMessages(ctx, conv)
	}

	fmt.Println("commands: /deck /like /pass /super /rewind /radius <km> | anything else is sent as a message")
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			handleLine(ctx, line, sess, conv, deck, log)
		}
	}
}

func handleLine(ctx context.Context, line string, sess *session.Session, conv *session.Conversation, deck *discovery.Service, log *zap.Logger) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "/deck":
		if err := deck.Load(ctx); err != nil {
			log.Warn("load deck", zap.Error(err))
			return
		}
		printCurrent(deck)
	case "/like", "/pass", "/super":
		action := map[string]enums.SwipeAction{
			"/like":  enums.SwipeActionLike,
			"/pass":  enums.SwipeActionDislike,
			"/super": enums.SwipeActionSuperLike,
		}[fields[0]]
		outcome, err := deck.Swipe(ctx, sess.User().ID, action)
		if err != nil {
			log.Warn("swipe", zap.Error(err))
			return
		}
		if outcome.MatchCreated {
			fmt.Printf("  [match] it's a match with %s!\n", outcome.Swiped.DisplayName)
		}
		printCurrent(deck)
	case "/rewind":
		if candidate, ok := deck.Rewind(); ok {
			fmt.Printf("  [deck] back to %s\n", candidate.DisplayName)
		}
	case "/radius":
		if len(fields) < 2 {
			return
		}
		var km float64
		if _, err := fmt.Sscanf(fields[1], "%f", &km); err != nil {
			return
		}
		if err := deck.SetRadius(km); err != nil {
			log.Warn("set radius", zap.Error(err))
			return
		}
		printCurrent(deck)
	default:
		if conv == nil {
			fmt.Println("  no conversation open, start with -match")
			return
		}
		conv.Keystroke()
		conv.Send(line)
		conv.Blur()
	}
}

func printCurrent(deck *discovery.Service) {
	candidate, ok := deck.Current()
	if !ok {
		fmt.Println("  [deck] no more profiles")
		return
	}
	fmt.Printf("  [deck] %s, %d — %.1f km away (%d left)\n",
		candidate.DisplayName, candidate.Age, candidate.DistanceKM, deck.Remaining())
}

func printMessages(ctx context.Context, conv *session.Conversation) {
	seen := 0
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			messages := conv.Buffer.Messages()
			for _, msg := range messages[seen:] {
				fmt.Printf("  [%s] %s\n", msg.SenderName, msg.Content)
			}
			seen = len(messages)
			if peers := conv.Remote.Peers(); len(peers) > 0 {
				fmt.Println("  [typing...]")
			}
		}
	}
}
