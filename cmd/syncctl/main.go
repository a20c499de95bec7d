// Command syncctl drives a sync session from the terminal against a user
// service. Configuration comes from the environment (see internal/config).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/clients/realtime"
	"github.com/yungbote/neurobridge-sync/internal/clients/userservice"
	"github.com/yungbote/neurobridge-sync/internal/config"
	"github.com/yungbote/neurobridge-sync/internal/data/local"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/observability"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/platform/shutdown"
	"github.com/yungbote/neurobridge-sync/internal/session"
)

const usage = `usage: syncctl <command> [flags]

commands:
  summary                 print the progress summary and derived insights
  trends   -days N        print per-topic trends over the last N days
  feed     -q TEXT -pages N
                          print the activity feed
  record   -type T -topic X -duration D
                          record an activity (queued when offline)
  consent  [-grant T | -withdraw T] -purpose P
                          print or change consent
  watch                   stream state changes until interrupted
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(2)
	}
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Printf("config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()
	if otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{ServiceName: "syncctl"}); otelShutdown != nil {
		defer otelShutdown(context.Background())
	}

	if err := run(ctx, cfg, log, os.Args[1], os.Args[2:]); err != nil {
		fmt.Printf("%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	var (
		days     = fs.Int("days", 30, "trend window in days")
		query    = fs.String("q", "", "feed search text")
		pages    = fs.Int("pages", 1, "feed pages to load")
		actType  = fs.String("type", string(domain.ActivityPracticeCompleted), "activity type")
		topic    = fs.String("topic", "", "activity topic")
		duration = fs.Duration("duration", time.Minute, "activity duration")
		grant    = fs.String("grant", "", "consent type to grant")
		withdraw = fs.String("withdraw", "", "consent type to withdraw")
		purpose  = fs.String("purpose", "", "consent purpose")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, closeAll, err := openSession(cfg, log)
	if err != nil {
		return err
	}
	defer closeAll()
	if err := s.Start(ctx); err != nil {
		return err
	}

	switch cmd {
	case "summary":
		st := s.State()
		agg := s.Progress()
		out := map[string]any{
			"summary":         st.Summary,
			"predictions":     agg.GeneratePredictions(),
			"recommendations": agg.Recommendations(),
		}
		if cmp, ok := agg.PeerComparison(); ok {
			out["peers"] = cmp
		}
		return printJSON(out)
	case "trends":
		return printJSON(s.Progress().ProgressTrends(domain.LastDays(time.Now().UTC(), *days)))
	case "feed":
		loaded := 1
		if q := strings.TrimSpace(*query); q != "" {
			s.Feed().Reset(q)
			loaded = 0
		}
		for ; loaded < *pages && s.Feed().HasMore(); loaded++ {
			if _, err := s.Feed().LoadMore(ctx); err != nil {
				return err
			}
		}
		s.Feed().Wait()
		return printJSON(s.Feed().Items())
	case "record":
		rec, queued, err := s.RecordActivity(ctx, domain.ActivityRecord{
			Type:       domain.ActivityType(*actType),
			Topic:      *topic,
			Timestamp:  time.Now().UTC(),
			DurationMs: duration.Milliseconds(),
		})
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"activity": rec, "queued": queued})
	case "consent":
		switch {
		case *grant != "" && *withdraw != "":
			return errors.New("use one of -grant or -withdraw")
		case *grant != "", *withdraw != "":
			raw, granted := *grant, true
			if raw == "" {
				raw, granted = *withdraw, false
			}
			t, err := domain.ParseConsentType(raw)
			if err != nil {
				return err
			}
			if _, err := s.SetConsent(ctx, t, granted, *purpose); err != nil {
				return err
			}
		}
		return printJSON(s.Consent().State())
	case "watch":
		unsub := s.Subscribe(func(st session.State) {
			_ = printJSON(map[string]any{
				"version":        st.Version,
				"connection":     st.Connection,
				"pending_writes": st.PendingWrites,
				"feed_len":       len(st.Feed),
				"summary":        st.Summary,
			})
		})
		defer unsub()
		<-ctx.Done()
		return nil
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openSession(cfg config.Config, log *logger.Logger) (*session.Session, func(), error) {
	userID, err := uuid.Parse(cfg.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("SYNC_USER_ID: %w", err)
	}
	tokens := userservice.StaticToken(cfg.Token)
	svc, err := userservice.New(userservice.Options{
		BaseURL: cfg.UserServiceURL,
		Tokens:  tokens,
		Timeout: cfg.RequestTimeout,
		Logger:  log,
	})
	if err != nil {
		return nil, nil, err
	}
	transport, err := realtime.NewSSETransport(realtime.SSEOptions{BaseURL: cfg.RealtimeURL, Tokens: tokens, Logger: log})
	if err != nil {
		return nil, nil, err
	}
	store, err := local.Open(cfg.LocalDBPath, log)
	if err != nil {
		return nil, nil, err
	}
	s, err := session.New(session.Options{
		UserID:         userID,
		Service:        svc,
		Transport:      transport,
		Queue:          local.NewQueueStore(store, log),
		ConsentStore:   local.NewConsentStore(store, log),
		Features:       cfg.Features,
		SummaryRange:   cfg.SummaryRange,
		CacheTTL:       cfg.CacheTTL,
		TrendEpsilon:   cfg.TrendEpsilon,
		MaxReconnects:  cfg.MaxReconnects,
		SearchDebounce: cfg.SearchDebounce,
		SaveDebounce:   cfg.SaveDebounce,
		Logger:         log,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, func() {
		s.Close()
		if sqlDB, err := store.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
