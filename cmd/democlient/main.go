package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-tenant-client/api"
	"github.com/jrsteele09/go-tenant-client/autosave"
	"github.com/jrsteele09/go-tenant-client/internal/config"
	"github.com/jrsteele09/go-tenant-client/kvstore"
	"github.com/jrsteele09/go-tenant-client/session"
	"github.com/jrsteele09/go-tenant-client/tenants"
	"github.com/jrsteele09/go-tenant-client/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running client: %s\n", err)
	}
	log.Printf("Client stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	durable, err := kvstore.NewBoltStore(kvstore.BoltConfig{
		Path: filepath.Join(c.GetDataFolder(), "session.db"),
	}, logger)
	if err != nil {
		return err
	}
	defer durable.Close()

	sessions, err := session.NewManager(durable, kvstore.NewMemStore(), logger)
	if err != nil {
		return err
	}

	resolver, err := tenants.NewContextResolver(sessions, tenants.NewBroadcaster(), logger)
	if err != nil {
		return err
	}
	unsubscribe := resolver.Subscribe(func(tenantID string, ok bool) {
		logger.Info().Str("tenant_id", tenantID).Bool("selected", ok).Msg("tenant context changed")
	})
	defer unsubscribe()

	client, err := api.New(c.GetBaseURL(), logger,
		api.WithTimeout(c.GetRequestTimeout()),
		api.WithTenantSource(resolver),
	)
	if err != nil {
		return err
	}

	transport, err := token.NewTransport(sessions, client, logger,
		token.WithAuthLost(func(destination string) {
			logger.Warn().Str("destination", destination).Msg("authentication lost, log in again")
		}),
	)
	if err != nil {
		return err
	}
	client.UseTransport(transport)

	if err := sessions.Restore(); err != nil {
		sess, err := client.Login(context.Background(),
			config.GetEnv("DEMO_EMAIL", "admin@example.com"),
			config.GetEnv("DEMO_PASSWORD", "password"),
		)
		if err != nil {
			return err
		}
		if err := sessions.Establish(sess, true); err != nil {
			return err
		}
	}

	cache := autosave.NewCache()
	queue, err := autosave.NewQueue(client, cache, scoreValidator, logger,
		autosave.WithDebounce(c.GetDebounceInterval()),
		autosave.WithRetry(c.GetMaxAttempts(), c.GetRetryDelay()),
		autosave.WithFailureFunc(func(recordID string, err error) {
			logger.Error().Err(err).Str("record_id", recordID).Msg("auto-save failed")
		}),
	)
	if err != nil {
		return err
	}
	defer queue.Close()

	recordID := config.GetEnv("DEMO_RECORD_ID", "demo-record")
	if record, err := client.GetRecord(context.Background(), recordID); err == nil {
		cache.SetLoaded(record.ID, record.Fields)
		if err := resolver.SyncFromResource(record.TenantID); err != nil {
			logger.Warn().Err(err).Msg("failed to sync tenant context")
		}
	}

	queue.Stage(recordID, autosave.Fields{"nota": 7})
	queue.Stage(recordID, autosave.Fields{"criticidade": "ALTA"})
	if err := queue.ForceFlush(); err != nil {
		logger.Error().Err(err).Msg("flush failed")
	}

	waitForStopSignal()

	if refreshToken, err := sessions.RefreshToken(); err == nil {
		client.Logout(context.Background(), refreshToken)
	}
	if err := resolver.Clear(); err != nil {
		logger.Warn().Err(err).Msg("failed to clear tenant context")
	}
	return sessions.Clear()
}

// scoreValidator requires a score and its category before a record is
// written.
func scoreValidator(_ string, fields autosave.Fields) bool {
	_, hasScore := fields["nota"]
	_, hasCategory := fields["criticidade"]
	return hasScore && hasCategory
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appName string) {
	fmt.Println()
	figure.NewFigure(appName, "", true).Print()
	fmt.Println()
}
