package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/leech/internal/bootstrap"
	"github.com/OFFIS-RIT/leech/internal/queue"
	"github.com/OFFIS-RIT/leech/internal/util"
	"github.com/OFFIS-RIT/leech/pkg/leaselock"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/logger/console"
	"github.com/OFFIS-RIT/leech/pkg/pipeline"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		Format: util.GetEnv("LOG_FORMAT"),
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	deps, err := bootstrap.Load(ctx)
	if err != nil {
		logger.Fatal("Failed to initialise dependencies", "err", err)
	}
	defer deps.Close()

	graph, err := deps.GraphSink(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to graph database", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	publishCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer publishCh.Close()

	listener, isolated := bootstrap.ListenerQueues()
	retryDelay := util.GetEnvDuration("RETRY_DELAY", 10*time.Second)
	if err := queue.SetupQueues(publishCh, []string{listener, isolated}, retryDelay); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	locker := leaselock.New(deps.Pool, leaselock.Options{
		TTL:          util.GetEnvDuration("GRAPH_LEASE_TTL", time.Minute),
		Wait:         true,
		WaitInterval: 200 * time.Millisecond,
		WaitJitter:   200 * time.Millisecond,
		TokenPrefix:  "leech-worker",
	})

	announcer := pipeline.NewAnnouncer(queue.NewAMQPPublisher(publishCh), listener, isolated)
	tasks := pipeline.New(deps.Schema, announcer,
		pipeline.WithVault(deps.Vault),
		pipeline.WithIndex(deps.IndexStore()),
		pipeline.WithGraph(graph),
		pipeline.WithLocker(locker),
	)

	// Consumer channel, separate from the one pipeline messages are
	// published on.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	consumer := queue.NewConsumer(consumerCh, bootstrap.WorkerQueues(), tasks.HandleMessage, queue.ConsumerOptions{
		Workers:    util.GetEnvInt("WORKER_CONCURRENCY", 4),
		MaxRetries: util.GetEnvInt("MAX_RETRIES", 10),
		Permanent: func(err error) bool {
			return errors.Is(err, pipeline.ErrInvalidMessage) || errors.Is(err, pipeline.ErrUnknownStage)
		},
	})

	if err := consumer.Run(ctx); err != nil {
		logger.Fatal("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
