package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Capitan-Parrot/clever-camera/internal/api"
	"github.com/Capitan-Parrot/clever-camera/internal/classifier"
	"github.com/Capitan-Parrot/clever-camera/internal/config"
	"github.com/Capitan-Parrot/clever-camera/internal/database"
	"github.com/Capitan-Parrot/clever-camera/internal/dispatch"
	"github.com/Capitan-Parrot/clever-camera/internal/history"
	"github.com/Capitan-Parrot/clever-camera/internal/kafka"
	"github.com/Capitan-Parrot/clever-camera/internal/logging"
	"github.com/Capitan-Parrot/clever-camera/internal/messaging"
	"github.com/Capitan-Parrot/clever-camera/internal/monitor"
	"github.com/Capitan-Parrot/clever-camera/internal/mqtt"
	"github.com/Capitan-Parrot/clever-camera/internal/notify"
	"github.com/Capitan-Parrot/clever-camera/internal/outbox"
	"github.com/Capitan-Parrot/clever-camera/internal/s3"
)

const (
	shutdownTimeout = 10 * time.Second
	outboxInterval  = 5 * time.Second
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	logger := logging.Component("main")
	logger.Info().Msg("Main: init...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := config.NewSettingsStore(cfg.Storage.SettingsPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Storage.SettingsPath).Msg("Failed to load settings")
	}

	clf, err := classifier.Load(cfg.Classifier)
	if err != nil {
		// monitors refuse to start without a classifier, the API stays up
		logger.Error().Err(err).Msg("Classifier unavailable")
	}
	if closer, ok := clf.(io.Closer); ok {
		defer closer.Close()
	}

	store := history.NewStore(cfg.Storage.SnapshotsDir, cfg.Storage.ThumbnailSize, logging.Component("history"))
	sinks := monitor.Sinks{}
	sinkLog := logging.Component("sink")

	// postgres, minio and kafka run off the monitor goroutines
	var queues []*dispatch.Queue
	newQueue := func(name string) *dispatch.Queue {
		q := dispatch.NewQueue(name, cfg.Dispatch.QueueSize, cfg.Dispatch.Timeout, logging.Component("dispatch"))
		queues = append(queues, q)
		return q
	}
	managerOpts := []monitor.ManagerOption{
		monitor.WithOpener(sourceOpener(cfg.Storage.VideoSkipFrame, logging.Component("camera"))),
	}

	// Postgres event index
	var db *database.Database
	if cfg.Postgres.DSN != "" {
		db, err = database.New(cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		defer db.Close()
		if err := db.Init(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to init database")
		}
		pgQueue := newQueue("postgres")
		store.AddMirror(history.QueuedMirror(db, pgQueue))
		sinks = append(sinks, monitor.QueuedSink(db, pgQueue, sinkLog))
		managerOpts = append(managerOpts, monitor.WithStateRecorder(db))
	}

	// MinIO snapshot mirror
	var archives *s3.Client
	if cfg.Minio.Endpoint != "" {
		archives, err = s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.Secure)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed connect to MinIO")
		}
		if err := archives.EnsureBucketExists(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to prepare bucket")
		}
		store.AddMirror(history.QueuedMirror(archives, newQueue("minio")))
	}

	// Kafka commands, heartbeats and sequences
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.HeartbeatTopic, cfg.Kafka.EventTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Kafka producer")
		}
		defer producer.Close()

		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.CommandTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Kafka consumer")
		}
		defer consumer.Close()
		consumer.StartListening(ctx)

		if db != nil {
			// sequences reach kafka through the postgres outbox
			db.EnableOutbox()
			go outbox.StartOutboxDispatcher(ctx, db, producer, outboxInterval, logging.Component("outbox"))
		} else {
			sinks = append(sinks, monitor.QueuedSink(producer, newQueue("kafka"), sinkLog))
		}
		managerOpts = append(managerOpts, monitor.WithHeartbeats(producer), monitor.WithCommands(consumer.Messages()))
	}

	// Alert transports
	var natsService *messaging.Service
	if cfg.Nats.URL != "" {
		natsService, err = messaging.NewService(messaging.Options{
			URL:           cfg.Nats.URL,
			Subject:       cfg.Nats.Subject,
			Timeout:       cfg.Nats.Timeout,
			ReconnectWait: cfg.Nats.ReconnectWait,
			MaxReconnects: cfg.Nats.MaxReconnects,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect to NATS")
		}
	}
	var mqttClient *mqtt.Client
	if cfg.MQTT.Broker != "" {
		mqttClient, err = mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
		}, logging.Component("mqtt"))
		if err != nil {
			logger.Error().Err(err).Msg("Failed to connect to MQTT")
		}
	}

	senders := func(n config.NotificationSettings) (notify.Sender, error) {
		switch n.Transport {
		case config.TransportNATS:
			if natsService == nil {
				return nil, errors.New("nats is not configured")
			}
			return natsService, nil
		case config.TransportMQTT:
			if mqttClient == nil {
				return nil, errors.New("mqtt is not configured")
			}
			return mqttClient, nil
		case config.TransportEmail, "":
			return notify.NewEmailSender(notify.EmailOptions{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				From:     n.SenderEmail,
				Password: n.SenderPassword,
				To:       n.ReceiverEmail,
			}), nil
		default:
			return nil, fmt.Errorf("unknown transport %q", n.Transport)
		}
	}

	notification := settings.Notification()
	gate := notify.NewGate(api.GateOptions(notification), nil, logging.Component("notify"))
	if sender, err := senders(notification); err != nil {
		logger.Error().Err(err).Msg("Notifications have no transport")
	} else {
		gate.SetSender(sender)
	}
	sinks = append(sinks, gate)

	manager := monitor.NewManager(settings, clf, store, sinks, logging.Component("monitor"), managerOpts...)
	go manager.ListenAndRun(ctx)
	go manager.Heartbeats(ctx, monitor.DefaultHeartbeatInterval)

	janitor := history.NewJanitor(store, cfg.Storage.RetentionDays, cfg.Storage.PruneInterval, logging.Component("janitor"))
	go janitor.Start(ctx)

	manager.StartAutoStart(ctx)

	handlers := api.NewHandlers(manager, settings, store, gate, logging.Component("api")).WithSenderFactory(senders)
	if archives != nil {
		handlers.WithArchives(archives)
	}
	if db != nil {
		handlers.WithLabelIndex(db)
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("API server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	manager.StopAll()
	gate.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shut down API server")
	}
	for _, q := range queues {
		if err := q.Close(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("queue", q.Name()).Msg("Pending integration calls were dropped")
		}
	}
	if natsService != nil {
		if err := natsService.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to drain NATS")
		}
	}
	if mqttClient != nil {
		mqttClient.Close()
	}
}
