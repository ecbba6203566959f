/*
Copyright 2025 ListingLens Engineering.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"go.opentelemetry.io/otel"

	"github.com/listinglens/skillrun"
	"github.com/listinglens/skillrun/config"
	redis_db "github.com/listinglens/skillrun/internal/redis-db"
	"github.com/listinglens/skillrun/model"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// processExecution consumes an execution task from its shard queue. The
// service re-reads the record, so a replayed or cancelled task is a no-op.
// Errors are returned as-is and trigger an asynq retry.
func (b *skillrunInstance) processExecution(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("skillrun.executions.worker").Start(ctx, "Process Execution From Redis Queue")
	defer span.End()

	var execution model.Execution
	if err := json.Unmarshal(t.Payload(), &execution); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.skillrun.ProcessExecution(ctx, execution.ExecutionID); err != nil {
		logrus.Infof("Execution %s pushed back for retry due to error: %v", execution.ExecutionID, err)
		return err
	}

	log.Println(" [*] Execution Processed", execution.ExecutionID)
	return nil
}

// runDispatcher ticks the trigger dispatcher on a fixed interval. Ticks are
// idempotent, so a worker restarting mid-interval costs nothing.
func runDispatcher(ctx context.Context, b *skillrunInstance, intervalSec int) {
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	go func() {
		for range ticker.C {
			result, err := b.skillrun.Tick(ctx)
			if err != nil {
				logrus.Errorf("dispatcher tick error: %v", err)
				continue
			}
			if result.Claimed > 0 || result.Requeued > 0 || result.Recovered > 0 {
				logrus.Infof("dispatcher tick: %d due, %d claimed, %d enqueued, %d requeued, %d recovered",
					result.DueSchedules, result.Claimed, result.Enqueued, result.Requeued, result.Recovered)
			}
		}
	}()
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.WebhookQueue] = 3
	queues[cfg.Queue.IndexQueue] = 1

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.ExecutionQueue, i)
		queues[queueName] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *skillrunInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	// Register handlers for execution shard queues
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.ExecutionQueue, i)
		mux.HandleFunc(queueName, b.processExecution)
	}

	// Register handlers for other task types
	mux.HandleFunc(cfg.Queue.IndexQueue, b.skillrun.ProcessIndexData)
	mux.HandleFunc(cfg.Queue.WebhookQueue, skillrun.ProcessWebhook)
}

// workerCommands defines the "workers" command. It consumes the execution
// shard queues plus webhook and index queues, runs the dispatcher ticker, and
// serves asynqmon for monitoring.
func workerCommands(b *skillrunInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start skillrun workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			phClient, shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}
			if phClient != nil {
				defer phClient.Close()
			}

			// Fail executions left running by a dead worker before taking on
			// new work.
			recovered, err := b.skillrun.RecoverStuckExecutions(ctx)
			if err != nil {
				log.Printf("Error recovering stuck executions: %v", err)
			} else if recovered > 0 {
				log.Printf("Recovered %d stuck executions", recovered)
			}

			// Initialize queues
			queues := initializeQueues()

			// Initialize worker server
			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			// Initialize task handlers
			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			// Run the schedule dispatcher alongside the queue consumers
			runDispatcher(ctx, b, conf.Engine.TickIntervalSec)

			// Start asynqmon server for health checks and monitoring
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			// Start asynqmon HTTP server in a new goroutine
			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			// Start worker server
			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
