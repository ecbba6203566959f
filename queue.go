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

package skillrun

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/listinglens/skillrun/config"
	redis_db "github.com/listinglens/skillrun/internal/redis-db"
	"github.com/listinglens/skillrun/model"
)

// Queue wraps the asynq client used to hand executions, webhooks, and index
// updates to the worker processes.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(fmt.Sprintf("redis://%s", conf.Redis.Dns))
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// Enqueue places a pending execution on its shard queue. Executions are
// sharded by schedule id (account id for unscheduled runs) so runs that
// contend for the same admission slot land on the same queue and are picked
// up serially.
func (q *Queue) Enqueue(ctx context.Context, execution *model.Execution) error {
	ctx, span := tracer.Start(ctx, "Adding execution to queue")
	defer span.End()

	payload, err := json.Marshal(execution)
	if err != nil {
		return err
	}

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	info, err := q.Client.EnqueueContext(ctx, q.executionTask(cnf, execution, payload), asynq.MaxRetry(cnf.Queue.MaxRetryAttempts))
	if err != nil {
		log.Println(err, info)
		return errors.Wrapf(err, "enqueue execution %s", execution.ExecutionID)
	}
	log.Printf(" [*] Successfully enqueued execution: %+v", execution.ExecutionID)
	return nil
}

func (q *Queue) executionTask(cnf *config.Configuration, execution *model.Execution, payload []byte) *asynq.Task {
	shardKey := execution.ScheduleID
	if shardKey == "" {
		shardKey = execution.AccountID
	}
	queueIndex := hashShardKey(shardKey) % cnf.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cnf.Queue.ExecutionQueue, queueIndex+1)

	taskOptions := []asynq.Option{asynq.TaskID(execution.ExecutionID), asynq.Queue(queueName)}
	return asynq.NewTask(queueName, payload, taskOptions...)
}

// queueIndexData enqueues a task to index data in a specified collection.
func (q *Queue) queueIndexData(id string, collection string, data interface{}) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if cfg.TypeSense.Dns == "" {
		return nil
	}

	payload := map[string]interface{}{
		"collection": collection,
		"payload":    data,
	}

	IPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{asynq.Queue(cfg.Queue.IndexQueue)}
	task := asynq.NewTask(cfg.Queue.IndexQueue, IPayload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return errors.Wrapf(err, "enqueue index data %s", id)
	}
	log.Printf(" [*] Successfully enqueued index data: %+v", id)
	return nil
}

// hashShardKey returns a consistent hash value for a shard key.
func hashShardKey(key string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return int(hasher.Sum32())
}

// GetExecutionFromQueue retrieves a queued execution by its id, scanning the
// shard queues.
func (q *Queue) GetExecutionFromQueue(executionID string) (*model.Execution, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.ExecutionQueue, i)
		task, err := q.Inspector.GetTaskInfo(queueName, executionID)
		if err == nil && task != nil {
			var execution model.Execution
			if err := json.Unmarshal(task.Payload, &execution); err != nil {
				return nil, err
			}
			return &execution, nil
		}
	}
	return nil, nil
}
