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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/listinglens/skillrun/config"
	"github.com/listinglens/skillrun/database"
	redis_db "github.com/listinglens/skillrun/internal/redis-db"
	"github.com/listinglens/skillrun/internal/search"
)

// Skillrun is the service layer for the execution engine and credit ledger.
// Everything the API and worker binaries do goes through this struct.
type Skillrun struct {
	queue      *Queue
	search     *search.TypesenseClient
	redis      redis.UniversalClient
	datasource database.IDataSource
	invoker    SkillInvoker
	cron       CronEvaluator
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewSkillrun initializes a new instance of Skillrun with the provided
// datasource. It fetches the configuration and wires the Redis client, queue,
// search client, cron evaluator, and the HTTP skill invoker.
func NewSkillrun(db database.IDataSource) (*Skillrun, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	newSearch := search.NewTypesenseClient(configuration.TypeSenseKey, []string{configuration.TypeSense.Dns})

	newSkillrun := &Skillrun{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		search:     newSearch,
		invoker:    NewHTTPInvoker(configuration),
		cron:       NewCronEvaluator(),
	}
	return newSkillrun, nil
}

// WithInvoker swaps the skill invoker. Used by tests and by deployments that
// run skills in-process.
func (s *Skillrun) WithInvoker(invoker SkillInvoker) *Skillrun {
	s.invoker = invoker
	return s
}
