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

	"github.com/typesense/typesense-go/typesense/api"

	"github.com/hibiken/asynq"
)

// Search performs a search on the specified collection using the provided
// query parameters.
func (s *Skillrun) Search(collection string, query *api.SearchCollectionParams) (interface{}, error) {
	return s.search.Search(context.Background(), collection, query)
}

// MultiSearch performs a multi-search operation across collections.
func (s *Skillrun) MultiSearch(searchParams *api.MultiSearchSearchesParameter) (*api.MultiSearchResult, error) {
	return s.search.MultiSearch(context.Background(), *searchParams)
}

// EnsureSearchCollections creates any missing Typesense collections.
func (s *Skillrun) EnsureSearchCollections(ctx context.Context) error {
	return s.search.EnsureCollectionsExist(ctx)
}

// ProcessIndexData consumes an index queue task and upserts the document into
// its Typesense collection.
func (s *Skillrun) ProcessIndexData(ctx context.Context, task *asynq.Task) error {
	var payload struct {
		Collection string                 `json:"collection"`
		Payload    map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	return s.search.HandleNotification(ctx, payload.Collection, payload.Payload)
}
