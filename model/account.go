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

package model

import (
	"encoding/json"
	"time"
)

// Account is a billable entity. CreditBalance is only ever mutated through the
// ledger; Version backs the optimistic concurrency check on balance updates.
type Account struct {
	ID            int64                  `json:"-"`
	AccountID     string                 `json:"account_id"`
	Name          string                 `json:"name"`
	Email         string                 `json:"email"`
	CreditBalance int64                  `json:"credit_balance"`
	Version       int64                  `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

func (a *Account) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

// CanCover reports whether the balance covers a debit of the given amount.
func (a *Account) CanCover(amount int64) bool {
	return a.CreditBalance >= amount
}
