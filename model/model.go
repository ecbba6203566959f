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
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerateUUIDWithSuffix returns a new UUID prefixed with the given entity tag,
// e.g. "acc_1b4e28ba-...". Every persisted record gets its id this way so the
// entity type is readable off the id alone.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// CreditsForTokens converts token usage into whole credits at the given rate,
// rounding up. A skill that reports its own fixed cost bypasses this.
func CreditsForTokens(tokensUsed int64, creditsPerThousandTokens decimal.Decimal) int64 {
	if tokensUsed <= 0 {
		return 0
	}
	cost := decimal.NewFromInt(tokensUsed).
		Mul(creditsPerThousandTokens).
		Div(decimal.NewFromInt(1000))
	return cost.Ceil().IntPart()
}
