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
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/listinglens/skillrun/config"
	"github.com/listinglens/skillrun/internal/apierror"
	"github.com/listinglens/skillrun/internal/request"
	"github.com/listinglens/skillrun/model"
)

// InvokeResult is what a skill run produced: its output document, the tokens
// it consumed, and its cost in credits. CostCredits of zero with nonzero
// TokensUsed means the skill is usage-priced and the engine derives the cost
// from the configured token rate.
type InvokeResult struct {
	Output      map[string]interface{} `json:"output"`
	TokensUsed  int64                  `json:"tokens_used"`
	CostCredits int64                  `json:"cost_credits"`
}

// SkillInvoker is the boundary to the skill/agent runtime. Implementations
// must honor the context deadline; a run that outlives it is reported as an
// error and the engine fails the execution.
type SkillInvoker interface {
	Invoke(ctx context.Context, agentSlug string, input map[string]interface{}) (*InvokeResult, error)
	// Cancel is best effort: the runtime may already be done.
	Cancel(ctx context.Context, executionID string) error
}

// HTTPInvoker calls the skill runtime over HTTP.
type HTTPInvoker struct {
	baseURL string
	timeout time.Duration
}

// NewHTTPInvoker builds the default invoker from the engine configuration.
func NewHTTPInvoker(conf *config.Configuration) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL: conf.Engine.AdapterURL,
		timeout: time.Duration(conf.Engine.AdapterTimeoutSec) * time.Second,
	}
}

// Invoke posts the input to the runtime's run endpoint and decodes the result.
// Non-2xx responses and transport failures surface as SKILL_ERROR.
func (h *HTTPInvoker) Invoke(ctx context.Context, agentSlug string, input map[string]interface{}) (*InvokeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	payload, err := request.ToJsonReq(map[string]interface{}{
		"agent_slug": agentSlug,
		"input":      input,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/run", h.baseURL), payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result InvokeResult
	resp, err := request.Call(req, &result)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrSkillFailure, fmt.Sprintf("skill '%s' invocation failed", agentSlug), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierror.NewAPIError(apierror.ErrSkillFailure, fmt.Sprintf("skill '%s' returned status %d", agentSlug, resp.StatusCode), nil)
	}
	return &result, nil
}

// Cancel tells the runtime to stop an in-flight run. Failure here is logged
// and swallowed by callers; cancellation of the record does not depend on it.
func (h *HTTPInvoker) Cancel(ctx context.Context, executionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/cancel/%s", h.baseURL, executionID), nil)
	if err != nil {
		return err
	}
	resp, err := request.Call(req, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.Warnf("skill runtime cancel for %s returned status %d", executionID, resp.StatusCode)
	}
	return nil
}

// resolveCost settles the final credit cost of a run. Fixed-cost skills return
// CostCredits directly; usage-priced skills return tokens and the engine
// converts them at the configured per-1k-token rate, rounding up.
func resolveCost(result *InvokeResult, conf *config.Configuration) int64 {
	if result.CostCredits > 0 {
		return result.CostCredits
	}
	if result.TokensUsed <= 0 {
		return 0
	}
	rate := decimal.NewFromFloat(conf.Engine.CreditsPer1KTokens)
	return model.CreditsForTokens(result.TokensUsed, rate)
}
