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

	"github.com/sirupsen/logrus"

	"github.com/listinglens/skillrun/internal/search"
	"github.com/listinglens/skillrun/model"
)

// AccountReconciliation reports whether an account's append-only ledger log
// sums to its current balance.
type AccountReconciliation struct {
	AccountID      string `json:"account_id"`
	CreditBalance  int64  `json:"credit_balance"`
	TransactionSum int64  `json:"transaction_sum"`
	Balanced       bool   `json:"balanced"`
}

// CreateAccount creates a client account with a zero credit balance.
func (s *Skillrun) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	_, span := tracer.Start(ctx, "Creating account")
	defer span.End()

	created, err := s.datasource.CreateAccount(account)
	if err != nil {
		return model.Account{}, logAndRecordError(span, "create account error: ", err)
	}

	if err := s.queue.queueIndexData(created.AccountID, search.CollectionAccounts, created); err != nil {
		logrus.Error("index queue error: ", err)
	}
	return created, nil
}

// GetAccount retrieves an account by its id.
func (s *Skillrun) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.datasource.GetAccountByID(ctx, id)
}

// GetAllAccounts lists accounts, newest first.
func (s *Skillrun) GetAllAccounts(limit, offset int) ([]model.Account, error) {
	return s.datasource.GetAllAccounts(limit, offset)
}

// TopUpAccount purchases credits for an account. The reference makes retried
// purchase requests idempotent.
func (s *Skillrun) TopUpAccount(ctx context.Context, accountID string, amount int64, reference string) (*model.CreditTransaction, error) {
	ctx, span := tracer.Start(ctx, "Topping up account")
	defer span.End()

	txn, err := s.Credit(ctx, accountID, amount, model.TransactionTypePurchase, "credit top-up", reference)
	if err != nil {
		return nil, logAndRecordError(span, "top-up error: ", err)
	}
	return txn, nil
}

// ReconcileAccount checks the ledger invariant for one account: the sum of all
// its transactions must equal the stored balance. A mismatch means a balance
// write escaped the ledger path and needs operator attention.
func (s *Skillrun) ReconcileAccount(ctx context.Context, accountID string) (*AccountReconciliation, error) {
	ctx, span := tracer.Start(ctx, "Reconciling account")
	defer span.End()

	account, err := s.datasource.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, logAndRecordError(span, "fetch account error: ", err)
	}

	sum, err := s.datasource.SumTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, logAndRecordError(span, "sum transactions error: ", err)
	}

	result := &AccountReconciliation{
		AccountID:      account.AccountID,
		CreditBalance:  account.CreditBalance,
		TransactionSum: sum,
		Balanced:       sum == account.CreditBalance,
	}
	if !result.Balanced {
		logrus.Errorf("reconciliation mismatch for %s: balance %d, transaction sum %d", accountID, account.CreditBalance, sum)
	}
	return result, nil
}

func executionReference(executionID string) string {
	return fmt.Sprintf("exec:%s", executionID)
}

func refundReference(executionID string) string {
	return fmt.Sprintf("refund:%s", executionID)
}
