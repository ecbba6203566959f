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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/listinglens/skillrun/config"
	"github.com/listinglens/skillrun/internal/apierror"
	redlock "github.com/listinglens/skillrun/internal/lock"
	"github.com/listinglens/skillrun/internal/search"
	"github.com/listinglens/skillrun/model"
)

var tracer = otel.Tracer("skillrun.service")

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// Debit removes credits from an account. The amount must be positive; it is
// recorded as a negative ledger entry. Returns INSUFFICIENT_CREDITS when the
// balance cannot cover the amount, leaving balance and log untouched.
func (s *Skillrun) Debit(ctx context.Context, accountID string, amount int64, txnType, description, reference string) (*model.CreditTransaction, error) {
	ctx, span := tracer.Start(ctx, "Debiting account")
	defer span.End()

	if amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Debit amount must be positive", nil)
	}
	return s.applyLedgerEntry(ctx, span, accountID, -amount, txnType, description, reference)
}

// Credit adds credits to an account. The amount must be positive.
func (s *Skillrun) Credit(ctx context.Context, accountID string, amount int64, txnType, description, reference string) (*model.CreditTransaction, error) {
	ctx, span := tracer.Start(ctx, "Crediting account")
	defer span.End()

	if amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Credit amount must be positive", nil)
	}
	return s.applyLedgerEntry(ctx, span, accountID, amount, txnType, description, reference)
}

// applyLedgerEntry is the single path for balance mutation. It serializes
// writers on a per-account redis lock, replays duplicate references instead of
// double-applying them, and retries optimistic-version conflicts with bounded
// exponential backoff. The balance update and the ledger entry commit in one
// database transaction.
func (s *Skillrun) applyLedgerEntry(ctx context.Context, span trace.Span, accountID string, amount int64, txnType, description, reference string) (*model.CreditTransaction, error) {
	if !model.ValidTransactionType(txnType) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown transaction type '%s'", txnType), nil)
	}

	if reference != "" {
		existing, err := s.replayByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			logrus.Infof("ledger: replaying reference %s, no new entry", reference)
			return existing, nil
		}
	}

	locker := redlock.NewLocker(s.redis, accountID, model.GenerateUUIDWithSuffix("loc"))
	if err := locker.WaitLock(ctx, time.Minute, 30*time.Second); err != nil {
		return nil, logAndRecordError(span, "acquire account lock error: ", err)
	}
	defer func(locker *redlock.Locker, ctx context.Context) {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error(err)
		}
	}(locker, ctx)

	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	var txn *model.CreditTransaction
	operation := func() error {
		// Straight from postgres: a cached version from another process
		// would make every retry re-lose the same conflict.
		account, err := s.datasource.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return backoff.Permanent(err)
		}

		if !account.CanCover(-amount) {
			return backoff.Permanent(apierror.NewInsufficientCredits(-amount, account.CreditBalance))
		}

		attempt := &model.CreditTransaction{
			TransactionID: model.GenerateUUIDWithSuffix("txn"),
			AccountID:     accountID,
			Amount:        amount,
			Type:          txnType,
			Description:   description,
			Reference:     reference,
			CreatedAt:     time.Now(),
		}
		if err := s.datasource.ApplyTransaction(ctx, account, attempt); err != nil {
			if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrConflict {
				return err // lost the version race, re-read and retry
			}
			return backoff.Permanent(err)
		}
		txn = attempt
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cnf.Engine.LedgerMaxConflictTries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		// A concurrent writer may have landed the same reference while we
		// were losing conflicts.
		if reference != "" {
			if existing, replayErr := s.replayByReference(ctx, reference); replayErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, logAndRecordError(span, "ledger entry error: ", err)
	}

	s.indexLedgerEntry(txn)
	return txn, nil
}

func (s *Skillrun) replayByReference(ctx context.Context, reference string) (*model.CreditTransaction, error) {
	exists, err := s.datasource.TransactionExistsByRef(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return s.datasource.GetTransactionByRef(ctx, reference)
}

func (s *Skillrun) indexLedgerEntry(txn *model.CreditTransaction) {
	if err := s.queue.queueIndexData(txn.TransactionID, search.CollectionTransactions, txn); err != nil {
		logrus.Error("index queue error: ", err)
	}
}

// GetTransaction retrieves a single ledger entry by id.
func (s *Skillrun) GetTransaction(ctx context.Context, id string) (*model.CreditTransaction, error) {
	return s.datasource.GetTransaction(ctx, id)
}

// GetAccountTransactions lists an account's ledger entries, newest first.
func (s *Skillrun) GetAccountTransactions(ctx context.Context, accountID string, limit, offset int) ([]model.CreditTransaction, error) {
	return s.datasource.GetTransactionsByAccount(ctx, accountID, limit, offset)
}
