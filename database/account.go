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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/listinglens/skillrun/internal/apierror"
	"github.com/listinglens/skillrun/model"
)

// CreateAccount inserts a new account with a zero starting balance. Credits
// only ever arrive through ledger operations, so the insert ignores any
// balance on the passed struct.
func (d Datasource) CreateAccount(account model.Account) (model.Account, error) {
	metaDataJSON, err := json.Marshal(account.MetaData)
	if err != nil {
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	account.AccountID = model.GenerateUUIDWithSuffix("acc")
	account.CreatedAt = time.Now()
	account.CreditBalance = 0
	account.Version = 0

	_, err = d.Conn.Exec(`
		INSERT INTO skillrun.accounts (account_id, name, email, credit_balance, version, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, account.AccountID, account.Name, account.Email, account.CreditBalance, account.Version, account.CreatedAt, metaDataJSON)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return model.Account{}, apierror.NewAPIError(apierror.ErrConflict, "Account with this email already exists", err)
			default:
				return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create account", err)
	}

	return account, nil
}

// GetAccountByID retrieves an account, consulting the read-through cache
// first. Balance-mutating callers must treat the returned Version as the
// optimistic concurrency token.
func (d Datasource) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	cacheKey := fmt.Sprintf("account:%s", id)
	if d.Cache != nil {
		cached := &model.Account{}
		if err := d.Cache.Get(ctx, cacheKey, cached); err == nil && cached.AccountID != "" {
			return cached, nil
		}
	}

	account := &model.Account{}
	metaDataJSON := []byte{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT account_id, name, email, credit_balance, version, created_at, meta_data
		FROM skillrun.accounts
		WHERE account_id = $1
	`, id).Scan(&account.AccountID, &account.Name, &account.Email, &account.CreditBalance, &account.Version, &account.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve account", err)
	}

	if err := json.Unmarshal(metaDataJSON, &account.MetaData); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
	}

	if d.Cache != nil {
		_ = d.Cache.Set(ctx, cacheKey, account, 30*time.Second)
	}

	return account, nil
}

// GetAccountForUpdate reads the account straight from postgres, never the
// cache. The ledger's conflict-retry loop must see the committed version;
// another process's local cache layer cannot be invalidated from here, so a
// cached read could spin on a stale version until the retry budget runs out.
func (d Datasource) GetAccountForUpdate(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	metaDataJSON := []byte{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT account_id, name, email, credit_balance, version, created_at, meta_data
		FROM skillrun.accounts
		WHERE account_id = $1
	`, id).Scan(&account.AccountID, &account.Name, &account.Email, &account.CreditBalance, &account.Version, &account.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve account", err)
	}

	if err := json.Unmarshal(metaDataJSON, &account.MetaData); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
	}
	return account, nil
}

func (d Datasource) GetAllAccounts(limit, offset int) ([]model.Account, error) {
	rows, err := d.Conn.Query(`
		SELECT account_id, name, email, credit_balance, version, created_at, meta_data
		FROM skillrun.accounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve accounts", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	accounts := []model.Account{}
	for rows.Next() {
		account := model.Account{}
		metaDataJSON := []byte{}
		err = rows.Scan(&account.AccountID, &account.Name, &account.Email, &account.CreditBalance, &account.Version, &account.CreatedAt, &metaDataJSON)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan account", err)
		}
		if err := json.Unmarshal(metaDataJSON, &account.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating accounts", err)
	}

	return accounts, nil
}

// ApplyTransaction is the single mutation point for account balances. The
// balance update and the ledger entry commit together or not at all. The
// update is keyed on the version the caller read; losing the version check
// returns CONFLICT so the ledger can re-read and retry. The credit_balance
// guard keeps the non-negative invariant even if a caller skipped its own
// balance check.
func (d Datasource) ApplyTransaction(ctx context.Context, account *model.Account, txn *model.CreditTransaction) error {
	metaDataJSON, err := json.Marshal(txn.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	newBalance := account.CreditBalance + txn.Amount

	result, err := tx.ExecContext(ctx, `
		UPDATE skillrun.accounts
		SET credit_balance = credit_balance + $2, version = version + 1
		WHERE account_id = $1 AND version = $3 AND credit_balance + $2 >= 0
	`, account.AccountID, txn.Amount, account.Version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update account balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Optimistic locking failure: account '%s' was updated by another transaction", account.AccountID), nil)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO skillrun.credit_transactions (transaction_id, account_id, amount, type, description, reference, balance_after, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, txn.TransactionID, txn.AccountID, txn.Amount, txn.Type, txn.Description, txn.Reference, newBalance, txn.CreatedAt, metaDataJSON)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction with reference '%s' already exists", txn.Reference), err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record credit transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}

	account.CreditBalance = newBalance
	account.Version++
	txn.BalanceAfter = newBalance

	if d.Cache != nil {
		_ = d.Cache.Delete(ctx, fmt.Sprintf("account:%s", account.AccountID))
	}

	return nil
}
