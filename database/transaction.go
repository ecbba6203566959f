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

	"github.com/listinglens/skillrun/internal/apierror"
	"github.com/listinglens/skillrun/model"
)

const transactionColumns = `transaction_id, account_id, amount, type, description, reference, balance_after, created_at, meta_data`

func scanTransaction(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.CreditTransaction, error) {
	txn := &model.CreditTransaction{}
	metaDataJSON := []byte{}
	err := scanner.Scan(&txn.TransactionID, &txn.AccountID, &txn.Amount, &txn.Type, &txn.Description, &txn.Reference, &txn.BalanceAfter, &txn.CreatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &txn.MetaData); err != nil {
			return nil, err
		}
	}
	return txn, nil
}

func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.CreditTransaction, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM skillrun.credit_transactions WHERE transaction_id = $1
	`, transactionColumns), id)

	txn, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return txn, nil
}

func (d Datasource) GetTransactionByRef(ctx context.Context, reference string) (*model.CreditTransaction, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM skillrun.credit_transactions WHERE reference = $1
	`, transactionColumns), reference)

	txn, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with reference '%s' not found", reference), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return txn, nil
}

func (d Datasource) TransactionExistsByRef(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM skillrun.credit_transactions WHERE reference = $1)
	`, reference).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check transaction reference", err)
	}
	return exists, nil
}

func (d Datasource) GetTransactionsByAccount(ctx context.Context, accountID string, limit, offset int) ([]model.CreditTransaction, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM skillrun.credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, transactionColumns), accountID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	transactions := []model.CreditTransaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating transactions", err)
	}

	return transactions, nil
}

// SumTransactionsByAccount backs the reconciliation invariant: the sum of an
// account's ledger entries must equal its current balance.
func (d Datasource) SumTransactionsByAccount(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM skillrun.credit_transactions WHERE account_id = $1
	`, accountID).Scan(&sum)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum transactions", err)
	}
	return sum, nil
}
