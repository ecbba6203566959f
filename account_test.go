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
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/listinglens/skillrun/model"
)

func TestCreateAccount(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	account := model.Account{Name: gofakeit.Name(), Email: gofakeit.Email()}
	created := account
	created.AccountID = "acc_123"
	created.CreditBalance = 0

	mockDS.On("CreateAccount", account).Return(created, nil)

	result, err := s.CreateAccount(context.Background(), account)

	assert.NoError(t, err)
	assert.Equal(t, "acc_123", result.AccountID)
	assert.Equal(t, int64(0), result.CreditBalance)
	mockDS.AssertExpectations(t)
}

func TestTopUpAccount(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	account := &model.Account{AccountID: "acc_1", CreditBalance: 0, Version: 0}
	mockDS.On("TransactionExistsByRef", mock.Anything, "invoice-77").Return(false, nil)
	mockDS.On("GetAccountForUpdate", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("ApplyTransaction", mock.Anything, mock.Anything, mock.Anything).
		Run(applyTransactionMutation).Return(nil)

	txn, err := s.TopUpAccount(context.Background(), "acc_1", 100, "invoice-77")

	assert.NoError(t, err)
	assert.Equal(t, int64(100), txn.Amount)
	assert.Equal(t, model.TransactionTypePurchase, txn.Type)
	assert.Equal(t, int64(100), txn.BalanceAfter)
}

func TestTopUpAccountReplaysReference(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	existing := &model.CreditTransaction{TransactionID: "txn_1", AccountID: "acc_1", Amount: 100, Type: model.TransactionTypePurchase, Reference: "invoice-77"}
	mockDS.On("TransactionExistsByRef", mock.Anything, "invoice-77").Return(true, nil)
	mockDS.On("GetTransactionByRef", mock.Anything, "invoice-77").Return(existing, nil)

	txn, err := s.TopUpAccount(context.Background(), "acc_1", 100, "invoice-77")

	assert.NoError(t, err)
	assert.Equal(t, "txn_1", txn.TransactionID)
	mockDS.AssertNotCalled(t, "ApplyTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileAccount(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	account := &model.Account{AccountID: "acc_1", CreditBalance: 25}
	mockDS.On("GetAccountByID", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("SumTransactionsByAccount", mock.Anything, "acc_1").Return(int64(25), nil)

	result, err := s.ReconcileAccount(context.Background(), "acc_1")

	assert.NoError(t, err)
	assert.True(t, result.Balanced)
	assert.Equal(t, int64(25), result.CreditBalance)
	assert.Equal(t, int64(25), result.TransactionSum)
}

func TestReconcileAccountMismatch(t *testing.T) {
	s, mockDS := newTestSkillrun(t)

	account := &model.Account{AccountID: "acc_1", CreditBalance: 25}
	mockDS.On("GetAccountByID", mock.Anything, "acc_1").Return(account, nil)
	mockDS.On("SumTransactionsByAccount", mock.Anything, "acc_1").Return(int64(30), nil)

	result, err := s.ReconcileAccount(context.Background(), "acc_1")

	assert.NoError(t, err)
	assert.False(t, result.Balanced)
}
