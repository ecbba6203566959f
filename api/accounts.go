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
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/listinglens/skillrun/api/model"
)

func (a Api) CreateAccount(c *gin.Context) {
	var newAccount model2.CreateAccount
	if err := c.ShouldBindJSON(&newAccount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := newAccount.ValidateCreateAccount(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.skillrun.CreateAccount(c.Request.Context(), newAccount.ToAccount())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetAccount(c *gin.Context) {
	id := c.Param("id")

	account, err := a.skillrun.GetAccount(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (a Api) GetAllAccounts(c *gin.Context) {
	limit, offset := pagination(c)
	accounts, err := a.skillrun.GetAllAccounts(limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (a Api) TopUpAccount(c *gin.Context) {
	id := c.Param("id")

	var topUp model2.TopUpAccount
	if err := c.ShouldBindJSON(&topUp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := topUp.ValidateTopUpAccount(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	txn, err := a.skillrun.TopUpAccount(c.Request.Context(), id, topUp.Amount, topUp.Reference)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func (a Api) GetAccountTransactions(c *gin.Context) {
	id := c.Param("id")
	limit, offset := pagination(c)

	transactions, err := a.skillrun.GetAccountTransactions(c.Request.Context(), id, limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, transactions)
}

func (a Api) ReconcileAccount(c *gin.Context) {
	id := c.Param("id")

	result, err := a.skillrun.ReconcileAccount(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
