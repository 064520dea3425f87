// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package banktest_test

import (
	"context"
	"testing"
	"time"

	"github.com/minio/bank"
	"github.com/minio/bank/banktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LedgerTestSuite struct {
	suite.Suite
	assert  *assert.Assertions
	cluster *banktest.Cluster
}

func (suite *LedgerTestSuite) SetupSuite() {
	suite.assert = assert.New(suite.T())
	suite.cluster = banktest.NewCluster(1)
	suite.assert.Len(suite.cluster.Nodes(), 4)
}

func (suite *LedgerTestSuite) TearDownSuite() {
	suite.cluster.Close()
}

func (suite *LedgerTestSuite) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// openAccounts opens one account per username and
// returns the corresponding clients.
func (suite *LedgerTestSuite) openAccounts(ctx context.Context, usernames ...string) []*bank.Client {
	clients := make([]*bank.Client, 0, len(usernames))
	for _, username := range usernames {
		client := suite.cluster.NewClient()
		suite.T().Cleanup(func() { client.Close() })

		suite.Require().NoError(client.OpenAccount(ctx, username))
		clients = append(clients, client)
	}
	return clients
}

// total returns the sum of all balances and pending
// transfers of the accounts.
func (suite *LedgerTestSuite) total(ctx context.Context, clients ...*bank.Client) int64 {
	var total int64
	for _, client := range clients {
		account, err := client.CheckAccount(ctx, client.Key())
		suite.Require().NoError(err)

		total += account.Balance
		for _, tx := range account.Pending {
			total += tx.Amount
		}
	}
	return total
}

func (suite *LedgerTestSuite) TestMoneyIsConserved() {
	ctx, cancel := suite.context()
	defer cancel()

	clients := suite.openAccounts(ctx, "carol", "dave", "erin")
	carol, dave, erin := clients[0], clients[1], clients[2]
	want := int64(3 * bank.InitialBalance)

	suite.assert.NoError(carol.SendAmount(ctx, dave.Key(), 100))
	suite.assert.Equal(want, suite.total(ctx, clients...))

	suite.assert.NoError(dave.SendAmount(ctx, erin.Key(), 250))
	suite.assert.NoError(carol.SendAmount(ctx, erin.Key(), 50))
	suite.assert.Equal(want, suite.total(ctx, clients...))

	suite.assert.NoError(erin.ReceiveAmount(ctx, 0))
	suite.assert.NoError(erin.ReceiveAmount(ctx, 0))
	suite.assert.NoError(dave.ReceiveAmount(ctx, 0))
	suite.assert.Equal(want, suite.total(ctx, clients...))

	account, err := erin.CheckAccount(ctx, erin.Key())
	suite.Require().NoError(err)
	suite.assert.Equal(int64(bank.InitialBalance+300), account.Balance)
	suite.assert.Empty(account.Pending)
	suite.assert.EqualValues(2, account.WID)
}

func (suite *LedgerTestSuite) TestWIDAdvances() {
	ctx, cancel := suite.context()
	defer cancel()

	clients := suite.openAccounts(ctx, "frank", "grace")
	frank, grace := clients[0], clients[1]

	for i := 1; i <= 3; i++ {
		suite.Require().NoError(frank.SendAmount(ctx, grace.Key(), 10))

		account, err := frank.CheckAccount(ctx, frank.Key())
		suite.Require().NoError(err)
		suite.assert.EqualValues(i, account.WID)
		suite.assert.Equal(bank.InitialBalance-int64(10*i), account.Balance)
	}

	account, err := grace.CheckAccount(ctx, grace.Key())
	suite.Require().NoError(err)
	suite.assert.Len(account.Pending, 3)
	suite.assert.Zero(account.WID)
}

func (suite *LedgerTestSuite) TestReadsAdvanceRID() {
	ctx, cancel := suite.context()
	defer cancel()

	heidi := suite.openAccounts(ctx, "heidi")[0]

	before, err := heidi.RID(ctx, heidi.Key())
	suite.Require().NoError(err)

	_, err = heidi.CheckAccount(ctx, heidi.Key())
	suite.Require().NoError(err)
	_, err = heidi.Audit(ctx, heidi.Key())
	suite.Require().NoError(err)

	after, err := heidi.RID(ctx, heidi.Key())
	suite.Require().NoError(err)
	suite.assert.Greater(after, before)
}

func (suite *LedgerTestSuite) TestAuditIsShared() {
	ctx, cancel := suite.context()
	defer cancel()

	clients := suite.openAccounts(ctx, "ivan", "judy")
	ivan, judy := clients[0], clients[1]

	suite.Require().NoError(ivan.SendAmount(ctx, judy.Key(), 42))
	suite.Require().NoError(judy.ReceiveAmount(ctx, 0))

	// Any client can audit any account.
	own, err := judy.Audit(ctx, judy.Key())
	suite.Require().NoError(err)
	other, err := ivan.Audit(ctx, judy.Key())
	suite.Require().NoError(err)

	suite.assert.Len(own, 1)
	suite.assert.Equal(len(own), len(other))
	suite.assert.Equal(own[0].Amount, other[0].Amount)
	suite.assert.Equal("ivan", own[0].SourceUsername)
	suite.assert.EqualValues(42, own[0].Amount)
}

func TestLedgerTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}
