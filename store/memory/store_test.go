package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subledger/account"
	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/store/memory"
	"github.com/xraph/subledger/store/storetest"
	"github.com/xraph/subledger/types"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store {
		return memory.New()
	})
}

func TestTxWritesHiddenUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	a := &account.Account{
		Entity: types.NewEntity(time.Now()),
		ID:     id.NewAccountID(),
		Owner:  "creator",
		Fee:    types.NewAmount(100),
		Period: time.Hour,
	}
	require.NoError(t, s.CreateAccount(ctx, a))

	readBalance := func() string {
		got, err := s.GetAccount(ctx, a.ID)
		require.NoError(t, err)
		return got.OwnerBalance.String()
	}

	for _, tc := range []struct {
		name   string
		result error
		want   string
	}{
		{"rollback", errors.New("abort"), "0"},
		{"commit", nil, "500"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Tx(ctx, func(tx store.Store) error {
				got, err := tx.GetAccount(ctx, a.ID)
				require.NoError(t, err)
				got.OwnerBalance = types.NewAmount(500)
				require.NoError(t, tx.UpdateAccount(ctx, got))

				// Outside readers still see the committed value.
				assert.Equal(t, "0", readBalance())
				subs, err := s.ListAccounts(ctx, account.ListOpts{})
				require.NoError(t, err)
				assert.Equal(t, "0", subs[0].OwnerBalance.String())
				return tc.result
			})
			assert.ErrorIs(t, err, tc.result)
			assert.Equal(t, tc.want, readBalance())
		})
	}
}
