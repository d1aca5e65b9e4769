package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pgx404/RegretMarket/internal/errcode"
	"github.com/pgx404/RegretMarket/internal/persistence"
	"github.com/pgx404/RegretMarket/internal/state"
	"github.com/pgx404/RegretMarket/internal/testutil"
)

// ============================================================================
// Test: Store contract (run against every implementation available)
// ============================================================================

func storeContract(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("create then exists", func(t *testing.T) {
		err := store.Update(ctx, func(tx persistence.Tx) error {
			return tx.Create(state.TraderKey(owner), state.Trader{Owner: owner})
		})
		if err != nil {
			t.Fatalf("first create: %v", err)
		}

		err = store.Update(ctx, func(tx persistence.Tx) error {
			return tx.Create(state.TraderKey(owner), state.Trader{Owner: owner})
		})
		if !errors.Is(err, errcode.RecordExists) {
			t.Errorf("second create: got %v, want RecordExists", err)
		}
	})

	t.Run("failed update leaves no trace", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.Update(ctx, func(tx persistence.Tx) error {
			tr, err := persistence.LoadTrader(tx, owner)
			if err != nil {
				return err
			}
			tr.PositionCount = 99
			if err := tx.Put(tr.Key(), tr); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want boom", err)
		}

		err = store.View(ctx, func(tx persistence.Tx) error {
			tr, err := persistence.LoadTrader(tx, owner)
			if err != nil {
				return err
			}
			if tr.PositionCount != 0 {
				t.Errorf("position count: got %d, want 0", tr.PositionCount)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		err := store.View(ctx, func(tx persistence.Tx) error {
			_, err := persistence.LoadVault(tx, "NOPE")
			return err
		})
		if !errors.Is(err, errcode.RecordNotFound) {
			t.Errorf("got %v, want RecordNotFound", err)
		}
	})

	t.Run("scan by market", func(t *testing.T) {
		err := store.Update(ctx, func(tx persistence.Tx) error {
			for _, p := range []state.Position{
				{Owner: owner, Pair: "ETH/USD", PositionID: 1},
				{Owner: owner, Pair: "ETH/USD", PositionID: 0},
				{Owner: owner, Pair: "ETH/USDT", PositionID: 0},
			} {
				if err := tx.Create(p.Key(), p); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("seed positions: %v", err)
		}

		var got []state.Position
		err = store.View(ctx, func(tx persistence.Tx) error {
			got, err = persistence.ListPositions(tx, "ETH/USD")
			return err
		})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d positions, want 2", len(got))
		}
		if got[0].PositionID != 0 || got[1].PositionID != 1 {
			t.Errorf("order: got %d, %d", got[0].PositionID, got[1].PositionID)
		}
	})

	t.Run("scan sees own writes", func(t *testing.T) {
		err := store.Update(ctx, func(tx persistence.Tx) error {
			p := state.Position{Owner: owner, Pair: "SOL/USD", PositionID: 0}
			if err := tx.Create(p.Key(), p); err != nil {
				return err
			}
			got, err := persistence.ListPositions(tx, "SOL/USD")
			if err != nil {
				return err
			}
			if len(got) != 1 {
				t.Errorf("got %d, want 1", len(got))
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, persistence.NewMemoryStore())
}

func TestMemoryStore_ViewIsReadOnly(t *testing.T) {
	store := persistence.NewMemoryStore()
	err := store.View(context.Background(), func(tx persistence.Tx) error {
		return tx.Put(state.ConfigKey(), state.Config{})
	})
	if err == nil {
		t.Fatal("write inside View succeeded")
	}
	if store.Len() != 0 {
		t.Errorf("got %d records, want 0", store.Len())
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := persistence.NewMemoryStore().Update(ctx, func(tx persistence.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("got %v (called=%v), want context.Canceled without running", err, called)
	}
}

func TestConfigExists(t *testing.T) {
	store := persistence.NewMemoryStore()
	ctx := context.Background()

	check := func(want bool) {
		t.Helper()
		err := store.View(ctx, func(tx persistence.Tx) error {
			got, err := persistence.ConfigExists(tx)
			if err != nil {
				return err
			}
			if got != want {
				t.Errorf("got %v, want %v", got, want)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	check(false)
	testutil.SeedStore(t, store)
	check(true)
}

// ============================================================================
// Integration: Postgres and Redis
// ============================================================================

func TestPostgresStore(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	storeContract(t, persistence.NewPostgresStore(db))
}

func TestCachedStore(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	rdb := testutil.SetupTestRedis(t)

	store := persistence.NewCachedStore(persistence.NewPostgresStore(db), rdb, time.Minute, zerolog.Nop())
	storeContract(t, store)

	// A write must invalidate the cached copy served by View.
	ctx := context.Background()
	read := func() uint64 {
		var v state.Vault
		err := store.View(ctx, func(tx persistence.Tx) error {
			var err error
			v, err = persistence.LoadVault(tx, "USDC")
			return err
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		return v.LPDeposit
	}

	if err := store.Update(ctx, func(tx persistence.Tx) error {
		return tx.Create(state.VaultKey("USDC"), state.NewVault("USDC"))
	}); err != nil {
		t.Fatal(err)
	}
	if got := read(); got != state.InitialPoolDeposit {
		t.Fatalf("got %d, want %d", got, state.InitialPoolDeposit)
	}

	if err := store.Update(ctx, func(tx persistence.Tx) error {
		v, err := persistence.LoadVault(tx, "USDC")
		if err != nil {
			return err
		}
		v.LPDeposit += state.PoolFundingAmount
		return tx.Put(state.VaultKey("USDC"), v)
	}); err != nil {
		t.Fatal(err)
	}
	if got, want := read(), state.InitialPoolDeposit+state.PoolFundingAmount; got != want {
		t.Errorf("after update: got %d, want %d", got, want)
	}
}
