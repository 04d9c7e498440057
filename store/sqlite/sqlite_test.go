package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kpi-bonus/bonus"
	"github.com/warp/kpi-bonus/compensation"
	"github.com/warp/kpi-bonus/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedRole(t *testing.T, store *sqlite.Store) compensation.Role {
	t.Helper()
	role := compensation.Role{ID: "role-1", Name: "Account Manager", BaseSalary: d("85000.50"), BonusPercentage: d("12.5")}
	require.NoError(t, store.SaveRole(context.Background(), role))
	return role
}

func seedKPI(t *testing.T, store *sqlite.Store, id string) compensation.KPI {
	t.Helper()
	k := compensation.KPI{
		ID: id, RoleID: "role-1", Name: "Client Retention", Unit: "%",
		Target: d("90"), Weight: d("60"), Description: "Retained clients",
	}
	require.NoError(t, store.SaveKPI(context.Background(), k))
	return k
}

// =============================================================================
// ROLES & KPIS
// =============================================================================

func TestRoles_CRUD(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	role := seedRole(t, store)

	got, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Account Manager", got.Name)
	assert.True(t, got.BaseSalary.Equal(d("85000.50")), "decimals survive storage exactly")
	assert.True(t, got.BonusPercentage.Equal(d("12.5")))

	// update
	role.Name = "Senior Account Manager"
	require.NoError(t, store.SaveRole(ctx, role))
	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Senior Account Manager", roles[0].Name)

	deleted, err := store.DeleteRole(ctx, role.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err = store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	deleted, err = store.DeleteRole(ctx, role.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestKPIs_ListInCreationOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedRole(t, store)

	seedKPI(t, store, "kpi-z")
	seedKPI(t, store, "kpi-a")
	inverse := compensation.KPI{ID: "kpi-m", RoleID: "role-1", Name: "Churn", Target: d("5"), IsInverse: true}
	require.NoError(t, store.SaveKPI(ctx, inverse))

	kpis, err := store.ListKPIsByRole(ctx, "role-1")
	require.NoError(t, err)
	require.Len(t, kpis, 3)
	assert.Equal(t, []string{"kpi-z", "kpi-a", "kpi-m"}, []string{kpis[0].ID, kpis[1].ID, kpis[2].ID})
	assert.True(t, kpis[2].IsInverse)
	assert.True(t, kpis[2].Weight.IsZero())

	got, err := store.GetKPI(ctx, "kpi-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "%", got.Unit)
	assert.True(t, got.Target.Equal(d("90")))

	missing, err := store.GetKPI(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestKPI_UnknownRoleRejected(t *testing.T) {
	store := newStore(t)

	err := store.SaveKPI(context.Background(), compensation.KPI{ID: "k", RoleID: "ghost", Name: "x", Target: d("1")})
	require.Error(t, err)
	assert.True(t, sqlite.IsForeignKeyError(err))
}

// =============================================================================
// FORMULAS
// =============================================================================

func TestFormulas_UpsertBumpsVersion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedRole(t, store)
	seedKPI(t, store, "kpi-1")

	// GIVEN a first save
	v, err := store.SaveFormula(ctx, "role-1", "kpi-1", compensation.LinearFormulaJSON(40))
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// WHEN saved again
	v, err = store.SaveFormula(ctx, "role-1", "kpi-1", compensation.LegacyDefaultFormulaJSON(90, 100))
	require.NoError(t, err)

	// THEN version increments and the latest config wins
	assert.Equal(t, 2, v)
	rec, err := store.GetFormula(ctx, "role-1", "kpi-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Version)
	assert.Contains(t, rec.ConfigJSON, `"type": "tiered"`)

	all, err := store.ListFormulasByRole(ctx, "role-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFormulas_DeleteAndCascade(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedRole(t, store)
	seedKPI(t, store, "kpi-1")
	seedKPI(t, store, "kpi-2")

	_, err := store.SaveFormula(ctx, "role-1", "kpi-1", "{}")
	require.NoError(t, err)
	_, err = store.SaveFormula(ctx, "role-1", "kpi-2", "{}")
	require.NoError(t, err)

	deleted, err := store.DeleteFormula(ctx, "role-1", "kpi-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	rec, err := store.GetFormula(ctx, "role-1", "kpi-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// deleting the KPI takes its formula with it
	_, err = store.DeleteKPI(ctx, "kpi-2")
	require.NoError(t, err)
	all, err := store.ListFormulasByRole(ctx, "role-1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

// =============================================================================
// USERS & ACTUALS
// =============================================================================

func TestUsersAndActuals(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedRole(t, store)
	seedKPI(t, store, "kpi-1")
	seedKPI(t, store, "kpi-2")

	require.NoError(t, store.SaveUser(ctx, sqlite.User{ID: "u-1", Name: "Dana", RoleID: "role-1"}))

	u, err := store.GetUser(ctx, "u-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Empty(t, u.Email)

	// GIVEN two actuals
	require.NoError(t, store.SaveActuals(ctx, "u-1", compensation.Actuals{"kpi-1": d("93.25"), "kpi-2": d("80")}))
	// WHEN one is overwritten
	require.NoError(t, store.SaveActuals(ctx, "u-1", compensation.Actuals{"kpi-1": d("95")}))

	// THEN only that one changes
	actuals, err := store.GetActuals(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, actuals, 2)
	assert.True(t, actuals["kpi-1"].Equal(d("95")))
	assert.True(t, actuals["kpi-2"].Equal(d("80")))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestActuals_UnknownKPIRollsBack(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedRole(t, store)
	seedKPI(t, store, "kpi-1")
	require.NoError(t, store.SaveUser(ctx, sqlite.User{ID: "u-1", Name: "Dana", RoleID: "role-1"}))

	err := store.SaveActuals(ctx, "u-1", compensation.Actuals{"kpi-1": d("1"), "ghost": d("2")})
	require.Error(t, err)

	actuals, err := store.GetActuals(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, actuals, "batch is atomic")
}

// =============================================================================
// POSITIONS & FORECAST RUNS
// =============================================================================

func TestPositions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedRole(t, store)

	require.NoError(t, store.SavePosition(ctx, compensation.Position{ID: "p-1", RoleID: "role-1", Title: "AM EMEA", Headcount: 4}))
	require.NoError(t, store.SavePosition(ctx, compensation.Position{ID: "p-2", RoleID: "role-1", Title: "AM US", Headcount: 6}))

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, 4, positions[0].Headcount)

	deleted, err := store.DeletePosition(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	positions, err = store.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestForecastRuns_NewestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []string{"completed", "failed", "completed"} {
		run := sqlite.ForecastRun{
			ID:          string(rune('a' + i)),
			Trigger:     "scheduled",
			Status:      status,
			Multiplier:  d("75"),
			Gross:       d("8000"),
			TotalPayout: d("6000"),
			Headcount:   5,
			StartedAt:   start.Add(time.Duration(i) * time.Hour),
			CompletedAt: start.Add(time.Duration(i)*time.Hour + time.Second),
		}
		if status == "failed" {
			run.Error = "role not found"
		}
		require.NoError(t, store.SaveForecastRun(ctx, run))
	}

	runs, err := store.ListForecastRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, "role not found", runs[1].Error)
	assert.True(t, runs[0].TotalPayout.Equal(d("6000")))
	assert.True(t, start.Add(2*time.Hour).Equal(runs[0].StartedAt))
}

// =============================================================================
// RESET
// =============================================================================

func TestReset(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seedRole(t, store)
	seedKPI(t, store, "kpi-1")
	require.NoError(t, store.SaveUser(ctx, sqlite.User{ID: "u-1", Name: "Dana", RoleID: "role-1"}))
	require.NoError(t, store.SaveActuals(ctx, "u-1", compensation.Actuals{"kpi-1": d("1")}))
	_, err := store.SaveFormula(ctx, "role-1", "kpi-1", "{}")
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, roles)
	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, store.Ping(ctx))
}

func TestCreate_RejectsTakenIDs(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	role := seedRole(t, store)
	require.NoError(t, store.SaveRole(ctx, compensation.Role{ID: "role-2", Name: "Other", BaseSalary: d("1"), BonusPercentage: d("1")}))
	kpi := seedKPI(t, store, "kpi-1")

	// GIVEN records that already exist
	// WHEN they are created again with different content
	err := store.CreateRole(ctx, compensation.Role{ID: role.ID, Name: "Overwritten", BaseSalary: d("1"), BonusPercentage: d("1")})
	assert.ErrorIs(t, err, bonus.ErrAlreadyExists)

	err = store.CreateKPI(ctx, compensation.KPI{ID: kpi.ID, RoleID: "role-2", Name: "Moved", Target: d("5"), Weight: d("0")})
	assert.ErrorIs(t, err, bonus.ErrAlreadyExists)

	require.NoError(t, store.CreateUser(ctx, sqlite.User{ID: "u-1", Name: "Ada", RoleID: role.ID}))
	assert.ErrorIs(t, store.CreateUser(ctx, sqlite.User{ID: "u-1", Name: "Bob", RoleID: role.ID}), bonus.ErrAlreadyExists)

	require.NoError(t, store.CreatePosition(ctx, compensation.Position{ID: "p-1", RoleID: role.ID, Title: "AM", Headcount: 2}))
	assert.ErrorIs(t, store.CreatePosition(ctx, compensation.Position{ID: "p-1", RoleID: role.ID, Title: "AM", Headcount: 9}), bonus.ErrAlreadyExists)

	// THEN the originals are untouched
	gotRole, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Account Manager", gotRole.Name)

	gotKPI, err := store.GetKPI(ctx, kpi.ID)
	require.NoError(t, err)
	assert.Equal(t, "role-1", gotKPI.RoleID)
	assert.Equal(t, "Client Retention", gotKPI.Name)

	gotUser, err := store.GetUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", gotUser.Name)

	positions, err := store.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 2, positions[0].Headcount)
}

func TestCreate_UnknownRoleIsForeignKeyError(t *testing.T) {
	store := newStore(t)

	err := store.CreateKPI(context.Background(), compensation.KPI{ID: "k", RoleID: "nope", Name: "x", Target: d("1"), Weight: d("0")})
	require.Error(t, err)
	assert.True(t, sqlite.IsForeignKeyError(err))
	assert.NotErrorIs(t, err, bonus.ErrAlreadyExists)
}
