package sqlite_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kpi-bonus/compensation"
	"github.com/warp/kpi-bonus/store/sqlite"
)

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return sqlite.FromDB(db), mock
}

func TestStore_DatabaseErrorsPropagate(t *testing.T) {
	errBoom := errors.New("disk I/O error")
	ctx := context.Background()

	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
		call   func(s *sqlite.Store) error
	}{
		{
			name: "save role",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO roles")).WillReturnError(errBoom)
			},
			call: func(s *sqlite.Store) error {
				return s.SaveRole(ctx, compensation.Role{ID: "r"})
			},
		},
		{
			name: "create role",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO roles")).WillReturnError(errBoom)
			},
			call: func(s *sqlite.Store) error {
				return s.CreateRole(ctx, compensation.Role{ID: "r"})
			},
		},
		{
			name: "get role",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("FROM roles WHERE id = ?")).WithArgs("r").WillReturnError(errBoom)
			},
			call: func(s *sqlite.Store) error {
				_, err := s.GetRole(ctx, "r")
				return err
			},
		},
		{
			name: "save formula",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO formulas")).WillReturnError(errBoom)
			},
			call: func(s *sqlite.Store) error {
				_, err := s.SaveFormula(ctx, "r", "k", "{}")
				return err
			},
		},
		{
			name: "list positions",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta("FROM positions")).WillReturnError(errBoom)
			},
			call: func(s *sqlite.Store) error {
				_, err := s.ListPositions(ctx)
				return err
			},
		},
		{
			name: "delete kpi",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kpis WHERE id = ?")).WithArgs("k").WillReturnError(errBoom)
			},
			call: func(s *sqlite.Store) error {
				_, err := s.DeleteKPI(ctx, "k")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.expect(mock)

			err := tt.call(store)
			require.Error(t, err)
			assert.ErrorIs(t, err, errBoom)
		})
	}
}

func TestStore_SaveActualsRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	// GIVEN the upsert fails inside the transaction
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO actuals")).WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	// WHEN
	err := store.SaveActuals(context.Background(), "u-1", compensation.Actuals{"kpi-1": d("1")})

	// THEN nothing is committed
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kpi-1")
}

func TestStore_CorruptDecimalIsReported(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "base_salary", "bonus_percentage"}).
		AddRow("r", "Broken", "not-a-number", "10")
	mock.ExpectQuery(regexp.QuoteMeta("FROM roles WHERE id = ?")).WithArgs("r").WillReturnRows(rows)

	_, err := store.GetRole(context.Background(), "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_salary")
}

func TestStore_GetRoleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM roles WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "base_salary", "bonus_percentage"}))

	role, err := store.GetRole(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, role)
}
