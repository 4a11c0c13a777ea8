package environment

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookinghub/interpreter-assignment/internal/domain"
)

func TestCenterFromDeptPath(t *testing.T) {
	assert.Equal(t, "HQ", CenterFromDeptPath(`HQ\Engineering\Platform`))
	assert.Equal(t, "Osaka", CenterFromDeptPath(`Osaka`))
	assert.Equal(t, "", CenterFromDeptPath(""))
	assert.Equal(t, "HQ", CenterFromDeptPath(`HQ\`))
}

func newMockResolver(t *testing.T) (*Resolver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewResolver(sqlx.NewDb(db, "sqlmock"), zap.NewNop()), mock
}

func TestResolvePrefersForwardTarget(t *testing.T) {
	r, mock := newMockResolver(t)

	mock.ExpectQuery("SELECT environment_id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"environment_id"}).AddRow(int64(9)))

	envID, err := r.Resolve(context.Background(), &domain.Booking{ID: 1, OwnerEmpCode: "10001"})
	require.NoError(t, err)
	require.NotNil(t, envID)
	assert.EqualValues(t, 9, *envID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveFallsBackToOwnerCenter(t *testing.T) {
	r, mock := newMockResolver(t)

	mock.ExpectQuery("SELECT environment_id").
		WillReturnRows(sqlmock.NewRows([]string{"environment_id"}))
	mock.ExpectQuery("SELECT dept_path").
		WithArgs("10001").
		WillReturnRows(sqlmock.NewRows([]string{"dept_path"}).AddRow(`HQ\Engineering`))
	mock.ExpectQuery("SELECT environment_id FROM environment_centers").
		WithArgs("HQ").
		WillReturnRows(sqlmock.NewRows([]string{"environment_id"}).AddRow(int64(4)))

	envID, err := r.Resolve(context.Background(), &domain.Booking{ID: 1, OwnerEmpCode: "10001"})
	require.NoError(t, err)
	require.NotNil(t, envID)
	assert.EqualValues(t, 4, *envID)
}

func TestResolveDegradesToUnscoped(t *testing.T) {
	r, mock := newMockResolver(t)

	mock.ExpectQuery("SELECT environment_id").
		WillReturnRows(sqlmock.NewRows([]string{"environment_id"}))
	mock.ExpectQuery("SELECT dept_path").
		WillReturnRows(sqlmock.NewRows([]string{"dept_path"}).AddRow(`Nowhere\X`))
	mock.ExpectQuery("SELECT environment_id FROM environment_centers").
		WillReturnRows(sqlmock.NewRows([]string{"environment_id"}))

	envID, err := r.Resolve(context.Background(), &domain.Booking{ID: 1, OwnerEmpCode: "10001"})
	require.NoError(t, err)
	assert.Nil(t, envID)
}

func TestResolveUnknownOwner(t *testing.T) {
	r, mock := newMockResolver(t)

	mock.ExpectQuery("SELECT environment_id").
		WillReturnRows(sqlmock.NewRows([]string{"environment_id"}))
	mock.ExpectQuery("SELECT dept_path").
		WillReturnRows(sqlmock.NewRows([]string{"dept_path"}))

	envID, err := r.Resolve(context.Background(), &domain.Booking{ID: 1, OwnerEmpCode: "ghost"})
	require.NoError(t, err)
	assert.Nil(t, envID)
}
