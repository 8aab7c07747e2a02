package workspace

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Acme Books", "acme-books"},
		{"  Hello   World  ", "hello-world"},
		{"Ops & Finance", "ops-finance"},
		{"UPPER", "upper"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateSlug(tt.name))
		})
	}
}

func TestValidSlug(t *testing.T) {
	assert.True(t, ValidSlug("acme-books"))
	assert.True(t, ValidSlug("a1"))
	assert.False(t, ValidSlug("a"))
	assert.False(t, ValidSlug("-leading"))
	assert.False(t, ValidSlug("trailing-"))
	assert.False(t, ValidSlug("Upper-Case"))
	assert.False(t, ValidSlug("under_score"))
}

func TestCreateWorkspace(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("creator becomes admin in one transaction", func(t *testing.T) {
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO workspaces`).
			WithArgs("acme-books", "Acme Books", int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, now, now))
		mock.ExpectExec(`INSERT INTO workspace_members`).
			WithArgs(int64(3), int64(10)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		ws, err := service.Create(context.Background(), "Acme Books", "", 10)
		require.NoError(t, err)
		assert.Equal(t, int64(3), ws.ID)
		assert.Equal(t, "acme-books", ws.Slug)
	})

	t.Run("invalid slug rejected before transaction", func(t *testing.T) {
		_, err := service.Create(context.Background(), "x", "!", 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid workspace slug")
	})

	t.Run("membership insert failure rolls back workspace", func(t *testing.T) {
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO workspaces`).
			WithArgs("acme", "Acme", int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(4, now, now))
		mock.ExpectExec(`INSERT INTO workspace_members`).
			WithArgs(int64(4), int64(10)).
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		_, err := service.Create(context.Background(), "Acme", "acme", 10)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to add creator membership")
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateName(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE workspaces SET name`).
			WithArgs("New Name", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, service.UpdateName(context.Background(), 3, "New Name"))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(`UPDATE workspaces SET name`).
			WithArgs("New Name", int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.UpdateName(context.Background(), 99, "New Name")
		assert.ErrorIs(t, err, ErrWorkspaceNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptInvitation(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("expired invitation", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM workspace_invitations`).
			WithArgs("tok").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "workspace_id", "email", "role", "invited_by", "invited_at", "expires_at", "accepted_at",
			}).AddRow(1, 3, "new@example.com", "member", 10, past.Add(-time.Hour), past, nil))
		mock.ExpectRollback()

		_, err := service.AcceptInvitation(context.Background(), "tok", 20)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("success", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		mock.ExpectBegin()
		mock.ExpectQuery(`FROM workspace_invitations`).
			WithArgs("tok2").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "workspace_id", "email", "role", "invited_by", "invited_at", "expires_at", "accepted_at",
			}).AddRow(2, 3, "new@example.com", "member", 10, time.Now(), future, nil))
		mock.ExpectExec(`INSERT INTO workspace_members`).
			WithArgs(int64(3), int64(20), sqlmock.AnyArg(), int64(10)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE workspace_invitations SET accepted_at`).
			WithArgs(int64(20), int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		inv, err := service.AcceptInvitation(context.Background(), "tok2", 20)
		require.NoError(t, err)
		assert.Equal(t, int64(3), inv.WorkspaceID)
		require.NotNil(t, inv.AcceptedBy)
		assert.Equal(t, int64(20), *inv.AcceptedBy)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
