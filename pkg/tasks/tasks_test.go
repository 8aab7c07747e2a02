package tasks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
	"github.com/tallyspace/tallyspace/pkg/workspace"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

// fakeDirectory treats the stored ids as the workspace member set
type fakeDirectory struct {
	members map[int64]bool
}

func (f *fakeDirectory) GetMember(ctx context.Context, workspaceID, userID int64) (*workspace.Membership, error) {
	if f.members[userID] {
		return &workspace.Membership{WorkspaceID: workspaceID, UserID: userID}, nil
	}
	return nil, workspace.ErrMemberNotFound
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func taskCols() []string {
	return []string{
		"id", "workspace_id", "title", "description", "status", "assignee_id",
		"due_date", "created_by", "created_at", "updated_at",
	}
}

func testRequest(payload map[string]interface{}) *action.Request {
	return &action.Request{
		Payload:  payload,
		Identity: &auth.Identity{ID: 9, Email: "user@acme.test"},
		Subject: &authz.Subject{
			UserID:       9,
			WorkspaceID:  3,
			Role:         auth.RoleMember,
			HasWorkspace: true,
		},
		Workspace: &action.Workspace{ID: 3, Slug: "acme"},
	}
}

func findAction(t *testing.T, defs []*action.Definition, name string) *action.Definition {
	t.Helper()
	for _, def := range defs {
		if def.Name == name {
			return def
		}
	}
	t.Fatalf("action %s not defined", name)
	return nil
}

func TestTaskTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusTodo, StatusInProgress))
	assert.True(t, CanTransition(StatusTodo, StatusDone))
	assert.True(t, CanTransition(StatusInProgress, StatusDone))
	assert.True(t, CanTransition(StatusInProgress, StatusTodo))
	assert.True(t, CanTransition(StatusDone, StatusTodo))

	assert.False(t, CanTransition(StatusDone, StatusInProgress))
}

func TestCreateTaskDefaultsToTodo(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO tasks`).
		WithArgs(int64(3), "Write proposal", "", "todo", nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(51), day("2025-06-01"), day("2025-06-01")))

	task := &Task{WorkspaceID: 3, Title: "Write proposal"}
	require.NoError(t, store.Create(context.Background(), task))
	assert.Equal(t, StatusTodo, task.Status)
	assert.Equal(t, int64(51), task.ID)
}

func TestGetTaskNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM tasks`).WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), 3, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTasksFiltersByStatusAndAssignee(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM tasks\s+WHERE workspace_id = \$1 AND status = \$2 AND assignee_id = \$3`).
		WithArgs(int64(3), "in_progress", int64(9), 50).
		WillReturnRows(sqlmock.NewRows(taskCols()).
			AddRow(int64(51), int64(3), "Write proposal", nil, "in_progress", int64(9),
				nil, nil, day("2025-06-01"), day("2025-06-01")))

	tasks, err := store.List(context.Background(), 3, Filter{Status: StatusInProgress, AssigneeID: 9})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, StatusInProgress, tasks[0].Status)
}

func TestCreateTaskActionRejectsNonMemberAssignee(t *testing.T) {
	store, _ := newMockStore(t)
	members := &fakeDirectory{members: map[int64]bool{9: true}}
	def := findAction(t, Actions(store, members), "create_task")

	_, _, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"title":       "Write proposal",
		"assignee_id": int64(77),
	}))
	require.Error(t, err)

	var domain *action.DomainError
	require.ErrorAs(t, err, &domain)
	assert.Equal(t, "assignee_not_member", domain.Code)
}

func TestCreateTaskActionAllowsMemberAssignee(t *testing.T) {
	store, mock := newMockStore(t)
	members := &fakeDirectory{members: map[int64]bool{9: true}}
	def := findAction(t, Actions(store, members), "create_task")

	mock.ExpectQuery(`INSERT INTO tasks`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(51), day("2025-06-01"), day("2025-06-01")))

	result, auditInfo, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"title":       "Write proposal",
		"assignee_id": int64(9),
	}))
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, auditInfo)
	assert.Equal(t, int64(9), auditInfo.NewValues["assignee_id"])
}

func TestUpdateTaskActionRejectsInvalidTransition(t *testing.T) {
	store, mock := newMockStore(t)
	members := &fakeDirectory{members: map[int64]bool{9: true}}
	def := findAction(t, Actions(store, members), "update_task")

	mock.ExpectQuery(`FROM tasks`).
		WillReturnRows(sqlmock.NewRows(taskCols()).
			AddRow(int64(51), int64(3), "Write proposal", nil, "done", nil,
				nil, nil, day("2025-06-01"), day("2025-06-01")))

	_, _, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"id":     int64(51),
		"status": "in_progress",
	}))
	require.Error(t, err)

	var domain *action.DomainError
	require.ErrorAs(t, err, &domain)
	assert.Equal(t, "invalid_transition", domain.Code)
}

func TestUpdateTaskActionTransitions(t *testing.T) {
	store, mock := newMockStore(t)
	members := &fakeDirectory{members: map[int64]bool{9: true}}
	def := findAction(t, Actions(store, members), "update_task")

	mock.ExpectQuery(`FROM tasks`).
		WillReturnRows(sqlmock.NewRows(taskCols()).
			AddRow(int64(51), int64(3), "Write proposal", nil, "todo", nil,
				nil, nil, day("2025-06-01"), day("2025-06-01")))
	mock.ExpectExec(`UPDATE tasks`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, auditInfo, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"id":     int64(51),
		"status": "in_progress",
	}))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "todo", auditInfo.OldValues["status"])
	assert.Equal(t, "in_progress", auditInfo.NewValues["status"])
}
