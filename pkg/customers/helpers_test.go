package customers

import (
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func now() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func customerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "workspace_id", "name", "email", "phone", "address", "notes",
		"created_by", "created_at", "updated_at",
	})
}
