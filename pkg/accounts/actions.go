package accounts

import (
	"context"
	"errors"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/validate"
	"github.com/tallyspace/tallyspace/pkg/workspace"
)

// WorkspaceLister lists the workspaces a user belongs to, for the
// current_user action.
type WorkspaceLister interface {
	ListForUser(ctx context.Context, userID int64) ([]*workspace.Workspace, error)
}

// Actions returns the account action definitions. Registration and login
// run unauthenticated; everything else requires a session.
func Actions(store *PostgresStore, sessions *auth.SessionStore, workspaces WorkspaceLister) []*action.Definition {
	return []*action.Definition{
		{
			Name: "register_account",
			Schema: validate.Schema{
				"email":     {Type: validate.TypeEmail, Required: true, MaxLen: 255},
				"password":  {Type: validate.TypeString, Required: true, MinLen: 8, MaxLen: 128},
				"full_name": {Type: validate.TypeString, MaxLen: 255},
			},
			Handler: registerHandler(store, sessions),
		},
		{
			Name: "login",
			Schema: validate.Schema{
				"email":    {Type: validate.TypeEmail, Required: true, MaxLen: 255},
				"password": {Type: validate.TypeString, Required: true, MaxLen: 128},
			},
			Handler: loginHandler(store, sessions),
		},
		{
			Name:        "logout",
			RequireAuth: true,
			Handler:     logoutHandler(sessions),
		},
		{
			Name:        "current_user",
			RequireAuth: true,
			Handler:     currentUserHandler(store, workspaces),
		},
	}
}

func registerHandler(store *PostgresStore, sessions *auth.SessionStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		user, err := store.Register(ctx, req.String("email"), req.String("full_name"), req.String("password"))
		if err != nil {
			if errors.Is(err, ErrEmailTaken) {
				return nil, nil, action.NewDomainError("email_taken", "email already registered")
			}
			return nil, nil, err
		}

		_, token, err := sessions.CreateSession(ctx, user.ID)
		if err != nil {
			return nil, nil, err
		}

		return action.OK(map[string]interface{}{"user": user, "token": token}), nil, nil
	}
}

func loginHandler(store *PostgresStore, sessions *auth.SessionStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		user, err := store.VerifyLogin(ctx, req.String("email"), req.String("password"))
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return nil, nil, action.NewDomainError("invalid_credentials", "invalid email or password")
			}
			return nil, nil, err
		}

		_, token, err := sessions.CreateSession(ctx, user.ID)
		if err != nil {
			return nil, nil, err
		}

		return action.OK(map[string]interface{}{"user": user, "token": token}), nil, nil
	}
}

func logoutHandler(sessions *auth.SessionStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		// a missing row just means the session is already gone
		_ = sessions.RevokeSession(ctx, req.Meta.Token)
		return action.OKMessage("logged out", nil), nil, nil
	}
}

func currentUserHandler(store *PostgresStore, workspaces WorkspaceLister) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		user, err := store.Get(ctx, req.Identity.ID)
		if err != nil {
			return nil, nil, err
		}

		list, err := workspaces.ListForUser(ctx, user.ID)
		if err != nil {
			return nil, nil, err
		}

		return action.OK(map[string]interface{}{"user": user, "workspaces": list}), nil, nil
	}
}
