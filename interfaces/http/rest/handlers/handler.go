package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"unimem/application/commands/bus"
	querybus "unimem/application/queries/bus"
	"unimem/pkg/auth"
	pkgerrors "unimem/pkg/errors"
)

// base carries what every resource handler needs.
type base struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// ownerID is the authenticated caller. Routes without Authenticate never reach a handler
// that calls it, so a missing user is reported as 401.
func (b base) ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		b.errors.Handle(w, r, pkgerrors.NewUnauthorizedError(""))
		return "", false
	}
	return user.UserID, true
}
