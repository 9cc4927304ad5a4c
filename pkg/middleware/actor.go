package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "carecal/pkg/errors"
	httputil "carecal/pkg/http"
	"carecal/pkg/logger"
	"carecal/pkg/model"
)

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFrom(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok
}

// ActorContext reads the caller identity headers into the request context.
// Requests without a valid identity are rejected with 401.
func ActorContext(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := model.Actor{
				ID:             strings.TrimSpace(r.Header.Get(model.ActorIDHeader)),
				Role:           model.ActorRole(strings.ToLower(strings.TrimSpace(r.Header.Get(model.ActorRoleHeader)))),
				BookingAllowed: strings.EqualFold(strings.TrimSpace(r.Header.Get(model.AuthzDecisionHeader)), model.AuthzAllow),
			}

			if actor.ID == "" || !actor.Role.Valid() {
				log.Warn("Rejected request without actor identity",
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
					"role", actor.Role,
				)
				_ = httputil.WriteError(w, apperrors.Unauthorized("missing or invalid actor identity"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
