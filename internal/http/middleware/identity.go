package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"handover/internal/model"
)

// Identity headers set by the upstream identity service.
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
	TenantIDHeader = "X-Tenant-ID"

	// ActorLocalKey stores the model.Actor in Fiber's context locals.
	ActorLocalKey = "actor"
)

// Identity copies the caller identity supplied by the identity service into
// locals. It trusts the headers and does not reject anonymous calls; the
// service layer decides which operations need an identity.
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := model.Actor{
			UserID:   strings.TrimSpace(c.Get(UserIDHeader)),
			Role:     strings.TrimSpace(c.Get(UserRoleHeader)),
			TenantID: strings.TrimSpace(c.Get(TenantIDHeader)),
		}
		if actor.UserID != "" || actor.TenantID != "" {
			c.Locals(ActorLocalKey, actor)
		}
		return c.Next()
	}
}

// ActorFromCtx returns the actor stored by Identity.
func ActorFromCtx(c *fiber.Ctx) (model.Actor, bool) {
	a, ok := c.Locals(ActorLocalKey).(model.Actor)
	return a, ok
}
