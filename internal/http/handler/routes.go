package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"handover/internal/service"
)

// Pinger reports whether the backing store is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Services bundles the use cases exposed over HTTP.
type Services struct {
	Entries service.EntryService
	Drafts  service.DraftService
	Exports service.ExportService
	Audit   service.AuditService
}

// HealthCheck checks store connectivity only.
func HealthCheck(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe always answers 200.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db Pinger, svc Services) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	entries := app.Group("/entries")
	entries.Post("/", SubmitEntry(svc.Entries))
	entries.Get("/", ListCandidates(svc.Entries))
	entries.Get("/:id", GetEntry(svc.Entries))
	entries.Post("/:id/source-refs", AppendSourceRefs(svc.Entries))
	entries.Post("/:id/corrections", FlagMisclassification(svc.Entries))
	entries.Get("/:id/audit", EntryTrail(svc.Audit))

	proposals := app.Group("/proposals")
	proposals.Post("/", ProposeEntry(svc.Entries))
	proposals.Post("/:id/accept", AcceptProposal(svc.Entries))
	proposals.Post("/:id/dismiss", DismissProposal(svc.Entries))

	drafts := app.Group("/drafts")
	drafts.Post("/", GenerateDraft(svc.Drafts))
	drafts.Get("/", ListDrafts(svc.Drafts))
	drafts.Get("/:id", GetDraft(svc.Drafts))
	drafts.Patch("/:id/items/:itemId", EditItem(svc.Drafts))
	drafts.Post("/:id/merges/:proposalId/accept", AcceptMerge(svc.Drafts))
	drafts.Post("/:id/merges/:proposalId/dismiss", DismissMerge(svc.Drafts))
	drafts.Post("/:id/sections/:sectionId/viewed", MarkSectionViewed(svc.Drafts))
	drafts.Post("/:id/open-review", OpenReview(svc.Drafts))
	drafts.Post("/:id/abandon", Abandon(svc.Drafts))
	drafts.Post("/:id/accept", AcceptDraft(svc.Drafts))
	drafts.Post("/:id/reject", RejectDraft(svc.Drafts))
	drafts.Post("/:id/sign", SignDraft(svc.Drafts))
	drafts.Post("/:id/exports", ExportDraft(svc.Exports))
	drafts.Get("/:id/exports", ListExports(svc.Exports))
	drafts.Get("/:id/audit", DraftTrail(svc.Audit))

	exports := app.Group("/exports")
	exports.Get("/:id/download", DownloadExport(svc.Exports))
	exports.Get("/:id/verify", VerifyExport(svc.Exports))
}
