package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"handover/internal/model"
	"handover/internal/service"
)

type generateDraftRequest struct {
	Department  string    `json:"department" validate:"required,max=64"`
	PeriodStart time.Time `json:"period_start" validate:"required"`
	PeriodEnd   time.Time `json:"period_end" validate:"required,gtfield=PeriodStart"`
}

type editItemRequest struct {
	Text string `json:"text" validate:"required,max=8000"`
}

// confirmRequest carries the explicit confirmation of accept and sign. A
// missing flag is rejected by the state machine, not by validation.
type confirmRequest struct {
	Confirmed bool `json:"confirmed"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// GenerateDraft assembles a draft from the candidate pool. A conflict returns
// the existing active draft so the caller can resume it.
//
// @Summary Generate a draft
// @Tags drafts
// @Accept json
// @Produce json
// @Success 201 {object} model.Draft
// @Failure 409 {object} errorPayload
// @Router /drafts [post]
func GenerateDraft(svc service.DraftService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req generateDraftRequest
		if ok, err := bind(c, &req); !ok {
			return err
		}
		d, err := svc.Generate(c.UserContext(), actorOf(c), service.GenerateInput{
			Department:  req.Department,
			PeriodStart: req.PeriodStart,
			PeriodEnd:   req.PeriodEnd,
		})
		if err != nil {
			return fail(c, err, d)
		}
		return c.Status(fiber.StatusCreated).JSON(d)
	}
}

// GetDraft returns a draft with sections, items, merge proposals and any
// staleness warning.
//
// @Summary Get a draft
// @Tags drafts
// @Produce json
// @Success 200 {object} model.Draft
// @Router /drafts/{id} [get]
func GetDraft(svc service.DraftService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := svc.Get(c.UserContext(), actorOf(c), c.Params("id"))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(d)
	}
}

// ListDrafts lists the caller tenant's active drafts.
//
// @Summary List active drafts
// @Tags drafts
// @Produce json
// @Success 200 {array} model.Draft
// @Router /drafts [get]
func ListDrafts(svc service.DraftService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := svc.ListActive(c.UserContext(), actorOf(c))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(fiber.Map{"items": list, "total": len(list)})
	}
}

// EditItem replaces the text of an item while the draft is editable.
//
// @Summary Edit a draft item
// @Tags review
// @Accept json
// @Produce json
// @Success 200 {object} model.Draft
// @Failure 422 {object} errorPayload
// @Router /drafts/{id}/items/{itemId} [patch]
func EditItem(svc service.DraftService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req editItemRequest
		if ok, err := bind(c, &req); !ok {
			return err
		}
		d, err := svc.EditItem(c.UserContext(), actorOf(c), c.Params("id"), c.Params("itemId"), req.Text)
		if err != nil {
			return fail(c, err, d)
		}
		return c.JSON(d)
	}
}

// AcceptMerge confirms a merge proposal.
//
// @Summary Accept a merge proposal
// @Tags review
// @Produce json
// @Success 200 {object} model.Draft
// @Router /drafts/{id}/merges/{proposalId}/accept [post]
func AcceptMerge(svc service.DraftService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := svc.AcceptMerge(c.UserContext(), actorOf(c), c.Params("id"), c.Params("proposalId"))
		if err != nil {
			return fail(c, err, d)
		}
		return c.JSON(d)
	}
}

// DismissMerge closes a merge proposal and keeps both items.
//
// @Summary Dismiss a merge proposal
// @Tags review
// @Produce json
// @Success 200 {object} model.Draft
// @Router /drafts/{id}/merges/{proposalId}/dismiss [post]
func DismissMerge(svc service.DraftService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := svc.DismissMerge(c.UserContext(), actorOf(c), c.Params("id"), c.Params("proposalId"))
		if err != nil {
			return fail(c, err, d)
		}
		return c.JSON(d)
	}
}

// MarkSectionViewed records that the caller has viewed a section.
//
// @Summary Mark a section viewed
// @Tags review
// @Produce json
// @Success 200 {object} model.Draft
// @Router /drafts/{id}/sections/{sectionId}/viewed [post]
func MarkSectionViewed(svc service.DraftService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := svc.MarkSectionViewed(c.UserContext(), actorOf(c), c.Params("id"), c.Params("sectionId"))
		if err != nil {
			return fail(c, err, d)
		}
		return c.JSON(d)
	}
}

// transition adapts a body-less lifecycle call.
func transition(call func(c *fiber.Ctx, actor model.Actor, id string) (*model.Draft, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := call(c, actorOf(c), c.Params("id"))
		if err != nil {
			return fail(c, err, d)
		}
		return c.JSON(d)
	}
}

// OpenReview moves a draft from DRAFT to IN_REVIEW.
//
// @Summary Open review
// @Tags signoff
// @Produce json
// @Success 200 {object} model.Draft
// @Router /drafts/{id}/open-review [post]
func OpenReview(svc service.DraftService) fiber.Handler {
	return transition(func(c *fiber.Ctx, actor model.Actor, id string) (*model.Draft, error) {
		return svc.OpenReview(c.UserContext(), actor, id)
	})
}

// Abandon returns a draft in review to DRAFT.
//
// @Summary Abandon review
// @Tags signoff
// @Produce json
// @Success 200 {object} model.Draft
// @Router /drafts/{id}/abandon [post]
func Abandon(svc service.DraftService) fiber.Handler {
	return transition(func(c *fiber.Ctx, actor model.Actor, id string) (*model.Draft, error) {
		return svc.Abandon(c.UserContext(), actor, id)
	})
}

// AcceptDraft records the outgoing signoff.
//
// @Summary Accept (outgoing signoff)
// @Tags signoff
// @Accept json
// @Produce json
// @Success 200 {object} model.Draft
// @Failure 422 {object} errorPayload
// @Router /drafts/{id}/accept [post]
func AcceptDraft(svc service.DraftService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req confirmRequest
		if ok, err := bind(c, &req); !ok {
			return err
		}
		d, err := svc.Accept(c.UserContext(), actorOf(c), c.Params("id"), req.Confirmed)
		if err != nil {
			return fail(c, err, d)
		}
		return c.JSON(d)
	}
}

// RejectDraft clears the outgoing signoff and reopens review.
//
// @Summary Reject an accepted draft
// @Tags signoff
// @Accept json
// @Produce json
// @Success 200 {object} model.Draft
// @Router /drafts/{id}/reject [post]
func RejectDraft(svc service.DraftService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req rejectRequest
		if ok, err := bind(c, &req); !ok {
			return err
		}
		d, err := svc.Reject(c.UserContext(), actorOf(c), c.Params("id"), req.Reason)
		if err != nil {
			return fail(c, err, d)
		}
		return c.JSON(d)
	}
}

// SignDraft records the incoming signoff and fixes the content hash.
//
// @Summary Sign (incoming signoff)
// @Tags signoff
// @Accept json
// @Produce json
// @Success 200 {object} model.Draft
// @Failure 422 {object} errorPayload
// @Router /drafts/{id}/sign [post]
func SignDraft(svc service.DraftService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req confirmRequest
		if ok, err := bind(c, &req); !ok {
			return err
		}
		d, err := svc.Sign(c.UserContext(), actorOf(c), c.Params("id"), req.Confirmed)
		if err != nil {
			return fail(c, err, d)
		}
		return c.JSON(d)
	}
}

// DraftTrail returns the ordered audit trail of a draft.
//
// @Summary Draft audit trail
// @Tags audit
// @Produce json
// @Success 200 {array} model.AuditEvent
// @Router /drafts/{id}/audit [get]
func DraftTrail(svc service.AuditService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ev, err := svc.DraftTrail(c.UserContext(), actorOf(c), c.Params("id"))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(ev)
	}
}
