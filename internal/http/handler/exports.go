package handler

import (
	"github.com/gofiber/fiber/v2"

	"handover/internal/model"
	"handover/internal/service"
)

type exportRequest struct {
	ArtifactType string   `json:"artifact_type" validate:"required,oneof=document printable message"`
	Recipients   []string `json:"recipients" validate:"max=50,dive,required,max=256"`
}

type exportResponse struct {
	Export *model.Export `json:"export"`
	Draft  *model.Draft  `json:"draft"`
}

// ExportDraft renders a signed draft and stores the artifact. A render or
// storage failure leaves the draft signed and the call can be retried.
//
// @Summary Export a signed draft
// @Tags exports
// @Accept json
// @Produce json
// @Success 201 {object} exportResponse
// @Failure 422 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Router /drafts/{id}/exports [post]
func ExportDraft(svc service.ExportService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req exportRequest
		if ok, err := bind(c, &req); !ok {
			return err
		}
		ex, d, err := svc.Export(c.UserContext(), actorOf(c), c.Params("id"), model.ArtifactType(req.ArtifactType), req.Recipients)
		if err != nil {
			if _, _, _, ok := classify(err); !ok {
				return writeDraftError(c, fiber.StatusBadGateway, "EXPORT_FAILED", "export failed; the draft is unchanged and the export can be retried", d)
			}
			return fail(c, err, d)
		}
		return c.Status(fiber.StatusCreated).JSON(exportResponse{Export: ex, Draft: d})
	}
}

// ListExports lists every export of a draft.
//
// @Summary List exports
// @Tags exports
// @Produce json
// @Success 200 {array} model.Export
// @Router /drafts/{id}/exports [get]
func ListExports(svc service.ExportService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := svc.List(c.UserContext(), actorOf(c), c.Params("id"))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(fiber.Map{"items": list, "total": len(list)})
	}
}

// DownloadExport returns a time-limited URL for the stored artifact.
//
// @Summary Presigned artifact URL
// @Tags exports
// @Produce json
// @Success 200 {object} map[string]string
// @Router /exports/{id}/download [get]
func DownloadExport(svc service.ExportService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := svc.DownloadURL(c.UserContext(), actorOf(c), c.Params("id"))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(fiber.Map{"url": u})
	}
}

// VerifyExport recomputes the content hash and artifact checksum of an export.
//
// @Summary Verify an export
// @Tags exports
// @Produce json
// @Success 200 {object} service.VerifyResult
// @Router /exports/{id}/verify [get]
func VerifyExport(svc service.ExportService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.Verify(c.UserContext(), actorOf(c), c.Params("id"))
		if err != nil {
			return fail(c, err, nil)
		}
		return c.JSON(res)
	}
}
