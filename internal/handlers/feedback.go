package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"lino-backend/internal/common"
	"lino-backend/internal/models"
	"lino-backend/internal/review"
	"lino-backend/internal/workflow"
)

type FeedbackHandler struct {
	common.ServerState
}

func NewFeedbackHandler(state common.ServerState) *FeedbackHandler {
	return &FeedbackHandler{ServerState: state}
}

type SendFeedbackRequest struct {
	SenderUserID   *string `json:"sender_user_id"`
	ReceiverUserID string  `json:"receiver_user_id" validate:"required"`
	Message        string  `json:"message" validate:"required"`
}

// SendFeedback runs the full pipeline for a direct submission: the raw
// message is summarized, persisted, and delivered to the receiver's leader.
func (h *FeedbackHandler) SendFeedback(c echo.Context) error {
	req := &SendFeedbackRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	feedback, err := h.Workflow.Submit(c.Request().Context(), workflow.SubmitRequest{
		SenderID:   req.SenderUserID,
		ReceiverID: req.ReceiverUserID,
		RawMessage: req.Message,
	})
	if err != nil {
		return mapWorkflowError(c, err)
	}

	return c.JSON(http.StatusCreated, feedback)
}

func mapWorkflowError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, workflow.ErrSenderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Sender not found, use a valid user id or omit it to stay anonymous")
	case errors.Is(err, workflow.ErrTeamNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Receiver does not belong to any team")
	case errors.Is(err, workflow.ErrReceiverNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Team leader not found for the receiver's team")
	case errors.Is(err, workflow.ErrSummarizationFailed):
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to summarize the feedback, please retry")
	default:
		c.Logger().Errorf("Feedback submission failed: %v", err)
		CaptureError(err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to submit feedback")
	}
}

func (h *FeedbackHandler) ListFeedback(c echo.Context) error {
	var feedbacks []models.Feedback
	query := h.DB.Order("created_at DESC")
	if receiver := c.QueryParam("receiver_user_id"); receiver != "" {
		query = query.Where("receiver_user_id = ?", receiver)
	}
	if err := query.Find(&feedbacks).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load feedback")
	}

	return c.JSON(http.StatusOK, feedbacks)
}

func (h *FeedbackHandler) GetFeedback(c echo.Context) error {
	feedback, err := models.GetFeedbackByID(h.DB, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Feedback not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load feedback")
	}

	return c.JSON(http.StatusOK, feedback)
}

func (h *FeedbackHandler) DeleteFeedback(c echo.Context) error {
	feedback, err := models.GetFeedbackByID(h.DB, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Feedback not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load feedback")
	}

	if err := h.DB.Delete(feedback).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete feedback")
	}

	return c.NoContent(http.StatusNoContent)
}

type StartDraftRequest struct {
	SenderUserID   *string `json:"sender_user_id"`
	ReceiverUserID string  `json:"receiver_user_id" validate:"required"`
	Message        string  `json:"message" validate:"required"`
}

type RefineDraftRequest struct {
	Correction string `json:"correction" validate:"required"`
}

// StartDraft opens a review session: the message is summarized for preview
// but nothing is persisted until the draft is accepted.
func (h *FeedbackHandler) StartDraft(c echo.Context) error {
	req := &StartDraftRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	session, err := h.Drafts.Start(c.Request().Context(), review.StartRequest{
		SenderID:   req.SenderUserID,
		ReceiverID: req.ReceiverUserID,
		RawInput:   req.Message,
	})
	if err != nil {
		if errors.Is(err, workflow.ErrSummarizationFailed) {
			return echo.NewHTTPError(http.StatusBadGateway, "Failed to summarize the feedback, please retry")
		}
		c.Logger().Errorf("Failed to start draft: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to start draft")
	}

	return c.JSON(http.StatusCreated, session)
}

func (h *FeedbackHandler) RefineDraft(c echo.Context) error {
	req := &RefineDraftRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	session, err := h.Drafts.Refine(c.Request().Context(), c.Param("id"), req.Correction)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrSessionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Draft not found")
		case errors.Is(err, review.ErrRefinementLimit):
			return echo.NewHTTPError(http.StatusConflict, "Refinement limit reached, the draft can only be accepted")
		case errors.Is(err, review.ErrInvalidState):
			return echo.NewHTTPError(http.StatusConflict, "Draft is not reviewable")
		case errors.Is(err, workflow.ErrSummarizationFailed):
			return echo.NewHTTPError(http.StatusBadGateway, "Failed to refine the summary, please retry")
		}
		c.Logger().Errorf("Failed to refine draft: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to refine draft")
	}

	return c.JSON(http.StatusOK, session)
}

// AcceptDraft submits the reviewed summary and discards the session.
func (h *FeedbackHandler) AcceptDraft(c echo.Context) error {
	feedback, err := h.Drafts.Accept(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, review.ErrSessionNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Draft not found")
		case errors.Is(err, review.ErrInvalidState):
			return echo.NewHTTPError(http.StatusConflict, "Draft is not in an acceptable state")
		}
		return mapWorkflowError(c, err)
	}

	return c.JSON(http.StatusCreated, feedback)
}

func (h *FeedbackHandler) GetDraft(c echo.Context) error {
	session, err := h.Drafts.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, review.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Draft not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load draft")
	}

	return c.JSON(http.StatusOK, session)
}

// Transcribe turns an uploaded voice note into text for the draft flow.
func (h *FeedbackHandler) Transcribe(c echo.Context) error {
	if h.Transcriber == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Transcription is not configured")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing audio file")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read audio file")
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read audio file")
	}

	text, err := h.Transcriber.Transcribe(c.Request().Context(), audio, fileHeader.Filename)
	if err != nil {
		c.Logger().Errorf("Transcription failed: %v", err)
		CaptureError(err)
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to transcribe audio")
	}

	return c.JSON(http.StatusOK, map[string]string{"text": text})
}
