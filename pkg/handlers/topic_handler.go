package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/audit"
	"github.com/lorekeep/lorekeep-engine/pkg/auth"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
	"github.com/lorekeep/lorekeep-engine/pkg/services"
)

// Member mutation actions.
const (
	actionAdd     = "add"
	actionRemove  = "remove"
	actionConfirm = "confirm"
	actionExclude = "exclude"
	actionSetTime = "set_time"
)

// TopicHandler handles topic, member, merge and report HTTP requests.
type TopicHandler struct {
	topicService  services.TopicService
	memberService services.MemberService
	mergeService  services.MergeService
	reportService services.ReportService
	auditor       *audit.CurationAuditor
	logger        *zap.Logger
}

// NewTopicHandler creates a new topic handler.
func NewTopicHandler(
	topicService services.TopicService,
	memberService services.MemberService,
	mergeService services.MergeService,
	reportService services.ReportService,
	auditor *audit.CurationAuditor,
	logger *zap.Logger,
) *TopicHandler {
	return &TopicHandler{
		topicService:  topicService,
		memberService: memberService,
		mergeService:  mergeService,
		reportService: reportService,
		auditor:       auditor,
		logger:        logger,
	}
}

// RegisterRoutes registers the topic handler's routes on the given mux.
func (h *TopicHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/topics", authMiddleware.RequireAuth(h.ListTopics))
	mux.HandleFunc("GET /api/topics/{tid}", authMiddleware.RequireAuth(h.GetTopic))
	mux.HandleFunc("POST /api/topics/{tid}/members", authMiddleware.RequireAuth(h.MutateMember))
	mux.HandleFunc("POST /api/topics/{tid}/merge", authMiddleware.RequireAuth(h.MergeTopics))
	mux.HandleFunc("PUT /api/topics/{tid}/pinned", authMiddleware.RequireAuth(h.SetPinned))
	mux.HandleFunc("PUT /api/topics/{tid}/archived", authMiddleware.RequireAuth(h.SetArchived))
	mux.HandleFunc("POST /api/topics/{tid}/report", authMiddleware.RequireAuth(h.GenerateReport))
}

// requestScope pulls the authenticated owner and, when wantTopic is true,
// the {tid} path value out of the request.
func (h *TopicHandler) requestScope(w http.ResponseWriter, r *http.Request, wantTopic bool) (ownerID, topicID uuid.UUID, ok bool) {
	ownerID, err := auth.OwnerIDFromContext(r.Context())
	if err != nil {
		serviceError(w, h.logger, "unauthorized", err)
		return uuid.Nil, uuid.Nil, false
	}
	if !wantTopic {
		return ownerID, uuid.Nil, true
	}

	topicID, err = uuid.Parse(r.PathValue("tid"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_topic_id", "Invalid topic ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, topicID, true
}

// ListTopics handles GET /api/topics
func (h *TopicHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	ownerID, _, ok := h.requestScope(w, r, false)
	if !ok {
		return
	}

	topics, err := h.topicService.List(r.Context(), ownerID)
	if err != nil {
		serviceError(w, h.logger, "list_topics_failed", err)
		return
	}
	if topics == nil {
		topics = make([]*models.Topic, 0)
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: topics}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetTopic handles GET /api/topics/{tid}
func (h *TopicHandler) GetTopic(w http.ResponseWriter, r *http.Request) {
	ownerID, topicID, ok := h.requestScope(w, r, true)
	if !ok {
		return
	}

	detail, err := h.topicService.Detail(r.Context(), ownerID, topicID)
	if err != nil {
		serviceError(w, h.logger, "get_topic_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: detail}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type mutateMemberRequest struct {
	NoteID    string `json:"note_id"`
	Action    string `json:"action"`
	EventTime string `json:"event_time,omitempty"` // required for set_time
}

// MutateMember handles POST /api/topics/{tid}/members
func (h *TopicHandler) MutateMember(w http.ResponseWriter, r *http.Request) {
	ownerID, topicID, ok := h.requestScope(w, r, true)
	if !ok {
		return
	}

	var req mutateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	noteID, err := uuid.Parse(req.NoteID)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_note_id", "Invalid note ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var member *models.TopicMember
	switch req.Action {
	case actionAdd:
		member, err = h.memberService.Add(r.Context(), ownerID, topicID, noteID)
	case actionRemove:
		err = h.memberService.Remove(r.Context(), ownerID, topicID, noteID)
	case actionConfirm:
		member, err = h.memberService.Confirm(r.Context(), ownerID, topicID, noteID)
	case actionExclude:
		err = h.memberService.Exclude(r.Context(), ownerID, topicID, noteID)
	case actionSetTime:
		member, err = h.memberService.SetTime(r.Context(), ownerID, topicID, noteID, req.EventTime)
	default:
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_action",
			"Action must be one of add, remove, confirm, exclude, set_time"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if err != nil {
		serviceError(w, h.logger, "mutate_member_failed", err)
		return
	}

	h.auditor.Record(audit.CurationEvent{
		Action:  memberAuditAction(req.Action),
		OwnerID: ownerID,
		TopicID: topicID,
		NoteID:  noteID,
		Detail:  req.EventTime,
	})

	resp := ApiResponse{Success: true}
	if member != nil {
		resp.Data = member
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func memberAuditAction(action string) audit.CurationAction {
	switch action {
	case actionRemove:
		return audit.ActionMemberRemove
	case actionConfirm:
		return audit.ActionMemberConfirm
	case actionExclude:
		return audit.ActionMemberExclude
	case actionSetTime:
		return audit.ActionMemberSetTime
	default:
		return audit.ActionMemberAdd
	}
}

type mergeRequest struct {
	SourceID string `json:"source_id"`
}

// MergeTopics handles POST /api/topics/{tid}/merge
func (h *TopicHandler) MergeTopics(w http.ResponseWriter, r *http.Request) {
	ownerID, targetID, ok := h.requestScope(w, r, true)
	if !ok {
		return
	}

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_source_id", "Invalid source topic ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.mergeService.Merge(r.Context(), ownerID, targetID, sourceID)
	if err != nil {
		serviceError(w, h.logger, "merge_failed", err)
		return
	}

	h.auditor.Record(audit.CurationEvent{
		Action:  audit.ActionTopicMerge,
		OwnerID: ownerID,
		TopicID: targetID,
		Detail:  "source=" + sourceID.String(),
	})

	resp := ApiResponse{Success: true, Data: result}
	if result.Warning != "" {
		resp.Message = result.Warning
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type setPinnedRequest struct {
	Pinned bool `json:"pinned"`
}

// SetPinned handles PUT /api/topics/{tid}/pinned
func (h *TopicHandler) SetPinned(w http.ResponseWriter, r *http.Request) {
	ownerID, topicID, ok := h.requestScope(w, r, true)
	if !ok {
		return
	}

	var req setPinnedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	topic, err := h.topicService.SetPinned(r.Context(), ownerID, topicID, req.Pinned)
	if err != nil {
		serviceError(w, h.logger, "set_pinned_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: topic}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type setArchivedRequest struct {
	Archived bool `json:"archived"`
}

// SetArchived handles PUT /api/topics/{tid}/archived
func (h *TopicHandler) SetArchived(w http.ResponseWriter, r *http.Request) {
	ownerID, topicID, ok := h.requestScope(w, r, true)
	if !ok {
		return
	}

	var req setArchivedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	topic, err := h.topicService.SetArchived(r.Context(), ownerID, topicID, req.Archived)
	if err != nil {
		serviceError(w, h.logger, "set_archived_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: topic}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

type reportRequest struct {
	Mode string `json:"mode"` // report_only or full
}

// GenerateReport handles POST /api/topics/{tid}/report
func (h *TopicHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	ownerID, topicID, ok := h.requestScope(w, r, true)
	if !ok {
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if req.Mode == "" {
		req.Mode = services.ReportModeReportOnly
	}

	topic, err := h.reportService.Generate(r.Context(), ownerID, topicID, req.Mode)
	if err != nil {
		serviceError(w, h.logger, "generate_report_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: topic}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
