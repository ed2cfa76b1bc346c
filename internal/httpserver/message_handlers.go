package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatcore/internal/service"
	"chatcore/internal/ws"
)

type messageCreateRequest struct {
	Content    string  `json:"content"`
	Attachment *string `json:"attachment"`
	ReplyToID  *int64  `json:"reply_to_id"`
}

// handleCreateMessage is the synchronous fallback send path. It shares the
// validation/persistence contract with the channel path and still fans the
// message out to any connected subscribers; the caller gets the persisted
// message back directly.
func handleCreateMessage(msgSvc *service.MessageService, notifier ws.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := Identity(r)
		convID, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}
		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		msg, err := msgSvc.Send(r.Context(), service.SendInput{
			ConversationID: convID,
			Content:        req.Content,
			Attachment:     req.Attachment,
			ReplyToID:      req.ReplyToID,
		}, userID)
		if err != nil {
			writeError(w, err)
			return
		}

		notifier.MessageAccepted(r.Context(), msg)

		resp, err := msgSvc.ToResponse(msg)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func handleListMessages(msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := Identity(r)
		convID, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}

		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			limit, err = strconv.Atoi(s)
			if err != nil || limit < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
		}

		msgs, err := msgSvc.ListMessages(r.Context(), convID, userID, limit)
		if err != nil {
			writeError(w, err)
			return
		}

		responses, err := msgSvc.ToResponses(msgs)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if responses == nil {
			responses = []*service.MessageResponse{}
		}
		writeJSON(w, http.StatusOK, responses)
	}
}
