package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatcore/internal/service"
)

type groupCreateRequest struct {
	Title          *string  `json:"title"`
	ParticipantIDs []string `json:"participant_ids"`
}

type directCreateRequest struct {
	UserID string `json:"user_id"`
}

func handleCreateGroup(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req groupCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		conv, err := convSvc.CreateGroup(r.Context(), service.GroupCreateInput{
			Title:          req.Title,
			ParticipantIDs: req.ParticipantIDs,
		}, Identity(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

// handleCreateDirect returns the one-to-one conversation with the target
// identity, creating it if it does not exist yet.
func handleCreateDirect(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req directCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		conv, err := convSvc.CreateOrGetDirect(r.Context(), Identity(r), req.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		previews, err := convSvc.ListForUser(r.Context(), Identity(r))
		if err != nil {
			writeError(w, err)
			return
		}
		if previews == nil {
			previews = []*service.ConversationPreview{}
		}
		writeJSON(w, http.StatusOK, previews)
	}
}

func handleDeleteConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convID, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}
		if err := convSvc.Delete(r.Context(), convID, Identity(r)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMarkConversationRead(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convID, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}
		if err := convSvc.MarkAsRead(r.Context(), convID, Identity(r)); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
