package server

import (
	"net/http"

	"github.com/alfredjeanlab/threadlive/internal/model"
	"github.com/alfredjeanlab/threadlive/internal/vote"
)

// handleCreateQuestion handles POST /v1/questions.
func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	q, err := s.CreateQuestion(r.Context(), principalFromRequest(r), req.Title)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// handleUpdateQuestion handles PATCH /v1/questions/{id}.
func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r.PathValue("id"), "question id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	q, err := s.UpdateQuestion(r.Context(), principalFromRequest(r), id, req.Title)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleSubmitAnswer handles POST /v1/questions/{id}/answers.
func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r.PathValue("id"), "question id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	a, err := s.SubmitAnswer(r.Context(), principalFromRequest(r), id, req.Body)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// handleCastVote handles POST /v1/votes.
func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req vote.CastVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.votes.CastVote(r.Context(), principalFromRequest(r), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetVotes handles GET /v1/votes?subject_type=&subject_id=. The
// caller's own vote is included when the request carries a user.
func (s *Server) handleGetVotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ := model.SubjectType(q.Get("subject_type"))
	if !typ.IsValid() {
		writeError(w, http.StatusBadRequest, "subject_type must be question or answer")
		return
	}
	id, err := int64Param(q.Get("subject_id"), "subject_id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	counts, err := s.votes.Counts(r.Context(), typ, id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resp := map[string]any{
		"subject_type": typ,
		"subject_id":   id,
		"votes_up":     counts.Up,
		"votes_down":   counts.Down,
		"score":        counts.Score(),
	}
	if p := principalFromRequest(r); p.Authenticated {
		v, err := s.votes.UserVote(r.Context(), typ, id, p.UserID)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		resp["user_vote"] = v
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMarkBest handles POST /v1/answers/{id}/best.
func (s *Server) handleMarkBest(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r.PathValue("id"), "answer id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.best.MarkBest(r.Context(), principalFromRequest(r), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleModerate handles POST /v1/moderation.
func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	var req ModerateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	evt, err := s.Moderate(r.Context(), principalFromRequest(r), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evt.Envelope())
}
