package http

import (
	"errors"
	"net/http"

	"envelopes/internal/core"
	"envelopes/internal/events"
	"envelopes/internal/log"
	"envelopes/internal/services"
	"envelopes/internal/storage"
)

func (s *Server) handleListEnvelopes(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(s.svc.List(r.Context())).Write(w)
}

func (s *Server) handleGetEnvelope(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	env, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse().JSON(env).Write(w)
}

func (s *Server) handleCreateEnvelope(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	title, err := p.String("title")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var t string
	if title != nil {
		t = *title
	}

	env, err := s.svc.Create(r.Context(), t, p.Number("budget"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).JSON(env).Write(w)
}

func (s *Server) handleUpdateEnvelope(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	title, err := p.String("title")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	env, err := s.svc.Update(r.Context(), id, title, p.Number("budget"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse().JSON(env).Write(w)
}

func (s *Server) handleSubtract(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	env, err := s.svc.Subtract(r.Context(), id, p.Number("amount"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse().JSON(env).Write(w)
}

func (s *Server) handleDeleteEnvelope(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r, "id")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	env, err := s.svc.Delete(r.Context(), id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse().JSON(struct {
		Message  string        `json:"message"`
		Envelope core.Envelope `json:"envelope"`
	}{"Envelope deleted successfully", env}).Write(w)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	from, err := ParseID(r, "from")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	to, err := ParseID(r, "to")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	tr, err := s.svc.Transfer(r.Context(), from, to, p.Number("amount"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse().JSON(struct {
		Message string        `json:"message"`
		From    core.Envelope `json:"from"`
		To      core.Envelope `json:"to"`
	}{"Transfer successful", tr.From, tr.To}).Write(w)
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	ds, err := p.Distributions("distributions")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	res, err := s.svc.Distribute(r.Context(), p.Number("amount"), ds)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse().JSON(struct {
		Message          string                  `json:"message"`
		TotalDistributed float64                 `json:"totalDistributed"`
		Distributions    []core.DistributedShare `json:"distributions"`
	}{"Amount distributed successfully", res.TotalDistributed, res.Shares}).Write(w)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := storage.ClampLimit(ParseLimit(r, storage.DefaultRecentLimit))

	recent, err := s.svc.Activity(r.Context(), limit)
	if errors.Is(err, services.ErrNoJournal) {
		ErrorResponse(http.StatusServiceUnavailable, err.Error()).Write(w)
		return
	}
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if recent == nil {
		recent = []events.Event{}
	}
	NewJSONResponse().JSON(map[string]any{"events": recent}).Write(w)
}

// writeLedgerError maps an operation error to its status and the standard
// error body.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *core.ValidationError
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooBig):
		ErrorResponse(http.StatusRequestEntityTooLarge, "request body too large").Write(w)
	case errors.Is(err, ErrMalformedBody):
		BadRequestError("invalid JSON body").Write(w)
	case errors.As(err, &verr):
		if verr.Rule {
			UnprocessableEntityError(verr.Error()).Write(w)
			return
		}
		BadRequestError(verr.Error()).Write(w)
	case errors.Is(err, core.ErrNotFound):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, core.ErrInsufficientFunds):
		UnprocessableEntityError(err.Error()).Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.NewFields().
				WithError(err).
				WithErrorType(log.ErrorTypeInternal).
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()).
				ToSlice()...)
		InternalServerError("internal server error").Write(w)
	}
}
