package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/internal/attachment"
	"github.com/psu6810110402/gemini-foundry/internal/auth"
	"github.com/psu6810110402/gemini-foundry/internal/filter"
	"github.com/psu6810110402/gemini-foundry/internal/generator"
	"github.com/psu6810110402/gemini-foundry/internal/stream"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

type validator interface{ Validate() error }

// admit decodes and validates a generation request and charges the caller's
// rate limit.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, req validator) (auth.Identity, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return auth.Identity{}, false
	}
	id, actor, err := s.caller(r)
	if err != nil {
		writeError(w, err)
		return auth.Identity{}, false
	}
	if err := decodeJSON(w, r, req); err != nil {
		writeError(w, err)
		return auth.Identity{}, false
	}
	if s.logger.Enabled(r.Context(), slog.LevelDebug) {
		if raw, err := json.Marshal(req); err == nil {
			s.logger.Debug("generation request", "path", r.URL.Path, "body", s.sanitizer.Body(string(raw)))
		}
	}
	if err := req.Validate(); err != nil {
		writeError(w, apierr.Wrap(apierr.BadRequest, err, err.Error()))
		return auth.Identity{}, false
	}
	if err := s.allow(actor); err != nil {
		writeError(w, err)
		return auth.Identity{}, false
	}
	return id, true
}

func (s *Server) handleInvestorAnalysis(w http.ResponseWriter, r *http.Request) {
	var req types.InvestorRequest
	id, ok := s.admit(w, r, &req)
	if !ok {
		return
	}
	req.Message = filter.CleanInput(req.Message)
	var att *attachment.Attachment
	if req.Image != "" {
		a, err := attachment.Parse(req.Image)
		if err != nil {
			writeError(w, apierr.Wrap(apierr.BadRequest, err, err.Error()))
			return
		}
		att = a
	}
	s.structured(w, r, id, "/api/investor-analysis", generator.InvestorPrompt(req), att)
}

func (s *Server) handleMarketSynthesis(w http.ResponseWriter, r *http.Request) {
	var req types.MarketRequest
	id, ok := s.admit(w, r, &req)
	if !ok {
		return
	}
	req.MarketData = filter.CleanInput(req.MarketData)
	s.structured(w, r, id, "/api/market-synthesis", generator.MarketPrompt(req), nil)
}

func (s *Server) handleMVPBlueprint(w http.ResponseWriter, r *http.Request) {
	var req types.MVPRequest
	id, ok := s.admit(w, r, &req)
	if !ok {
		return
	}
	req.Idea = filter.CleanInput(req.Idea)
	s.structured(w, r, id, "/api/mvp-blueprint", generator.MVPPrompt(req), nil)
}

func (s *Server) handlePivotStrategy(w http.ResponseWriter, r *http.Request) {
	var req types.PivotStrategyRequest
	id, ok := s.admit(w, r, &req)
	if !ok {
		return
	}
	req.CurrentProduct = filter.CleanInput(req.CurrentProduct)
	req.Problem = filter.CleanInput(req.Problem)
	req.MarketFeedback = filter.CleanInput(req.MarketFeedback)
	s.structured(w, r, id, "/api/pivot-strategy", generator.PivotStrategyPrompt(req), nil)
}

func (s *Server) handleFinancialOutlook(w http.ResponseWriter, r *http.Request) {
	var req types.FinancialRequest
	id, ok := s.admit(w, r, &req)
	if !ok {
		return
	}
	req.BusinessModel = filter.CleanInput(req.BusinessModel)
	req.CostStructure = filter.CleanInput(req.CostStructure)
	s.structured(w, r, id, "/api/financial-outlook", generator.FinancialPrompt(req), nil)
}

func (s *Server) structured(w http.ResponseWriter, r *http.Request, id auth.Identity, endpoint string, p generator.Prompt, att *attachment.Attachment) {
	analysis, usage, err := s.gen.Structured(r.Context(), p, att)
	s.recordUsage(r.Context(), id, endpoint, usage)
	if err != nil {
		s.logger.Error("structured generation failed", "endpoint", endpoint, "kind", p.Kind, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleInvestorFollowUp(w http.ResponseWriter, r *http.Request) {
	var req types.FollowUpRequest
	id, ok := s.admit(w, r, &req)
	if !ok {
		return
	}
	question := filter.CleanInput(req.Question)
	s.streamText(w, r, id, "/api/investor-followup", func(ctx context.Context, emit generator.EmitFunc) (int, error) {
		return s.gen.FollowUp(ctx, req.History, question, emit)
	})
}

func (s *Server) handlePivot(w http.ResponseWriter, r *http.Request) {
	var req types.PivotRequest
	id, ok := s.admit(w, r, &req)
	if !ok {
		return
	}
	s.streamText(w, r, id, "/api/pivot", func(ctx context.Context, emit generator.EmitFunc) (int, error) {
		return s.gen.Pivot(ctx, req.History, emit)
	})
}

// streamText relays generated fragments as a chunked text body that ends with
// the in-band usage record. Errors before the first fragment are answered as
// JSON; later ones abort the connection so the client sees an interrupted
// stream rather than a short answer.
func (s *Server) streamText(w http.ResponseWriter, r *http.Request, id auth.Identity, endpoint string, run func(context.Context, generator.EmitFunc) (int, error)) {
	rc := http.NewResponseController(w)
	started := false
	emit := func(fragment string) error {
		if !started {
			h := w.Header()
			h.Set("Content-Type", "text/plain; charset=utf-8")
			h.Set("Cache-Control", "no-cache")
			h.Set("Trailer", stream.UsageTrailer)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(stream.SanitizeText(fragment))); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}

	usage, err := run(r.Context(), emit)
	s.recordUsage(r.Context(), id, endpoint, usage)
	if err != nil {
		s.logger.Error("stream generation failed", "endpoint", endpoint, "started", started, "error", err)
		if !started {
			writeError(w, err)
			return
		}
		panic(http.ErrAbortHandler)
	}
	if !started {
		_ = emit("")
	}
	if usage > 0 {
		_ = stream.WriteUsage(w, usage)
		w.Header().Set(stream.UsageTrailer, strconv.Itoa(usage))
	}
	_ = rc.Flush()
}

func (s *Server) recordUsage(ctx context.Context, id auth.Identity, endpoint string, tokens int) {
	if tokens <= 0 || id.UserID == "" {
		return
	}
	if err := s.store.RecordUsage(context.WithoutCancel(ctx), id.UserID, endpoint, tokens); err != nil {
		s.logger.Warn("record usage failed", "endpoint", endpoint, "error", err)
	}
}
