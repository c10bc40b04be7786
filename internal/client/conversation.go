package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/internal/attachment"
	"github.com/psu6810110402/gemini-foundry/internal/stream"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// PivotRequestText is recorded as the user turn of a pivot exchange.
const PivotRequestText = "Suggest pivot strategies based on this conversation."

// Input is one user turn. Text is the main prompt of the persona; Fields holds
// the extra form fields the financial (costStructure, currentStage) and pivot
// (problem, marketFeedback) personas take on their first turn.
type Input struct {
	Text       string
	Attachment *attachment.Attachment
	Fields     map[string]string
}

// Reply is the outcome of a completed exchange.
type Reply struct {
	Text string
	// Analysis is set for the structured first turn.
	Analysis    types.Analysis
	UsageTokens int
}

// ChunkFunc observes each fragment together with the buffer so far.
type ChunkFunc func(fragment, buffer string)

// Conversation is one chat with a persona. The first Send asks for a
// structured analysis; later turns stream free text.
type Conversation struct {
	client  *Client
	kind    types.Kind
	tracker stream.Tracker

	mu        sync.Mutex
	sessionID string
	history   []types.Turn
}

// Conversation starts a new chat with the persona of kind.
func (c *Client) Conversation(kind types.Kind) (*Conversation, error) {
	if _, ok := structuredPaths[kind]; !ok {
		return nil, fmt.Errorf("unknown persona %q", kind)
	}
	return &Conversation{client: c, kind: kind}, nil
}

func (cv *Conversation) Kind() types.Kind { return cv.kind }

// SessionID is the persisted session, empty until the first turn is stored.
func (cv *Conversation) SessionID() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.sessionID
}

// History returns a copy of the completed turns.
func (cv *Conversation) History() []types.Turn {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return append([]types.Turn(nil), cv.history...)
}

// Abandon drops the exchange in flight, if any.
func (cv *Conversation) Abandon() { cv.tracker.Abandon() }

// Send submits one user turn. A Send issued while an earlier one is still
// streaming abandons the earlier one, which then returns stream.ErrSuperseded.
func (cv *Conversation) Send(ctx context.Context, in Input, onChunk ChunkFunc) (*Reply, error) {
	content := userContent(in)
	if content == "" {
		return nil, apierr.New(apierr.BadRequest, "message or attachment is required")
	}

	history := cv.History()
	var (
		path string
		body validator
		mode = stream.ModeIncremental
	)
	if len(history) == 0 {
		path, body, mode = structuredPaths[cv.kind], structuredBody(cv.kind, in), stream.ModeStructured
	} else {
		if in.Attachment != nil {
			return nil, apierr.New(apierr.BadRequest, "attachments are only accepted with the first message")
		}
		path, body = followUpPath, types.FollowUpRequest{History: history, Question: strings.TrimSpace(in.Text)}
	}
	if err := body.Validate(); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, err.Error())
	}
	return cv.exchange(ctx, content, path, body, mode, onChunk)
}

// Pivot asks the pivot strategist to reframe the conversation so far.
func (cv *Conversation) Pivot(ctx context.Context, onChunk ChunkFunc) (*Reply, error) {
	history := cv.History()
	if len(history) == 0 {
		return nil, apierr.New(apierr.BadRequest, "nothing to pivot from yet")
	}
	return cv.exchange(ctx, PivotRequestText, pivotPath, types.PivotRequest{History: history}, stream.ModeIncremental, onChunk)
}

type validator interface{ Validate() error }

func (cv *Conversation) exchange(ctx context.Context, content, path string, body any, mode stream.Mode, onChunk ChunkFunc) (*Reply, error) {
	if err := cv.acquire(); err != nil {
		return nil, err
	}

	sess, sctx := cv.tracker.Begin(ctx, mode, cv.kind)
	defer cv.tracker.Finish(sess)

	sessionID := cv.persistUser(ctx, content)

	req, err := cv.client.newRequest(sctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := cv.client.do(req)
	if err != nil {
		if sess.Abandoned() {
			return nil, stream.ErrSuperseded
		}
		return nil, err
	}

	consumer := stream.Consumer{OnOverload: cv.overloaded, Logger: cv.client.Logger}
	reader, err := consumer.Consume(sctx, sess, resp)
	if err != nil {
		return nil, err
	}
	res, err := stream.Collect(reader, onChunk)
	if err != nil {
		cv.client.logger().Debug("exchange failed", "persona", cv.kind, "path", path, "buffered", len(res.FinalText), "error", err)
		return nil, err
	}

	reply := &Reply{Text: res.FinalText, Analysis: sess.Analysis(), UsageTokens: res.UsageTokens}
	modelContent := res.FinalText
	if reply.Analysis != nil {
		if data, err := json.Marshal(reply.Analysis); err == nil {
			modelContent = string(data)
		}
	}

	cv.mu.Lock()
	cv.history = append(cv.history, types.NewTurn(types.RoleUser, content), types.NewTurn(types.RoleModel, modelContent))
	cv.mu.Unlock()

	if sessionID != "" {
		if err := cv.client.Store.InsertMessage(ctx, sessionID, types.RoleModel, modelContent); err != nil {
			cv.client.logger().Warn("persist model message failed", "session", sessionID, "error", err)
		}
	}
	return reply, nil
}

// acquire charges the client throttle. A refusal carries the remaining
// cooldown.
func (cv *Conversation) acquire() error {
	th := cv.client.Throttle
	if th == nil || th.TryAcquire() {
		return nil
	}
	secs := th.RemainingCooldownSeconds()
	e := apierr.New(apierr.RateLimited, fmt.Sprintf("Please wait %ds", secs))
	e.RetryAfter = time.Duration(secs) * time.Second
	return e
}

func (cv *Conversation) overloaded() {
	if th := cv.client.Throttle; th != nil {
		th.NotifyOverload()
	}
}

// persistUser stores the user turn, creating the session on first use, and
// returns the session id. Persistence failures are logged; the exchange goes
// ahead without history.
func (cv *Conversation) persistUser(ctx context.Context, content string) string {
	st := cv.client.Store
	if st == nil {
		return ""
	}
	id := cv.SessionID()
	if id == "" {
		created, err := st.CreateSession(ctx, types.SessionTitle(content), cv.kind.Mode())
		if err != nil {
			cv.client.logger().Warn("create session failed", "persona", cv.kind, "error", err)
			return ""
		}
		cv.mu.Lock()
		if cv.sessionID == "" {
			cv.sessionID = created
		}
		id = cv.sessionID
		cv.mu.Unlock()
	}
	if err := st.InsertMessage(ctx, id, types.RoleUser, content); err != nil {
		cv.client.logger().Warn("persist user message failed", "session", id, "error", err)
		return ""
	}
	return id
}

func userContent(in Input) string {
	if text := strings.TrimSpace(in.Text); text != "" {
		return text
	}
	if in.Attachment != nil {
		return "[Uploaded: " + in.Attachment.Filename() + "]"
	}
	return ""
}

func structuredBody(kind types.Kind, in Input) validator {
	text := strings.TrimSpace(in.Text)
	switch kind {
	case types.KindMarket:
		return types.MarketRequest{MarketData: text}
	case types.KindMVP:
		return types.MVPRequest{Idea: text}
	case types.KindPivot:
		return types.PivotStrategyRequest{
			CurrentProduct: text,
			Problem:        in.Fields["problem"],
			MarketFeedback: in.Fields["marketFeedback"],
		}
	case types.KindFinancial:
		return types.FinancialRequest{
			BusinessModel: text,
			CostStructure: in.Fields["costStructure"],
			CurrentStage:  in.Fields["currentStage"],
		}
	default:
		req := types.InvestorRequest{Message: text}
		if in.Attachment != nil {
			req.Image = in.Attachment.DataURL()
		}
		return req
	}
}
