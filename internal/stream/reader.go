package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/psu6810110402/gemini-foundry/internal/apierr"
	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

const (
	readChunkSize      = 4096
	maxStructuredBytes = 8 << 20
	maxErrorBodyBytes  = 64 << 10
)

// Result is the terminal event of a consumed stream.
type Result struct {
	FinalText   string
	UsageTokens int
	Outcome     Status
	Err         error
}

// Consumer turns HTTP responses into Readers.
type Consumer struct {
	// OnOverload is called when the endpoint answers 429.
	OnOverload func()
	Logger     *slog.Logger
}

// Consume checks the response status and prepares to read its body according
// to the session mode. A non-2xx response is never read as a stream: its JSON
// error body becomes a classified error and the session fails.
func (c *Consumer) Consume(ctx context.Context, sess *Session, resp *http.Response) (*Reader, error) {
	if resp == nil {
		err := apierr.New(apierr.TransientGenerationFailure, "no response")
		sess.fail(err)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := StatusError(resp)
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests && c.OnOverload != nil {
			c.OnOverload()
		}
		sess.fail(err)
		c.log("generation request failed", "session", sess.ID, "status", resp.StatusCode, "error", err)
		return nil, err
	}
	if !sess.start() {
		_ = resp.Body.Close()
		return nil, ErrSuperseded
	}
	r := &Reader{ctx: ctx, sess: sess, body: resp.Body, resp: resp, logger: c.Logger}
	r.demux.onUsage = sess.setUsage
	return r, nil
}

func (c *Consumer) log(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Debug(msg, args...)
	}
}

// StatusError classifies a non-2xx response from its JSON error body and
// Retry-After header. The body is not closed.
func StatusError(resp *http.Response) *apierr.Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var body struct {
		Error string      `json:"error"`
		Kind  apierr.Kind `json:"kind"`
	}
	msg := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	e := apierr.FromResponse(resp.StatusCode, body.Kind, msg)
	if e.Kind == apierr.RateLimited {
		if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

// Reader yields the fragments of one response. It is finite and not
// restartable; it is not safe for concurrent use.
type Reader struct {
	ctx    context.Context
	sess   *Session
	body   io.ReadCloser
	resp   *http.Response
	logger *slog.Logger

	demux  demux
	buf    []byte
	text   string
	err    error
	done   bool
	closed bool
}

// Session is the session the reader feeds.
func (r *Reader) Session() *Session { return r.sess }

// Next advances to the next fragment. It returns false at end of stream, on
// failure and once the session has been abandoned.
func (r *Reader) Next() bool {
	if r.done {
		return false
	}
	if r.sess.Mode == ModeStructured {
		return r.nextStructured()
	}
	return r.nextIncremental()
}

// Text is the current fragment.
func (r *Reader) Text() string { return r.text }

// Err is the failure that stopped the reader, nil after a clean end.
func (r *Reader) Err() error { return r.err }

// Fragments ranges over the remaining fragments.
func (r *Reader) Fragments() iter.Seq[string] {
	return func(yield func(string) bool) {
		for r.Next() {
			if !yield(r.text) {
				return
			}
		}
	}
}

// Result reports the terminal event once Next has returned false.
func (r *Reader) Result() Result {
	return Result{
		FinalText:   r.sess.Buffer(),
		UsageTokens: r.sess.UsageTokens(),
		Outcome:     r.sess.Status(),
		Err:         r.sess.Err(),
	}
}

// Close stops reading. An unfinished session fails as interrupted.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if !r.done {
		r.finish(apierr.New(apierr.StreamInterrupted, "stream closed before completion"))
	}
	return r.body.Close()
}

func (r *Reader) nextStructured() bool {
	data, err := io.ReadAll(io.LimitReader(r.body, maxStructuredBytes))
	if err != nil {
		r.finish(r.readError(err))
		return false
	}
	a, err := types.DecodeAnalysis(r.sess.Kind, data)
	if err != nil {
		r.finish(apierr.Wrap(apierr.MalformedStructuredOutput, err, "structured response rejected"))
		return false
	}
	text := types.StripCodeFence(string(data))
	if !r.sess.replace(text, a) {
		r.finish(ErrSuperseded)
		return false
	}
	r.text = text
	r.finish(nil)
	return true
}

func (r *Reader) nextIncremental() bool {
	if r.buf == nil {
		r.buf = make([]byte, readChunkSize)
	}
	for {
		if r.sess.Abandoned() {
			r.finish(ErrSuperseded)
			return false
		}
		n, err := r.body.Read(r.buf)
		if n > 0 {
			if text := r.demux.feed(r.buf[:n]); len(text) > 0 {
				return r.emit(string(text), false)
			}
		}
		if errors.Is(err, io.EOF) {
			r.trailerUsage()
			if text := r.demux.close(); len(text) > 0 {
				return r.emit(string(text), true)
			}
			r.finish(nil)
			return false
		}
		if err != nil {
			r.finish(r.readError(err))
			return false
		}
	}
}

// emit applies text to the session. The final fragment completes the session
// as it is delivered.
func (r *Reader) emit(text string, last bool) bool {
	if !r.sess.appendChunk(text) {
		r.finish(ErrSuperseded)
		return false
	}
	r.text = text
	if last {
		r.finish(nil)
	}
	return true
}

func (r *Reader) trailerUsage() {
	if r.resp == nil || r.resp.Trailer == nil {
		return
	}
	if n, ok := parseUsageTrailer(r.resp.Trailer.Get(UsageTrailer)); ok {
		r.sess.setUsage(n)
	}
}

func (r *Reader) readError(err error) error {
	if r.sess.Abandoned() {
		return ErrSuperseded
	}
	if ctxErr := r.ctx.Err(); ctxErr != nil {
		return apierr.Wrap(apierr.StreamInterrupted, ctxErr, "stream cancelled")
	}
	return apierr.Wrap(apierr.StreamInterrupted, err, "connection dropped mid-stream")
}

// finish moves the session to its terminal state. err == nil completes it.
func (r *Reader) finish(err error) {
	r.done = true
	if err == nil {
		if !r.sess.complete() {
			r.err = ErrSuperseded
		}
	} else {
		r.err = err
		r.sess.fail(err)
	}
	if r.logger != nil {
		r.logger.Debug("stream finished", "session", r.sess.ID, "mode", r.sess.Mode, "status", r.sess.Status(), "bytes", len(r.sess.Buffer()), "usage_tokens", r.sess.UsageTokens())
	}
}

// splitUTF8 holds back an incomplete rune at the end of b.
func splitUTF8(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i], b[i:]
		}
		break
	}
	return b, nil
}

// Collect reads every fragment, calling onChunk after each with the fragment
// and the buffer so far, and returns the terminal result.
func Collect(r *Reader, onChunk func(fragment, buffer string)) (Result, error) {
	defer r.Close()
	for r.Next() {
		if onChunk != nil {
			onChunk(r.Text(), r.sess.Buffer())
		}
	}
	res := r.Result()
	if r.Err() != nil {
		return res, r.Err()
	}
	if res.Outcome != StatusCompleted {
		return res, fmt.Errorf("stream ended in %s state", res.Outcome)
	}
	return res, nil
}
