// Package session drives one editing conversation: it owns the
// document store and undo log for a session, sends user turns to the
// model, watches the streamed reply for patch blocks, and reconciles
// the finished reply into document changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/youruser/texpilot/internal/doc"
	"github.com/youruser/texpilot/internal/llm"
	"github.com/youruser/texpilot/internal/logging"
	"github.com/youruser/texpilot/internal/patch"
)

var (
	ErrTurnInProgress = errors.New("a turn is already in progress")

	log = logging.Get()
)

// State is the orchestrator's position in the per-turn loop.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateReconciling
)

// Generator is the model-call collaborator. *llm.Client satisfies it;
// tests substitute a scripted fake so the patch protocol logic stays
// backend-agnostic.
type Generator interface {
	ChatStream(ctx context.Context, model, systemPrompt string, messages []llm.Message, params llm.GenerateParams, callback llm.StreamCallback) error
}

// Options configures a session.
type Options struct {
	Model        string
	SystemPrompt string
	Params       llm.GenerateParams
	// Language is the fence tag of a full-document replacement block
	// (the coarse authoring mode). Defaults to "latex".
	Language string
}

// ChunkFunc receives each streamed content chunk together with the
// patch-marker predicate evaluated over everything received so far,
// so the UI can switch to a forming-patch preview mid-stream.
type ChunkFunc func(chunk string, patchPending bool)

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	ConversationText string
	DocumentUpdated  bool
	Applied          []patch.Record
	Previews         []patch.Preview
	Warnings         []string
	Usage            *llm.Usage
}

// Session owns the mutable state of one editing conversation. The
// document store and undo log are per-session; nothing is shared
// across sessions.
type Session struct {
	ID string

	opts  Options
	gen   Generator
	store *doc.Store

	mu      sync.Mutex
	state   State
	history []llm.Message
}

// New creates a session over the initial document text.
func New(initial string, gen Generator, opts Options) *Session {
	if opts.Language == "" {
		opts.Language = "latex"
	}
	return &Session{
		ID:    uuid.NewString(),
		opts:  opts,
		gen:   gen,
		store: doc.NewStore(initial, doc.NewUndoLog()),
	}
}

// Store exposes the session's document store (observer registration,
// manual edits from the UI).
func (s *Session) Store() *doc.Store {
	return s.store
}

// CurrentDocument returns the current document text.
func (s *Session) CurrentDocument() string {
	return s.store.Read()
}

// State reports the orchestrator state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Model returns the session's resolved model id.
func (s *Session) Model() string {
	return s.opts.Model
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrTurnInProgress
	}
	s.state = StateStreaming
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ApplyUserTurn runs one full turn: build the prompt around the
// current line-numbered document, stream the model's reply, then
// reconcile the finished reply into patches, a full-document
// replacement, or plain conversation.
//
// Cancellation is cooperative: cancel ctx and the turn aborts between
// chunks, the buffer is discarded, and the document stays untouched.
// A model-call error likewise aborts the turn with no mutation and no
// undo entry.
func (s *Session) ApplyUserTurn(ctx context.Context, instruction string, onChunk ChunkFunc) (*TurnResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.setState(StateIdle)

	userMsg := BuildUserMessage(instruction, s.store.Read())
	if n, err := llm.EstimateTokens(s.opts.SystemPrompt + userMsg); err == nil {
		log.Debug("Turn prompt estimate: %d tokens", n)
	}

	messages := make([]llm.Message, 0, len(s.history)+1)
	messages = append(messages, s.history...)
	messages = append(messages, llm.Message{Role: "user", Content: userMsg})

	// The buffer grows append-only; chunk order is the transport's
	// generation order.
	var buf strings.Builder
	var streamErrMsg string
	var usage *llm.Usage

	err := s.gen.ChatStream(ctx, s.opts.Model, s.opts.SystemPrompt, messages, s.opts.Params, func(ev llm.StreamEvent) {
		switch ev.Type {
		case "content":
			buf.WriteString(ev.Content)
			if onChunk != nil {
				onChunk(ev.Content, patch.HasPatchMarker(buf.String()))
			}
		case "error":
			streamErrMsg = ev.Error
		case "done":
			usage = ev.Usage
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			// User cancel: partial content is discarded, not an error state.
			log.Info("Turn canceled after %d buffered bytes", buf.Len())
			return nil, ctx.Err()
		}
		return nil, err
	}
	if streamErrMsg != "" {
		return nil, fmt.Errorf("%w: %s", llm.ErrStreamError, streamErrMsg)
	}

	s.setState(StateReconciling)
	reply := buf.String()
	result := s.reconcile(reply)
	result.Usage = usage

	s.mu.Lock()
	s.history = append(s.history,
		llm.Message{Role: "user", Content: instruction},
		llm.Message{Role: "assistant", Content: reply},
	)
	s.mu.Unlock()

	return result, nil
}

// reconcile runs the complete-block parser over the finished reply and
// applies whatever it finds. A reply with neither patch blocks nor a
// full-document block is pure conversation.
func (s *Session) reconcile(reply string) *TurnResult {
	result := &TurnResult{ConversationText: reply}

	recs, diags := patch.ParseBlocks(reply)
	for _, d := range diags {
		log.Info("Patch block skipped: %s", d)
		result.Warnings = append(result.Warnings, d)
	}

	if len(recs) > 0 {
		lines := s.store.Lines()
		for _, r := range recs {
			for _, reason := range patch.Validate(len(lines), r) {
				log.Info("Patch validation: %s", reason)
				result.Warnings = append(result.Warnings, reason)
			}
		}
		// Previews read the pre-apply document; Apply is a single
		// all-or-nothing splice sequence before the store updates once.
		result.Previews = patch.Previews(lines, recs)
		newLines := patch.Apply(lines, recs)
		label := fmt.Sprintf("applied %d patch(es)", len(recs))
		s.store.Replace(patch.JoinLines(newLines), label, true)
		result.Applied = recs
		result.DocumentUpdated = true
		return result
	}

	if body, ok := patch.ExtractFullDocument(reply, s.opts.Language); ok {
		s.store.Replace(body, "replaced entire document", true)
		result.DocumentUpdated = true
	}
	return result
}

// Undo restores the document to its state before the most recent
// applied turn. Returns false when there is nothing to undo.
func (s *Session) Undo() bool {
	return s.store.Undo()
}

// CanUndo reports whether an undo is available.
func (s *Session) CanUndo() bool {
	return s.store.CanUndo()
}
