package main

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/youruser/texpilot/internal/config"
	"github.com/youruser/texpilot/internal/llm"
	"github.com/youruser/texpilot/internal/logging"
	"github.com/youruser/texpilot/internal/patch"
	"github.com/youruser/texpilot/internal/session"
)

//go:embed system_prompt.txt
var systemPrompt string

//go:embed summary_prompt.txt
var summaryPrompt string

//go:embed version.txt
var version string

// buildCommit is set via -ldflags or falls back to VCS info from debug.ReadBuildInfo.
var buildCommit string

var (
	ErrNoActiveSession = errors.New("no active session")
	ErrSessionNotFound = errors.New("session not found")
)

var (
	appConfig *config.Config
	llmClient *llm.Client
	log       = logging.Get()

	// Each session owns its document store and undo log; nothing is
	// shared across sessions.
	sessions        = map[string]*session.Session{}
	activeSessionID string

	respondMu sync.Mutex
	configMu  sync.Mutex
	stateMu   sync.Mutex
)

type streamState struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	requestID string
	canceled  bool
}

var activeStream streamState

// getBuildCommit returns the short commit hash, resolving from VCS build info if needed.
func getBuildCommit() string {
	if buildCommit != "" {
		return buildCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return setting.Value[:7]
		}
	}
	return ""
}

func versionString() string {
	v := strings.TrimSpace(version)
	if commit := getBuildCommit(); commit != "" {
		return v + " (" + commit + ")"
	}
	return v
}

func main() {
	// Handle --version flag
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Printf("texpilot %s\n", versionString())
			return
		}
	}

	if os.Getenv("TEXPILOT_DEBUG") == "1" {
		fmt.Fprintf(os.Stderr, "texpilot: process started with TEXPILOT_DEBUG=1\n")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		handleRequest(line)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			respond("", map[string]any{
				"type":    "error",
				"message": "Request too large (max 1MB). Split the document or the request.",
			})
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "stdin error: %v\n", err)
		os.Exit(1)
	}
}

func ensureConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	if appConfig != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	appConfig = cfg
	llmClient = llm.NewClient(cfg.BaseURL, cfg.APIKey)
	return nil
}

func reserveActiveStream(reqID string) bool {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	if activeStream.requestID != "" {
		return false
	}
	activeStream.requestID = reqID
	activeStream.cancel = nil
	activeStream.canceled = false
	return true
}

func setActiveStreamCancel(reqID string, cancel context.CancelFunc) bool {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	if activeStream.requestID != reqID {
		return false
	}
	activeStream.cancel = cancel
	return true
}

func clearActiveStream(reqID string) {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	if activeStream.requestID != reqID {
		return
	}
	activeStream.requestID = ""
	activeStream.cancel = nil
	activeStream.canceled = false
}

func cancelActiveStream(targetID string) bool {
	activeStream.mu.Lock()
	if activeStream.requestID == "" {
		activeStream.mu.Unlock()
		return false
	}
	if targetID != "" && activeStream.requestID != targetID {
		activeStream.mu.Unlock()
		return false
	}
	cancel := activeStream.cancel
	activeStream.canceled = true
	activeStream.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

func wasStreamCanceled(reqID string) bool {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	return activeStream.requestID == reqID && activeStream.canceled
}

func hasActiveStream() bool {
	activeStream.mu.Lock()
	defer activeStream.mu.Unlock()
	return activeStream.requestID != ""
}

// actionBlockedDuringStream lists actions that must wait while a send
// is streaming. The UI disables input during a stream; this guards
// against clients that don't.
func actionBlockedDuringStream(action string) bool {
	switch action {
	case "send", "doc_set", "undo", "session_new", "session_select", "summarize":
		return true
	}
	return false
}

// activeSession returns the selected session. Callers hold stateMu.
func activeSession() (*session.Session, error) {
	if activeSessionID == "" {
		return nil, ErrNoActiveSession
	}
	sess, ok := sessions[activeSessionID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return sess, nil
}

func handleRequest(line string) {
	var req map[string]any
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		log.Error("Invalid JSON request: %s", line)
		respond("", map[string]any{"type": "error", "message": "Invalid JSON"})
		return
	}

	action, _ := req["action"].(string)
	log.Request(action, line)
	reqID := requestID(req)

	if hasActiveStream() && actionBlockedDuringStream(action) {
		respond(reqID, map[string]any{"type": "error", "message": "Another request is already in progress"})
		return
	}

	switch action {
	case "ping":
		respond(reqID, map[string]any{"type": "ok"})

	case "version":
		respond(reqID, map[string]any{"type": "version", "version": versionString()})

	case "session_new":
		document, _ := req["document"].(string)
		model, _ := req["model"].(string)
		if err := ensureConfig(); err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		if model == "" {
			model = appConfig.DefaultModel
		}
		sess := session.New(document, llmClient, session.Options{
			Model:        model,
			SystemPrompt: systemPrompt,
			Params: llm.GenerateParams{
				Temperature: appConfig.Temperature,
				MaxTokens:   appConfig.MaxTokens,
			},
		})
		sess.Store().SetObserver(func(text string) {
			notifyDocumentChanged(sess.ID, text)
		})
		stateMu.Lock()
		sessions[sess.ID] = sess
		activeSessionID = sess.ID
		stateMu.Unlock()
		respond(reqID, map[string]any{"type": "ok", "id": sess.ID, "model": model})

	case "session_select":
		id, _ := req["id"].(string)
		if id == "" {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: id"})
			return
		}
		stateMu.Lock()
		_, ok := sessions[id]
		if ok {
			activeSessionID = id
		}
		stateMu.Unlock()
		if !ok {
			respond(reqID, errorResponse(ErrSessionNotFound))
			return
		}
		respond(reqID, map[string]any{"type": "ok", "id": id})

	case "session_list":
		stateMu.Lock()
		list := make([]map[string]any, 0, len(sessions))
		for id, sess := range sessions {
			list = append(list, map[string]any{
				"id":       id,
				"model":    sess.Model(),
				"active":   id == activeSessionID,
				"can_undo": sess.CanUndo(),
			})
		}
		stateMu.Unlock()
		respond(reqID, map[string]any{"type": "session_list", "sessions": list})

	case "doc_get":
		stateMu.Lock()
		sess, err := activeSession()
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, map[string]any{"type": "document", "content": sess.CurrentDocument()})

	case "doc_set":
		content, ok := req["content"].(string)
		if !ok {
			respond(reqID, map[string]any{"type": "error", "message": "Missing required field: content"})
			return
		}
		stateMu.Lock()
		sess, err := activeSession()
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		sess.Store().Replace(content, "manual edit", true)
		respond(reqID, map[string]any{"type": "ok"})

	case "send":
		if !reserveActiveStream(reqID) {
			respond(reqID, map[string]any{"type": "error", "message": "Another request is already in progress"})
			return
		}
		go handleSend(reqID, req)

	case "cancel":
		targetID, _ := req["target_id"].(string)
		canceled := cancelActiveStream(targetID)
		respond(reqID, map[string]any{"type": "cancel", "canceled": canceled})

	case "undo":
		stateMu.Lock()
		sess, err := activeSession()
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		undone := sess.Undo()
		resp := map[string]any{"type": "undo", "undone": undone}
		if undone {
			resp["document"] = sess.CurrentDocument()
		} else {
			resp["message"] = "nothing to undo"
		}
		respond(reqID, resp)

	case "can_undo":
		stateMu.Lock()
		sess, err := activeSession()
		stateMu.Unlock()
		if err != nil {
			respond(reqID, errorResponse(err))
			return
		}
		respond(reqID, map[string]any{"type": "can_undo", "can_undo": sess.CanUndo()})

	case "summarize":
		handleSummarize(reqID)

	case "get_models":
		handleGetModels(reqID)

	case "get_balance":
		handleGetBalance(reqID)

	case "":
		respond(reqID, map[string]any{"type": "error", "message": "Missing required field: action"})

	default:
		respond(reqID, map[string]any{"type": "error", "message": "Unknown action: " + action})
	}
}

// handleSend runs one user turn: stream the model's reply as chunk
// events, then reconcile and report the result. Runs on its own
// goroutine; the active-stream bookkeeping keeps it single-flight.
func handleSend(reqID string, req map[string]any) {
	defer clearActiveStream(reqID)

	if wasStreamCanceled(reqID) {
		respond(reqID, map[string]any{"type": "error", "message": "Response aborted by user."})
		return
	}

	content, _ := req["content"].(string)
	if content == "" {
		respond(reqID, map[string]any{"type": "error", "message": "Missing required field: content"})
		return
	}

	stateMu.Lock()
	sess, err := activeSession()
	stateMu.Unlock()
	if err != nil {
		respond(reqID, errorResponse(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	if !setActiveStreamCancel(reqID, cancel) {
		cancel()
		respond(reqID, map[string]any{"type": "error", "message": "Another request is already in progress"})
		return
	}
	defer cancel()

	log.Info("Starting turn for session %s (model: %s)", sess.ID, sess.Model())

	result, err := sess.ApplyUserTurn(ctx, content, func(chunk string, patchPending bool) {
		log.Stream("content", chunk)
		respond(reqID, map[string]any{
			"type":          "chunk",
			"content":       chunk,
			"patch_pending": patchPending,
		})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			respond(reqID, map[string]any{"type": "error", "message": "Response aborted by user."})
			return
		}
		respond(reqID, errorResponse(err))
		return
	}

	resp := map[string]any{
		"type":             "done",
		"content":          result.ConversationText,
		"document_updated": result.DocumentUpdated,
	}
	if result.DocumentUpdated {
		resp["document"] = sess.CurrentDocument()
		resp["patches"] = patchPayload(result.Applied)
		resp["previews"] = previewPayload(result.Previews)
	}
	if len(result.Warnings) > 0 {
		resp["warnings"] = result.Warnings
	}
	if result.Usage != nil {
		resp["usage"] = map[string]any{
			"prompt_tokens":     result.Usage.PromptTokens,
			"completion_tokens": result.Usage.CompletionTokens,
			"total_tokens":      result.Usage.TotalTokens,
			"cost":              result.Usage.Cost,
		}
	}
	respond(reqID, resp)
}

func handleSummarize(reqID string) {
	stateMu.Lock()
	sess, err := activeSession()
	stateMu.Unlock()
	if err != nil {
		respond(reqID, errorResponse(err))
		return
	}
	if err := ensureConfig(); err != nil {
		respond(reqID, errorResponse(err))
		return
	}

	summary, err := llmClient.ChatSimple(appConfig.SummaryModel, summaryPrompt, []llm.Message{
		{Role: "user", Content: sess.CurrentDocument()},
	})
	if err != nil {
		respond(reqID, errorResponse(err))
		return
	}
	respond(reqID, map[string]any{"type": "summary", "summary": strings.TrimSpace(summary)})
}

func handleGetModels(reqID string) {
	if err := ensureConfig(); err != nil {
		respond(reqID, errorResponse(err))
		return
	}
	models, err := llmClient.GetModels()
	if err != nil {
		respond(reqID, errorResponse(err))
		return
	}
	list := make([]map[string]any, 0, len(models.Data))
	for _, m := range models.Data {
		list = append(list, map[string]any{
			"id":               m.ID,
			"name":             m.Name,
			"context_length":   m.ContextLength,
			"prompt_price":     m.Pricing.Prompt,
			"completion_price": m.Pricing.Completion,
		})
	}
	respond(reqID, map[string]any{"type": "models", "models": list})
}

func handleGetBalance(reqID string) {
	if err := ensureConfig(); err != nil {
		respond(reqID, errorResponse(err))
		return
	}
	balance, err := llmClient.GetBalance()
	if err != nil {
		respond(reqID, errorResponse(err))
		return
	}
	respond(reqID, map[string]any{
		"type":    "balance",
		"credits": balance.Data.TotalCredits,
		"usage":   balance.Data.TotalUsage,
	})
}

// notifyDocumentChanged pushes an unsolicited notification so the UI
// can refresh its buffer after any replacement (apply, undo, doc_set).
func notifyDocumentChanged(sessionID, text string) {
	respond("", map[string]any{
		"type":       "document_changed",
		"session_id": sessionID,
		"content":    text,
	})
}

func patchPayload(recs []patch.Record) []map[string]any {
	out := make([]map[string]any, 0, len(recs))
	for _, r := range recs {
		entry := map[string]any{
			"operation": string(r.Op),
			"line":      r.Line,
		}
		if r.Op != patch.OpAdd {
			entry["delete"] = r.DeleteCount
		}
		if len(r.Insert) > 0 {
			entry["insert"] = r.Insert
		}
		out = append(out, entry)
	}
	return out
}

func previewPayload(previews []patch.Preview) []map[string]any {
	out := make([]map[string]any, 0, len(previews))
	for _, p := range previews {
		out = append(out, map[string]any{
			"line":           p.StartLine,
			"operation":      string(p.Record.Op),
			"before":         p.Before,
			"after":          p.After,
			"context_before": p.ContextBefore,
			"context_after":  p.ContextAfter,
		})
	}
	return out
}

func errorResponse(err error) map[string]any {
	var msg string
	switch {
	case errors.Is(err, ErrNoActiveSession):
		msg = "No active session"
	case errors.Is(err, ErrSessionNotFound):
		msg = "Session not found"
	case errors.Is(err, session.ErrTurnInProgress):
		msg = "Another request is already in progress"
	case errors.Is(err, config.ErrNoConfig):
		msg = "Config file not found: ~/.config/texpilot/config.json"
	case errors.Is(err, config.ErrNoAPIKey):
		msg = "API key not set in config"
	case errors.Is(err, config.ErrInvalidJSON):
		msg = "Config file is not valid JSON"
	default:
		msg = err.Error()
	}
	return map[string]any{"type": "error", "message": msg}
}

func respond(reqID string, data map[string]any) {
	out, _ := json.Marshal(addResponseID(reqID, data))
	msgType, _ := data["type"].(string)
	respondMu.Lock()
	defer respondMu.Unlock()
	log.Response(msgType, string(out))
	fmt.Println(string(out))
}

func addResponseID(reqID string, data map[string]any) map[string]any {
	if reqID == "" {
		return data
	}
	data["request_id"] = reqID
	return data
}

func requestID(req map[string]any) string {
	switch v := req["request_id"].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}
