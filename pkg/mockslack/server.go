// Package mockslack is an in-process fake of the Slack webhook and Web API
// endpoints used by slackclient.
package mockslack

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/slack-go/slack"
)

// Channel is a conversation known to the server.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a chat.postMessage call.
type Message struct {
	Channel  string
	Text     string
	ThreadTS string
}

// Upload is a completed files v2 upload.
type Upload struct {
	FileID         string
	Filename       string
	Title          string
	Content        []byte
	ChannelID      string
	InitialComment string
}

// Server records every request it receives. Fields set before the first
// request configure its behaviour.
type Server struct {
	*httptest.Server

	Token    string
	Channels []Channel
	// PageSize limits conversations.list pages.
	PageSize int
	// WebhookStatus, when non-zero, is returned by the webhook endpoint.
	WebhookStatus int

	mu       sync.Mutex
	webhooks []slack.WebhookMessage
	messages []Message
	uploads  map[string]*Upload
	order    []string
	nextFile int
	listings int
}

// New starts a server that accepts token on the Web API.
func New(token string) *Server {
	s := &Server{
		Token:    token,
		PageSize: 2,
		uploads:  map[string]*Upload{},
	}

	r := mux.NewRouter()
	r.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/upload/{id}", s.handleUploadContent).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat.postMessage", s.authorized(s.handlePostMessage)).Methods(http.MethodPost)
	api.HandleFunc("/conversations.list", s.authorized(s.handleConversationsList)).Methods(http.MethodPost)
	api.HandleFunc("/files.getUploadURLExternal", s.authorized(s.handleGetUploadURL)).Methods(http.MethodPost)
	api.HandleFunc("/files.completeUploadExternal", s.authorized(s.handleCompleteUpload)).Methods(http.MethodPost)

	s.Server = httptest.NewServer(r)
	return s
}

// APIURL is the Web API base URL.
func (s *Server) APIURL() string {
	return s.URL + "/api/"
}

// WebhookURL is the incoming webhook URL.
func (s *Server) WebhookURL() string {
	return s.URL + "/webhook"
}

// Webhooks returns the webhook payloads received so far.
func (s *Server) Webhooks() []slack.WebhookMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]slack.WebhookMessage(nil), s.webhooks...)
}

// Messages returns the chat.postMessage calls received so far.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Uploads returns completed uploads in completion order.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Upload
	for _, id := range s.order {
		out = append(out, *s.uploads[id])
	}
	return out
}

// ListCalls is the number of conversations.list pages served.
func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listings
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code string) {
	writeJSON(w, map[string]any{"ok": false, "error": code})
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		token := r.PostForm.Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token != s.Token {
			writeError(w, "invalid_auth")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.WebhookStatus != 0 {
		http.Error(w, "no_service", s.WebhookStatus)
		return
	}
	var msg slack.WebhookMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.webhooks = append(s.webhooks, msg)
	s.mu.Unlock()
	io.WriteString(w, "ok")
}

func (s *Server) lookupChannel(ref string) (Channel, bool) {
	name := strings.TrimPrefix(ref, "#")
	for _, ch := range s.Channels {
		if ch.ID == ref || ch.Name == name {
			return ch, true
		}
	}
	return Channel{}, false
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.lookupChannel(r.PostForm.Get("channel"))
	if !ok {
		writeError(w, "channel_not_found")
		return
	}

	s.mu.Lock()
	s.messages = append(s.messages, Message{
		Channel:  ch.ID,
		Text:     r.PostForm.Get("text"),
		ThreadTS: r.PostForm.Get("thread_ts"),
	})
	ts := "1700000000." + strconv.Itoa(100000+len(s.messages))
	s.mu.Unlock()

	writeJSON(w, map[string]any{"ok": true, "channel": ch.ID, "ts": ts})
}

func (s *Server) handleConversationsList(w http.ResponseWriter, r *http.Request) {
	start, _ := strconv.Atoi(r.PostForm.Get("cursor"))
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = len(s.Channels)
	}
	end := min(start+pageSize, len(s.Channels))
	if start > end {
		start = end
	}

	next := ""
	if end < len(s.Channels) {
		next = strconv.Itoa(end)
	}

	s.mu.Lock()
	s.listings++
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"ok":                true,
		"channels":          s.Channels[start:end],
		"response_metadata": map[string]string{"next_cursor": next},
	})
}

func (s *Server) handleGetUploadURL(w http.ResponseWriter, r *http.Request) {
	length, err := strconv.Atoi(r.PostForm.Get("length"))
	if err != nil || length <= 0 {
		writeError(w, "invalid_arguments")
		return
	}

	s.mu.Lock()
	s.nextFile++
	id := "F" + strconv.Itoa(1000+s.nextFile)
	s.uploads[id] = &Upload{FileID: id, Filename: r.PostForm.Get("filename")}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"ok": true, "upload_url": s.URL + "/upload/" + id, "file_id": id})
}

func (s *Server) handleUploadContent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	up.Content = content
	io.WriteString(w, "OK - "+strconv.Itoa(len(content)))
}

func (s *Server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	var files []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(r.PostForm.Get("files")), &files); err != nil || len(files) == 0 {
		writeError(w, "invalid_arguments")
		return
	}
	channelID := r.PostForm.Get("channel_id")
	if channelID != "" {
		if _, ok := s.lookupChannel(channelID); !ok {
			writeError(w, "channel_not_found")
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	summaries := make([]map[string]string, 0, len(files))
	for _, f := range files {
		up, ok := s.uploads[f.ID]
		if !ok || up.Content == nil {
			writeError(w, "file_not_found")
			return
		}
		up.Title = f.Title
		up.ChannelID = channelID
		up.InitialComment = r.PostForm.Get("initial_comment")
		s.order = append(s.order, f.ID)
		summaries = append(summaries, map[string]string{"id": f.ID, "title": f.Title})
	}
	writeJSON(w, map[string]any{"ok": true, "files": summaries})
}
