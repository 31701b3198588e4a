package memory

import (
	"context"
	"fmt"
	"strings"

	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

// sessionSearchLimit bounds the entries returned to the agent per search.
const sessionSearchLimit = 10

// Service adapts a Store to adk's memory.Service so the agent can recall
// past query outcomes and learn user preferences across sessions.
type Service struct {
	store    Store
	recorder *Recorder
	ownerID  string
}

// NewService creates a new memory service over store for ownerID.
func NewService(store Store, ownerID string) *Service {
	return &Service{store: store, recorder: NewRecorder(store, ownerID), ownerID: ownerID}
}

// AddSession implements memory.Service interface.
// The last user question of a session that produced a meaningful answer is
// stored as a user_preferences record. Query outcomes are already recorded
// by the execute_query tool itself and are not duplicated here.
func (s *Service) AddSession(ctx context.Context, sess session.Session) error {
	var userQuery string
	var agentResponse string

	for event := range sess.Events().All() {
		if event.Author == "user" && event.Content != nil {
			textParts := extractTextFromContent([]*genai.Content{event.Content})
			if len(textParts) > 0 {
				userQuery = strings.Join(textParts, " ")
			}
			continue
		}

		if event.Content != nil {
			textParts := extractTextFromContent([]*genai.Content{event.Content})
			if len(textParts) > 0 {
				agentResponse = strings.Join(textParts, " ")
			}
		}
	}

	// Only save if we have both a query and a meaningful response
	if userQuery == "" || len(agentResponse) <= 20 {
		return nil
	}

	text := "User asked: " + Truncate(userQuery, 200)
	meta := Metadata{
		"session_id":     sess.ID(),
		"answer_excerpt": Truncate(agentResponse, 200),
	}
	if err := s.recorder.Record(ctx, text, CategoryUserPreferences, meta); err != nil {
		return fmt.Errorf("failed to save session to memory: %w", err)
	}

	return nil
}

// Search implements memory.Service interface.
func (s *Service) Search(ctx context.Context, req *adkmemory.SearchRequest) (*adkmemory.SearchResponse, error) {
	records, err := s.store.Search(ctx, SearchRequest{
		Query:   req.Query,
		OwnerID: s.ownerID,
		Limit:   sessionSearchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}

	memories := make([]adkmemory.Entry, 0, len(records))
	for _, rec := range records {
		content := fmt.Sprintf("[%s] %s", rec.Category, rec.Text)

		// genai.Text returns []*Content, we need the first one
		contentParts := genai.Text(content)
		if len(contentParts) == 0 {
			continue
		}

		memories = append(memories, adkmemory.Entry{
			Content:   contentParts[0],
			Author:    "system",
			Timestamp: rec.CreatedAt,
		})
	}

	return &adkmemory.SearchResponse{Memories: memories}, nil
}

// extractTextFromContent extracts text from genai.Content parts
func extractTextFromContent(content []*genai.Content) []string {
	var texts []string
	for _, c := range content {
		for _, part := range c.Parts {
			if text := part.Text; text != "" {
				texts = append(texts, text)
			}
		}
	}
	return texts
}

var _ adkmemory.Service = (*Service)(nil)
