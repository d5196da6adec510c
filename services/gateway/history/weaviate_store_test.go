package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// =============================================================================
// Fake Weaviate REST Backend
// =============================================================================

type patchCall struct {
	Path  string
	Props map[string]any
}

// fakeWeaviate fakes the subset of the Weaviate REST API the store
// talks to: /v1/graphql reads, /v1/objects writes, /v1/batch/objects
// deletes, plus the readiness and schema endpoints used by Init.
type fakeWeaviate struct {
	server *httptest.Server

	mu           sync.Mutex
	graphqlData  []string // canned "data" payloads, popped in order
	queries      []string // captured GraphQL query strings
	created      []map[string]any
	patches      []patchCall
	batchDeletes []map[string]any
	schemaPosts  []string
	schemaExists bool
	failGraphQL  bool
}

func newFakeWeaviate(t *testing.T) *fakeWeaviate {
	t.Helper()
	f := &fakeWeaviate{schemaExists: true}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/.well-known/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v1/meta", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":"1.35.2"}`)
	})
	mux.HandleFunc("GET /v1/schema/{class}", func(w http.ResponseWriter, r *http.Request) {
		if !f.schemaExists {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"class":%q}`, r.PathValue("class"))
	})
	mux.HandleFunc("POST /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Class string `json:"class"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.schemaPosts = append(f.schemaPosts, body.Class)
		f.mu.Unlock()
		fmt.Fprintf(w, `{"class":%q}`, body.Class)
	})
	mux.HandleFunc("POST /v1/graphql", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.queries = append(f.queries, body.Query)
		if f.failGraphQL {
			f.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		data := `{}`
		if len(f.graphqlData) > 0 {
			data = f.graphqlData[0]
			f.graphqlData = f.graphqlData[1:]
		}
		f.mu.Unlock()

		fmt.Fprintf(w, `{"data":%s}`, data)
	})
	mux.HandleFunc("POST /v1/objects", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.created = append(f.created, body)
		f.mu.Unlock()
		fmt.Fprintf(w, `{"class":%q,"id":"11111111-2222-3333-4444-555555555555","properties":{}}`, body["class"])
	})
	mux.HandleFunc("PATCH /v1/objects/{class}/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		props, _ := body["properties"].(map[string]any)
		f.mu.Lock()
		f.patches = append(f.patches, patchCall{Path: r.URL.Path, Props: props})
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /v1/batch/objects", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.batchDeletes = append(f.batchDeletes, body)
		f.mu.Unlock()
		fmt.Fprint(w, `{"output":"minimal","results":{"matches":2,"limit":10000,"successful":2,"failed":0}}`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeWeaviate) store(t *testing.T, config Config) *WeaviateStore {
	t.Helper()
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   strings.TrimPrefix(f.server.URL, "http://"),
		Scheme: "http",
	})
	if err != nil {
		t.Fatalf("failed to create test client: %v", err)
	}
	return NewWeaviateStore(client, config)
}

// enqueueData queues the next GraphQL "data" payload.
func (f *fakeWeaviate) enqueueData(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graphqlData = append(f.graphqlData, data)
}

func (f *fakeWeaviate) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

const testConvID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

func conversationData(userID string) string {
	return fmt.Sprintf(`{"Get":{"ChatConversation":[{
		"conversation_id":%q,"user_id":%q,"title":"Budget review",
		"created_at":"2026-08-20T10:00:00Z","updated_at":"2026-08-20T10:05:00Z",
		"_additional":{"id":%q}}]}}`, testConvID, userID, testConvID)
}

// =============================================================================
// Config Tests
// =============================================================================

func TestValidateConfig_CorrectsPageSize(t *testing.T) {
	config := validateConfig(Config{PageSize: 0})
	if config.PageSize != 25 {
		t.Errorf("expected default page size 25, got %d", config.PageSize)
	}
}

func TestConnect_RejectsBadURLs(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"quoted empty", `"  "`},
		{"no scheme", "weaviate:8080"},
		{"garbage", "://nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Connect(tt.url); err == nil {
				t.Errorf("expected error for %q, got nil", tt.url)
			}
		})
	}
}

func TestConnect_TrimsQuotes(t *testing.T) {
	client, err := Connect(`"http://weaviate:8080" `)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if client == nil {
		t.Fatal("expected a client")
	}
}

// =============================================================================
// Init Tests
// =============================================================================

func TestInit_CreatesMissingSchema(t *testing.T) {
	f := newFakeWeaviate(t)
	f.schemaExists = false
	store := f.store(t, DefaultConfig())

	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.schemaPosts) != 3 {
		t.Fatalf("expected 3 class creations, got %d: %v", len(f.schemaPosts), f.schemaPosts)
	}
	if f.schemaPosts[0] != datatypes.ClassChatConversation {
		t.Errorf("expected %s created first, got %s", datatypes.ClassChatConversation, f.schemaPosts[0])
	}
}

func TestInit_SkipsExistingSchema(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())

	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.schemaPosts) != 0 {
		t.Errorf("expected no class creations, got %v", f.schemaPosts)
	}
}

// =============================================================================
// Conversation Tests
// =============================================================================

func TestCreateConversation_WritesRecord(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())

	conv, err := store.CreateConversation(context.Background(), "user-a", "Budget review")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	if conv.ID == "" || conv.Title != "Budget review" || conv.UserID != "user-a" {
		t.Errorf("unexpected conversation: %+v", conv)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) != 1 {
		t.Fatalf("expected 1 object write, got %d", len(f.created))
	}
	obj := f.created[0]
	if obj["class"] != datatypes.ClassChatConversation {
		t.Errorf("expected class %s, got %v", datatypes.ClassChatConversation, obj["class"])
	}
	if obj["id"] != conv.ID {
		t.Errorf("expected object id to be the conversation id")
	}
	props, _ := obj["properties"].(map[string]any)
	if props["user_id"] != "user-a" || props["title"] != "Budget review" {
		t.Errorf("unexpected properties: %v", props)
	}
}

func TestGetConversation_ScopesByUser(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(conversationData("user-a"))

	conv, err := store.GetConversation(context.Background(), "user-a", testConvID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv.ID != testConvID || conv.Title != "Budget review" {
		t.Errorf("unexpected conversation: %+v", conv)
	}

	query := f.lastQuery()
	for _, want := range []string{datatypes.ClassChatConversation, "user_id", "user-a", "conversation_id", testConvID} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q: %s", want, query)
		}
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(`{"Get":{"ChatConversation":[]}}`)

	_, err := store.GetConversation(context.Background(), "user-a", testConvID)
	if !datatypes.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestGetConversation_StoreFailure(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.failGraphQL = true

	_, err := store.GetConversation(context.Background(), "user-a", testConvID)
	if !datatypes.IsStoreUnavailable(err) {
		t.Errorf("expected StoreUnavailableError, got %v", err)
	}
}

func TestListConversations_OrdersAndPages(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(fmt.Sprintf(`{"Get":{"ChatConversation":[
		{"conversation_id":%q,"user_id":"user-a","title":"Newest","created_at":"2026-08-20T10:00:00Z","updated_at":"2026-08-21T09:00:00Z","_additional":{"id":%q}},
		{"conversation_id":"bbbbbbbb-0000-0000-0000-000000000000","user_id":"user-a","title":"Older","created_at":"2026-08-19T10:00:00Z","updated_at":"2026-08-19T11:00:00Z","_additional":{"id":"bbbbbbbb-0000-0000-0000-000000000000"}}
	]}}`, testConvID, testConvID))

	convs, err := store.ListConversations(context.Background(), "user-a", 0, 0)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 2 || convs[0].Title != "Newest" {
		t.Errorf("unexpected list: %+v", convs)
	}

	query := f.lastQuery()
	for _, want := range []string{"updated_at", "desc", "25"} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q: %s", want, query)
		}
	}
}

func TestRenameConversation_PatchesTitleOnly(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(conversationData("user-a"))

	conv, err := store.RenameConversation(context.Background(), "user-a", testConvID, "Q3 budget")
	if err != nil {
		t.Fatalf("RenameConversation failed: %v", err)
	}
	if conv.Title != "Q3 budget" {
		t.Errorf("expected renamed title, got %q", conv.Title)
	}
	if conv.UpdatedAt != "2026-08-20T10:05:00Z" {
		t.Errorf("rename must not bump updated_at, got %q", conv.UpdatedAt)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(f.patches))
	}
	patch := f.patches[0]
	if !strings.Contains(patch.Path, testConvID) {
		t.Errorf("patch hit wrong object: %s", patch.Path)
	}
	if patch.Props["title"] != "Q3 budget" {
		t.Errorf("expected title patch, got %v", patch.Props)
	}
	if _, ok := patch.Props["updated_at"]; ok {
		t.Error("rename must not patch updated_at")
	}
}

func TestRenameConversation_MissingConversation(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(`{"Get":{"ChatConversation":[]}}`)

	_, err := store.RenameConversation(context.Background(), "user-a", testConvID, "New title")
	if !datatypes.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.patches) != 0 {
		t.Error("must not patch a missing conversation")
	}
}

func TestDeleteConversation_MessagesFirstThenRecord(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())

	if err := store.DeleteConversation(context.Background(), "user-a", testConvID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batchDeletes) != 2 {
		t.Fatalf("expected 2 batch deletes, got %d", len(f.batchDeletes))
	}
	firstClass := batchClass(f.batchDeletes[0])
	secondClass := batchClass(f.batchDeletes[1])
	if firstClass != datatypes.ClassChatMessage {
		t.Errorf("expected messages deleted first, got %s", firstClass)
	}
	if secondClass != datatypes.ClassChatConversation {
		t.Errorf("expected conversation record deleted second, got %s", secondClass)
	}
}

func batchClass(body map[string]any) string {
	match, _ := body["match"].(map[string]any)
	class, _ := match["class"].(string)
	return class
}

// =============================================================================
// Message Tests
// =============================================================================

func TestAppendMessage_WritesAndTouchesParent(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(conversationData("user-a"))

	msg := datatypes.ChatMessage{Role: datatypes.RoleUser, Content: "What changed in Q3?"}
	stored, err := store.AppendMessage(context.Background(), "user-a", testConvID, "", msg)
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if stored.ID == "" {
		t.Error("expected a minted message id")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Message object write.
	if len(f.created) != 1 {
		t.Fatalf("expected 1 object write, got %d", len(f.created))
	}
	obj := f.created[0]
	if obj["class"] != datatypes.ClassChatMessage {
		t.Errorf("expected class %s, got %v", datatypes.ClassChatMessage, obj["class"])
	}
	props, _ := obj["properties"].(map[string]any)
	if props["conversation_id"] != testConvID || props["role"] != datatypes.RoleUser {
		t.Errorf("unexpected properties: %v", props)
	}
	if _, ok := props["feedback"]; !ok {
		t.Error("expected feedback property when feedback is enabled")
	}
	refs, _ := props["inConversation"].([]any)
	if len(refs) != 1 {
		t.Fatalf("expected 1 beacon, got %v", props["inConversation"])
	}
	beacon, _ := refs[0].(map[string]any)
	if beacon["beacon"] != "weaviate://localhost/ChatConversation/"+testConvID {
		t.Errorf("unexpected beacon: %v", beacon)
	}

	// Parent touch carries the message's created_at.
	if len(f.patches) != 1 {
		t.Fatalf("expected 1 parent patch, got %d", len(f.patches))
	}
	if f.patches[0].Props["updated_at"] != stored.CreatedAt {
		t.Errorf("expected parent updated_at %q, got %v", stored.CreatedAt, f.patches[0].Props["updated_at"])
	}
}

func TestAppendMessage_FeedbackDisabledDropsProperty(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, Config{PageSize: 25, FeedbackEnabled: false})
	f.enqueueData(conversationData("user-a"))

	msg := datatypes.ChatMessage{Role: datatypes.RoleUser, Content: "hello"}
	if _, err := store.AppendMessage(context.Background(), "user-a", testConvID, "", msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	props, _ := f.created[0]["properties"].(map[string]any)
	if _, ok := props["feedback"]; ok {
		t.Error("expected feedback property dropped when feedback is disabled")
	}
}

func TestAppendMessage_KeepsCallerID(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(conversationData("user-a"))

	msg := datatypes.ChatMessage{Role: datatypes.RoleAssistant, Content: "done"}
	stored, err := store.AppendMessage(context.Background(), "user-a", testConvID, "ui-msg-42", msg)
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if stored.ID != "ui-msg-42" {
		t.Errorf("expected caller id kept, got %q", stored.ID)
	}
}

func TestAppendMessage_MissingParent(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(`{"Get":{"ChatConversation":[]}}`)

	msg := datatypes.ChatMessage{Role: datatypes.RoleUser, Content: "hello"}
	_, err := store.AppendMessage(context.Background(), "user-a", testConvID, "", msg)
	if !datatypes.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// The message write happened before the parent check; the store
	// does not roll it back.
	if len(f.created) != 1 {
		t.Errorf("expected the message write to have happened, got %d writes", len(f.created))
	}
	if len(f.patches) != 0 {
		t.Error("must not touch a missing parent")
	}
}

func TestGetMessages_AscendingOrder(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(`{"Get":{"ChatMessage":[
		{"message_id":"m1","conversation_id":"c1","user_id":"user-a","role":"user","content":"first","feedback":"","created_at":"2026-08-20T10:00:00Z","updated_at":"2026-08-20T10:00:00Z","_additional":{"id":"o1"}},
		{"message_id":"m2","conversation_id":"c1","user_id":"user-a","role":"assistant","content":"second","feedback":"","created_at":"2026-08-20T10:00:05Z","updated_at":"2026-08-20T10:00:05Z","_additional":{"id":"o2"}}
	]}}`)

	msgs, err := store.GetMessages(context.Background(), "user-a", testConvID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("unexpected messages: %+v", msgs)
	}

	query := f.lastQuery()
	for _, want := range []string{datatypes.ClassChatMessage, "created_at", "asc"} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q: %s", want, query)
		}
	}
}

func TestGetMessages_EmptyConversation(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(`{"Get":{"ChatMessage":[]}}`)

	msgs, err := store.GetMessages(context.Background(), "user-a", testConvID)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("expected empty slice, got %v", msgs)
	}
}

func TestUpdateMessageFeedback_PatchesResolvedObject(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(`{"Get":{"ChatMessage":[
		{"message_id":"m7","conversation_id":"c1","user_id":"user-a","role":"assistant","content":"answer","feedback":"","created_at":"2026-08-20T10:00:00Z","updated_at":"2026-08-20T10:00:00Z","_additional":{"id":"33333333-0000-0000-0000-000000000000"}}
	]}}`)

	stored, err := store.UpdateMessageFeedback(context.Background(), "user-a", "m7", "positive")
	if err != nil {
		t.Fatalf("UpdateMessageFeedback failed: %v", err)
	}
	if stored.Feedback != "positive" {
		t.Errorf("expected feedback recorded, got %q", stored.Feedback)
	}

	query := f.lastQuery()
	for _, want := range []string{"message_id", "m7", "user_id", "user-a"} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q: %s", want, query)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(f.patches))
	}
	patch := f.patches[0]
	if !strings.Contains(patch.Path, "33333333-0000-0000-0000-000000000000") {
		t.Errorf("patch hit wrong object: %s", patch.Path)
	}
	if patch.Props["feedback"] != "positive" {
		t.Errorf("expected feedback patch, got %v", patch.Props)
	}
	if _, ok := patch.Props["updated_at"]; !ok {
		t.Error("expected updated_at patched alongside feedback")
	}
}

func TestMessageOwner_ReturnsOwningUser(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(`{"Get":{"ChatMessage":[
		{"message_id":"m7","user_id":"user-a"}
	]}}`)

	owner, err := store.MessageOwner(context.Background(), "m7")
	if err != nil {
		t.Fatalf("MessageOwner failed: %v", err)
	}
	if owner != "user-a" {
		t.Errorf("expected owner user-a, got %q", owner)
	}

	// The owner probe is deliberately unscoped by caller.
	query := f.lastQuery()
	if !strings.Contains(query, "m7") {
		t.Errorf("query missing message id: %s", query)
	}
	if strings.Contains(query, "user-a") {
		t.Errorf("owner probe must not filter by user: %s", query)
	}
}

func TestMessageOwner_MissingMessage(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	f.enqueueData(`{"Get":{"ChatMessage":[]}}`)

	_, err := store.MessageOwner(context.Background(), "absent")
	if !datatypes.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateMessageFeedback_ForeignMessageIsNotFound(t *testing.T) {
	f := newFakeWeaviate(t)
	store := f.store(t, DefaultConfig())
	// The user scope filter means a foreign message comes back empty,
	// indistinguishable from one that does not exist.
	f.enqueueData(`{"Get":{"ChatMessage":[]}}`)

	_, err := store.UpdateMessageFeedback(context.Background(), "user-b", "m7", "positive")
	if !datatypes.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.patches) != 0 {
		t.Error("must not patch another user's message")
	}
}
