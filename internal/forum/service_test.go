package forum

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, sess *session.Store) (*Service, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend(t)
	return NewService(api.NewClient(backend.URL, sess), sess), backend
}

func TestService_OpenThreadAndReplyRefetches(t *testing.T) {
	svc, backend := newService(t, signedIn())
	var fetches atomic.Int32
	backend.Handle("GET /forum/posts/{slug}", func(w http.ResponseWriter, r *http.Request) {
		n := fetches.Add(1)
		comments := []map[string]any{
			{"id": 1, "postId": 9, "parentId": nil, "content": "first"},
			{"id": 2, "postId": 9, "parentId": 1, "content": "nested"},
		}
		if n > 1 {
			comments = append(comments, map[string]any{"id": 3, "postId": 9, "parentId": 2, "content": "new"})
		}
		testutil.JSON(w, http.StatusOK, map[string]any{
			"post":     map[string]any{"id": 9, "slug": r.PathValue("slug"), "title": "Venues"},
			"comments": comments,
		})
	})
	backend.Handle("POST /forum/comments", testutil.Reply(http.StatusCreated, map[string]any{"comment": map[string]any{"id": 3}}))

	ctx := context.Background()
	view, err := svc.OpenThread(ctx, "venues")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Thread().Len())

	require.NoError(t, svc.Reply(ctx, view, models.IDPtr("2"), "  new  "))
	assert.Equal(t, 3, view.Thread().Len())
	assert.Equal(t, []models.ID{"3"}, ids(view.Thread().Children("2")))
	assert.Equal(t, int32(2), fetches.Load())

	req, ok := backend.Last(http.MethodPost, "/forum/comments")
	require.True(t, ok)
	var body api.NewComment
	req.Decode(t, &body)
	assert.Equal(t, models.ID("9"), body.PostID)
	assert.Equal(t, "new", body.Content)
	require.NotNil(t, body.ParentID)
	assert.Equal(t, models.ID("2"), *body.ParentID)
}

func TestService_ReplyValidation(t *testing.T) {
	deleted := comment("5", "")
	deleted.IsDeleted = true
	view := NewThreadView(&api.PostDetail{Post: models.Post{ID: "1", Slug: "s"}, Comments: []models.Comment{deleted}})

	t.Run("signed out", func(t *testing.T) {
		svc, backend := newService(t, session.NewStore())
		assert.ErrorIs(t, svc.Reply(context.Background(), view, nil, "hi"), session.ErrNoSession)
		assert.Empty(t, backend.Requests())
	})

	t.Run("empty and deleted parent", func(t *testing.T) {
		svc, backend := newService(t, signedIn())
		assert.Error(t, svc.Reply(context.Background(), view, nil, "   "))
		assert.Error(t, svc.Reply(context.Background(), view, models.IDPtr("5"), "hi"))
		assert.True(t, models.IsNotFound(svc.Reply(context.Background(), view, models.IDPtr("77"), "hi")))
		assert.Empty(t, backend.Requests())
	})
}

func TestService_CreatePostValidation(t *testing.T) {
	svc, backend := newService(t, signedIn())
	backend.Handle("POST /forum/posts", testutil.Reply(http.StatusCreated, map[string]any{
		"post": map[string]any{"id": 12, "slug": "new-post", "title": "New post"},
	}))
	ctx := context.Background()

	tests := []struct {
		name    string
		in      api.NewPost
		wantErr bool
	}{
		{"valid", api.NewPost{Title: " New post ", Content: "text", CategoryID: "3"}, false},
		{"missing title", api.NewPost{Content: "text"}, true},
		{"missing content", api.NewPost{Title: "t", Content: " "}, true},
		{"long title", api.NewPost{Title: strings.Repeat("é", MaxTitleLength+1), Content: "x"}, true},
		{"max title", api.NewPost{Title: strings.Repeat("é", MaxTitleLength), Content: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post, err := svc.CreatePost(ctx, tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.ID("12"), post.ID)
		})
	}
	assert.Equal(t, 2, backend.Count(http.MethodPost, "/forum/posts"))
}

func TestService_ListPostsDefaults(t *testing.T) {
	svc, backend := newService(t, session.NewStore())
	backend.Handle("GET /forum/posts", testutil.Reply(http.StatusOK, map[string]any{
		"posts": []map[string]any{{"id": 1, "title": "a"}},
		"total": 45,
	}))

	page, err := svc.ListPosts(context.Background(), api.PostQuery{Sort: "hot"})
	require.NoError(t, err)
	assert.Len(t, page.Posts, 1)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.Equal(t, 1, backend.Count(http.MethodGet, "/forum/posts?limit=20&page=1&sort=hot"))
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name                string
		total, page, limit  int
		wantPage, wantPages int
		wantPrev, wantNext  bool
		wantLinks           []int
	}{
		{"empty", 0, 1, 20, 1, 1, false, false, []int{1}},
		{"middle", 200, 5, 20, 5, 10, true, true, []int{3, 4, 5, 6, 7}},
		{"clamped high", 41, 9, 20, 3, 3, true, false, []int{1, 2, 3}},
		{"clamped low", 41, -2, 20, 1, 3, false, true, []int{1, 2, 3}},
		{"default limit", 21, 1, 0, 1, 2, false, true, []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(tt.total, tt.page, tt.limit)
			assert.Equal(t, tt.wantPage, p.CurrentPage)
			assert.Equal(t, tt.wantPages, p.TotalPages)
			assert.Equal(t, tt.wantPrev, p.HasPrev)
			assert.Equal(t, tt.wantNext, p.HasNext)
			assert.Equal(t, tt.wantLinks, p.Pages)
		})
	}
}
