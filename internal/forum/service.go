package forum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/session"
)

// MaxTitleLength bounds post titles, counted in characters.
const MaxTitleLength = 300

// API is the subset of the backend client the forum needs.
type API interface {
	VoteAPI
	ListPosts(ctx context.Context, q api.PostQuery) (*api.PostList, error)
	GetPost(ctx context.Context, slug string) (*api.PostDetail, error)
	CreatePost(ctx context.Context, in api.NewPost) (*models.Post, error)
	CreateComment(ctx context.Context, in api.NewComment) (*models.Comment, error)
}

// Service loads posts and threads and posts replies.
type Service struct {
	api     API
	session session.Provider
	log     *observability.Logger
}

// NewService creates a forum Service.
func NewService(client API, sess session.Provider) *Service {
	return &Service{api: client, session: sess, log: observability.GlobalLogger}
}

// PostPage is one page of the post listing.
type PostPage struct {
	Posts      []models.Post `json:"posts"`
	Pagination Pagination    `json:"pagination"`
}

// ListPosts fetches one page of posts.
func (s *Service) ListPosts(ctx context.Context, q api.PostQuery) (*PostPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	list, err := s.api.ListPosts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return &PostPage{Posts: list.Posts, Pagination: Paginate(list.Total, q.Page, q.Limit)}, nil
}

// OpenThread fetches a post with its comments and builds the thread. A
// comment cycle is logged and the partial thread is still returned.
func (s *Service) OpenThread(ctx context.Context, slug string) (*ThreadView, error) {
	detail, err := s.api.GetPost(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("open thread %q: %w", slug, err)
	}
	view := NewThreadView(detail)
	s.logTree(ctx, slug, view)
	return view, nil
}

func (s *Service) logTree(ctx context.Context, slug string, view *ThreadView) {
	if err := view.Err(); err != nil {
		s.log.WarnContext(ctx, "comment tree incomplete", "slug", slug, "error", err)
	}
	if orphans := view.Thread().Orphans(); len(orphans) > 0 {
		s.log.InfoContext(ctx, "orphan comments promoted to roots", "slug", slug, "count", len(orphans))
	}
}

// CreatePost validates and publishes a new post.
func (s *Service) CreatePost(ctx context.Context, in api.NewPost) (*models.Post, error) {
	if _, err := session.RequireUser(s.session); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	switch {
	case in.Title == "":
		return nil, models.NewValidationError("title is required")
	case utf8.RuneCountInString(in.Title) > MaxTitleLength:
		return nil, models.NewValidationError(fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	case in.Content == "":
		return nil, models.NewValidationError("content is required")
	}
	post, err := s.api.CreatePost(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// Reply posts a comment under parentID (nil replies to the post) and then
// refetches the whole thread into view.
func (s *Service) Reply(ctx context.Context, view *ThreadView, parentID *models.ID, content string) error {
	if _, err := session.RequireUser(s.session); err != nil {
		return err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return models.NewValidationError("reply cannot be empty")
	}
	if parentID != nil {
		parent, ok := view.Thread().Comment(*parentID)
		if !ok {
			return models.NewNotFoundError("comment", *parentID)
		}
		if !CanReply(parent) {
			return models.NewValidationError("cannot reply to a deleted comment")
		}
	}

	post := view.Post()
	if _, err := s.api.CreateComment(ctx, api.NewComment{PostID: post.ID, ParentID: parentID, Content: content}); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return s.Refresh(ctx, view)
}

// Refresh replaces view with a fresh copy of the thread.
func (s *Service) Refresh(ctx context.Context, view *ThreadView) error {
	post := view.Post()
	if post.Slug == "" {
		return errors.New("refresh: post has no slug")
	}
	detail, err := s.api.GetPost(ctx, post.Slug)
	if err != nil {
		return fmt.Errorf("refresh thread %q: %w", post.Slug, err)
	}
	view.replace(detail)
	s.logTree(ctx, post.Slug, view)
	return nil
}
