package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
)

// PostQuery filters the post listing.
type PostQuery struct {
	Page       int
	Limit      int
	CategoryID models.ID
	Sort       string
	Search     string
}

func (q PostQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.CategoryID.IsZero() {
		v.Set("category", q.CategoryID.String())
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	return v
}

// PostList is a page of posts.
type PostList struct {
	Posts []models.Post `json:"posts"`
	Total int           `json:"total"`
}

// PostDetail is a post with its flat comment set.
type PostDetail struct {
	Post     models.Post      `json:"post"`
	Comments []models.Comment `json:"comments"`
}

// NewPost is the payload for creating a post.
type NewPost struct {
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CategoryID models.ID `json:"categoryId"`
}

// NewComment is the payload for replying to a post or comment.
type NewComment struct {
	PostID   models.ID  `json:"postId"`
	ParentID *models.ID `json:"parentId"`
	Content  string     `json:"content"`
}

// VoteRequest is the payload for the vote endpoint.
type VoteRequest struct {
	TargetType models.TargetKind `json:"targetType"`
	TargetID   models.ID         `json:"targetId"`
	VoteType   string            `json:"voteType"`
}

// ListPosts calls GET /forum/posts.
func (c *Client) ListPosts(ctx context.Context, q PostQuery) (*PostList, error) {
	path := "/forum/posts"
	if v := q.values(); len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out PostList
	if err := c.do(ctx, http.MethodGet, "/forum/posts", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPost calls GET /forum/posts/{slug}.
func (c *Client) GetPost(ctx context.Context, slug string) (*PostDetail, error) {
	var out PostDetail
	if err := c.do(ctx, http.MethodGet, "/forum/posts/{slug}", "/forum/posts/"+url.PathEscape(slug), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePost calls POST /forum/posts.
func (c *Client) CreatePost(ctx context.Context, in NewPost) (*models.Post, error) {
	var out struct {
		Post models.Post `json:"post"`
	}
	if err := c.do(ctx, http.MethodPost, "/forum/posts", "/forum/posts", in, &out); err != nil {
		return nil, err
	}
	return &out.Post, nil
}

// CreateComment calls POST /forum/comments.
func (c *Client) CreateComment(ctx context.Context, in NewComment) (*models.Comment, error) {
	var out struct {
		Comment models.Comment `json:"comment"`
	}
	if err := c.do(ctx, http.MethodPost, "/forum/comments", "/forum/comments", in, &out); err != nil {
		return nil, err
	}
	return &out.Comment, nil
}

// Vote calls POST /forum/vote and returns the authoritative counters.
func (c *Client) Vote(ctx context.Context, in VoteRequest) (*models.VoteResult, error) {
	var out models.VoteResult
	if err := c.do(ctx, http.MethodPost, "/forum/vote", "/forum/vote", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
