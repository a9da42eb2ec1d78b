package server

import (
	"context"
	"strconv"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/forum"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"

	"github.com/gofiber/fiber/v2"
)

// threadResponse is an open post with its flattened, rendered comments.
type threadResponse struct {
	Post       models.Post   `json:"post"`
	PostHTML   string        `json:"postHtml"`
	Comments   []forum.Entry `json:"comments"`
	Orphans    []models.ID   `json:"orphans,omitempty"`
	Incomplete string        `json:"incomplete,omitempty"`
}

func (s *Server) viewer() models.ID {
	if s.session == nil {
		return ""
	}
	if u, ok := s.session.User(); ok {
		return u.ID
	}
	return ""
}

func (s *Server) renderThread(view *forum.ThreadView) threadResponse {
	viewer := s.viewer()
	post := view.Post()
	resp := threadResponse{
		Post:     post,
		PostHTML: s.renderer.Render(post.Content, viewer),
		Comments: view.Entries(s.renderer, s.config.CommentMaxDepth, viewer),
		Orphans:  view.Thread().Orphans(),
	}
	if err := view.Err(); err != nil {
		resp.Incomplete = err.Error()
	}
	return resp
}

// thread returns the cached view for slug, fetching it when absent or when
// fresh is set.
func (s *Server) thread(ctx context.Context, slug string, fresh bool) (*forum.ThreadView, error) {
	if !fresh {
		if view, ok := s.threads.Get(slug); ok {
			return view, nil
		}
	}
	view, err := s.forum.OpenThread(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.threads.Add(slug, view)
	return view, nil
}

func (s *Server) listPosts(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	result, err := s.forum.ListPosts(c.UserContext(), api.PostQuery{
		Page:       page,
		Limit:      limit,
		CategoryID: models.ID(c.Query("category")),
		Sort:       c.Query("sort"),
		Search:     c.Query("q"),
	})
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (s *Server) createPost(c *fiber.Ctx) error {
	var in api.NewPost
	if err := c.BodyParser(&in); err != nil {
		return badRequest("invalid request body")
	}
	post, err := s.forum.CreatePost(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

func (s *Server) getThread(c *fiber.Ctx) error {
	view, err := s.thread(c.UserContext(), c.Params("slug"), true)
	if err != nil {
		return err
	}
	return c.JSON(s.renderThread(view))
}

type replyRequest struct {
	ParentID *models.ID `json:"parentId"`
	Content  string     `json:"content"`
}

func (s *Server) replyToThread(c *fiber.Ctx) error {
	var req replyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	view, err := s.thread(c.UserContext(), c.Params("slug"), false)
	if err != nil {
		return err
	}
	if err := s.forum.Reply(c.UserContext(), view, req.ParentID, req.Content); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(s.renderThread(view))
}

type voteRequest struct {
	TargetType models.TargetKind `json:"targetType"`
	TargetID   models.ID         `json:"targetId"`
	VoteType   string            `json:"voteType"`
}

func (s *Server) vote(c *fiber.Ctx) error {
	var req voteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	if req.TargetType != models.TargetPost && req.TargetType != models.TargetComment {
		return badRequest("targetType must be post or comment")
	}
	requested, ok := models.ParseVoteType(req.VoteType)
	if !ok {
		return badRequest("voteType must be up or down")
	}

	view, err := s.thread(c.UserContext(), c.Params("slug"), false)
	if err != nil {
		return err
	}
	outcome, err := s.voter.Vote(c.UserContext(), view, req.TargetType, req.TargetID, requested)
	if err != nil {
		return err
	}
	if outcome == forum.OutcomeSignInRequired {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"outcome": outcome.String()})
	}
	return c.JSON(fiber.Map{
		"outcome": outcome.String(),
		"thread":  s.renderThread(view),
	})
}
