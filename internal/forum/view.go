package forum

import (
	"sync"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/api"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
)

// ThreadView is the local state of one open post: the post, its comment
// tree and the viewer's votes. It is safe for concurrent use.
type ThreadView struct {
	mu     sync.RWMutex
	post   models.Post
	thread *Thread
	broken error
}

// NewThreadView builds a view from a fetched post detail. A comment cycle is
// recorded on the view and does not prevent it from being built.
func NewThreadView(detail *api.PostDetail) *ThreadView {
	v := &ThreadView{}
	v.replace(detail)
	return v
}

func (v *ThreadView) replace(detail *api.PostDetail) {
	thread, err := BuildTree(detail.Comments)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.post = detail.Post
	v.thread = thread
	v.broken = err
}

// Post returns a copy of the post.
func (v *ThreadView) Post() models.Post {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.post
}

// Thread returns a snapshot of the comment tree.
func (v *ThreadView) Thread() *Thread {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.thread.clone()
}

// Err returns the tree construction error, if any.
func (v *ThreadView) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.broken
}

// Entries flattens and renders the comment tree for viewer.
func (v *ThreadView) Entries(r *Renderer, maxDepth int, viewer models.ID) []Entry {
	v.mu.RLock()
	entries := v.thread.Flatten(maxDepth)
	v.mu.RUnlock()
	return r.RenderEntries(entries, viewer)
}

// currentVote reports the viewer's existing vote on a target.
func (v *ThreadView) currentVote(kind models.TargetKind, id models.ID) (models.VoteType, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	switch kind {
	case models.TargetPost:
		if v.post.ID != id {
			return models.VoteNone, false
		}
		return v.post.UserVote, true
	case models.TargetComment:
		c, ok := v.thread.Comment(id)
		if !ok || !CanVote(c) {
			return models.VoteNone, false
		}
		return c.UserVote, true
	}
	return models.VoteNone, false
}

// applyVote replaces the target's counters with the server's values.
func (v *ThreadView) applyVote(kind models.TargetKind, id models.ID, res *models.VoteResult, sent models.VoteType) {
	vote := sent
	if res.UserVote != nil {
		if parsed, ok := models.ParseVoteType(*res.UserVote); ok {
			vote = parsed
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	switch kind {
	case models.TargetPost:
		if v.post.ID == id {
			v.post.UpvoteCount = res.UpvoteCount
			v.post.DownvoteCount = res.DownvoteCount
			v.post.Score = res.Score
			v.post.UserVote = vote
		}
	case models.TargetComment:
		v.thread.update(id, func(c *models.Comment) {
			c.UpvoteCount = res.UpvoteCount
			c.DownvoteCount = res.DownvoteCount
			c.Score = res.Score
			c.UserVote = vote
		})
	}
}
