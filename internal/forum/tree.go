// Package forum builds threaded comment trees from the flat comment list the
// backend returns, applies votes and renders post and comment bodies.
package forum

import (
	"errors"
	"strings"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
)

// ErrCommentCycle reports comments whose parent chain never reaches a root.
var ErrCommentCycle = errors.New("comment parent chain has a cycle")

// CycleError lists the comments dropped from a tree because they are
// unreachable from any root.
type CycleError struct {
	IDs []models.ID
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = id.String()
	}
	return ErrCommentCycle.Error() + ": " + strings.Join(ids, ", ")
}

func (e *CycleError) Is(target error) bool { return target == ErrCommentCycle }

// Thread is a parent/child index over a post's comments. Its shape is fixed
// by BuildTree; only vote counters change afterwards.
type Thread struct {
	comments []models.Comment
	index    map[models.ID]int
	children map[models.ID][]int
	roots    []int
	orphans  []models.ID
	order    []int
}

// BuildTree indexes comments by parent in one pass, keeping input order among
// siblings. Comments whose parent is missing from the set are promoted to
// roots. When a duplicate id appears the first occurrence wins. Comments in a
// parent cycle cannot be placed; they are left out of the thread and reported
// through a *CycleError while the rest of the thread is still returned.
func BuildTree(comments []models.Comment) (*Thread, error) {
	t := &Thread{
		comments: make([]models.Comment, 0, len(comments)),
		index:    make(map[models.ID]int, len(comments)),
		children: make(map[models.ID][]int),
	}
	for _, c := range comments {
		if _, dup := t.index[c.ID]; dup {
			continue
		}
		t.index[c.ID] = len(t.comments)
		t.comments = append(t.comments, c)
	}

	for i := range t.comments {
		c := &t.comments[i]
		if c.IsRoot() {
			t.roots = append(t.roots, i)
			continue
		}
		if _, ok := t.index[*c.ParentID]; !ok {
			t.orphans = append(t.orphans, c.ID)
			t.roots = append(t.roots, i)
			continue
		}
		t.children[*c.ParentID] = append(t.children[*c.ParentID], i)
	}

	t.order = t.preorder()
	if len(t.order) == len(t.comments) {
		return t, nil
	}

	reached := make([]bool, len(t.comments))
	for _, i := range t.order {
		reached[i] = true
	}
	cycle := &CycleError{}
	for i, ok := range reached {
		if !ok {
			cycle.IDs = append(cycle.IDs, t.comments[i].ID)
		}
	}
	return t, cycle
}

// preorder lists reachable comment indexes depth-first. Each comment has
// exactly one parent slot, so no index can be pushed twice.
func (t *Thread) preorder() []int {
	order := make([]int, 0, len(t.comments))
	stack := make([]int, 0, len(t.roots))
	for i := len(t.roots) - 1; i >= 0; i-- {
		stack = append(stack, t.roots[i])
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, i)
		kids := t.children[t.comments[i].ID]
		for k := len(kids) - 1; k >= 0; k-- {
			stack = append(stack, kids[k])
		}
	}
	return order
}

// Len is the number of comments placed in the thread.
func (t *Thread) Len() int { return len(t.order) }

// Roots returns the top-level comments in input order.
func (t *Thread) Roots() []models.Comment {
	return t.pick(t.roots)
}

// Children returns the direct replies to parentID in input order.
func (t *Thread) Children(parentID models.ID) []models.Comment {
	return t.pick(t.children[parentID])
}

// Orphans returns ids of comments whose parent was not in the set.
func (t *Thread) Orphans() []models.ID {
	return append([]models.ID(nil), t.orphans...)
}

// Comment looks up a comment by id.
func (t *Thread) Comment(id models.ID) (models.Comment, bool) {
	i, ok := t.index[id]
	if !ok {
		return models.Comment{}, false
	}
	return t.comments[i], true
}

func (t *Thread) pick(idx []int) []models.Comment {
	out := make([]models.Comment, len(idx))
	for n, i := range idx {
		out[n] = t.comments[i]
	}
	return out
}

// Walk visits every placed comment depth-first in display order. Returning
// false stops the walk.
func (t *Thread) Walk(fn func(c models.Comment, depth int) bool) {
	depth := t.depths()
	for _, i := range t.order {
		if !fn(t.comments[i], depth[i]) {
			return
		}
	}
}

func (t *Thread) depths() []int {
	depth := make([]int, len(t.comments))
	for _, i := range t.order {
		for _, k := range t.children[t.comments[i].ID] {
			depth[k] = depth[i] + 1
		}
	}
	return depth
}

// Entry is one comment in display order.
type Entry struct {
	Comment      models.Comment `json:"comment"`
	Depth        int            `json:"depth"`
	DisplayDepth int            `json:"displayDepth"`
	Replies      int            `json:"replies"`
	HTML         string         `json:"html"`
	CanVote      bool           `json:"canVote"`
	CanReply     bool           `json:"canReply"`
}

// Flatten lists the thread in display order. Indentation is clamped at
// maxDepth so deep replies stay visible; maxDepth <= 0 disables the clamp.
// Bodies are left empty; see Renderer.
func (t *Thread) Flatten(maxDepth int) []Entry {
	depth := t.depths()
	out := make([]Entry, 0, len(t.order))
	for _, i := range t.order {
		c := t.comments[i]
		d := depth[i]
		display := d
		if maxDepth > 0 && display > maxDepth {
			display = maxDepth
		}
		out = append(out, Entry{
			Comment:      c,
			Depth:        d,
			DisplayDepth: display,
			Replies:      len(t.children[c.ID]),
			CanVote:      CanVote(c),
			CanReply:     CanReply(c),
		})
	}
	return out
}

func (t *Thread) clone() *Thread {
	cp := *t
	cp.comments = append([]models.Comment(nil), t.comments...)
	return &cp
}

// update applies fn to the stored comment with id.
func (t *Thread) update(id models.ID, fn func(c *models.Comment)) bool {
	i, ok := t.index[id]
	if !ok {
		return false
	}
	fn(&t.comments[i])
	return true
}

// Tombstone is the text shown in place of a deleted comment.
const Tombstone = "[deleted]"

// DisplayContent returns the comment body or the tombstone text.
func DisplayContent(c models.Comment) string {
	if c.IsDeleted {
		return Tombstone
	}
	return c.Content
}

// CanVote reports whether the comment accepts votes.
func CanVote(c models.Comment) bool { return !c.IsDeleted }

// CanReply reports whether the comment accepts replies.
func CanReply(c models.Comment) bool { return !c.IsDeleted }
