package models

import "time"

// VoteType is a viewer's vote on a post or comment. The zero value means no vote.
type VoteType string

const (
	VoteNone VoteType = ""
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

// WireValue is the vote type as sent to the vote endpoint.
func (v VoteType) WireValue() string {
	if v == VoteNone {
		return "none"
	}
	return string(v)
}

// Valid reports whether v is a known vote type.
func (v VoteType) Valid() bool {
	return v == VoteNone || v == VoteUp || v == VoteDown
}

// ParseVoteType maps wire values ("up", "down", "none", "") to a VoteType.
func ParseVoteType(s string) (VoteType, bool) {
	switch s {
	case "up", "upvote":
		return VoteUp, true
	case "down", "downvote":
		return VoteDown, true
	case "", "none", "null":
		return VoteNone, true
	}
	return VoteNone, false
}

// TargetKind names what a vote applies to.
type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
)

// Post is a top-level forum thread.
type Post struct {
	ID            ID        `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	CategoryID    ID        `json:"categoryId"`
	CategoryName  string    `json:"categoryName,omitempty"`
	AuthorID      ID        `json:"authorId"`
	AuthorName    string    `json:"authorName"`
	AuthorAvatar  string    `json:"authorAvatar,omitempty"`
	Score         int       `json:"score"`
	UpvoteCount   int       `json:"upvoteCount"`
	DownvoteCount int       `json:"downvoteCount"`
	UserVote      VoteType  `json:"userVote"`
	CommentCount  int       `json:"commentCount"`
	ViewCount     int       `json:"viewCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Comment is a reply on a post, possibly nested under another comment.
type Comment struct {
	ID            ID        `json:"id"`
	PostID        ID        `json:"postId"`
	ParentID      *ID       `json:"parentId"`
	AuthorID      ID        `json:"authorId"`
	AuthorName    string    `json:"authorName"`
	AuthorAvatar  string    `json:"authorAvatar,omitempty"`
	Content       string    `json:"content"`
	IsDeleted     bool      `json:"isDeleted"`
	Score         int       `json:"score"`
	UpvoteCount   int       `json:"upvoteCount"`
	DownvoteCount int       `json:"downvoteCount"`
	UserVote      VoteType  `json:"userVote"`
	CreatedAt     time.Time `json:"createdAt"`
}

// IsRoot reports whether the comment replies to the post directly.
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil || c.ParentID.IsZero()
}

// VoteResult carries the authoritative counters returned after a vote.
type VoteResult struct {
	UpvoteCount   int     `json:"upvoteCount"`
	DownvoteCount int     `json:"downvoteCount"`
	Score         int     `json:"score"`
	UserVote      *string `json:"userVote"`
}

// Category is a forum category used to filter posts.
type Category struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
