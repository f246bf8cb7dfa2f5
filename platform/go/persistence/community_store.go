package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	CommunityPostsTable    = "community_posts"
	CommunityCommentsTable = "community_comments"
)

// Comment statuses. Only published and approved comments count toward the
// denormalized counters.
const (
	CommentStatusPublished = "published"
	CommentStatusApproved  = "approved"
	CommentStatusPending   = "pending"
	CommentStatusRemoved   = "removed"
)

// CommunityPost represents a row in the community_posts table. CommentCount
// is a denormalized counter maintained on comment creation/removal.
type CommunityPost struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TenantID     *uuid.UUID `db:"tenant_id" json:"tenantId,omitempty"`
	AuthorID     uuid.UUID  `db:"author_id" json:"authorId"`
	Title        string     `db:"title" json:"title"`
	Body         string     `db:"body" json:"body"`
	Status       string     `db:"status" json:"status"`
	CommentCount int        `db:"comment_count" json:"commentCount"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// CommunityComment represents a row in the community_comments table.
type CommunityComment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PostID          uuid.UUID  `db:"post_id" json:"postId"`
	ParentCommentID *uuid.UUID `db:"parent_comment_id" json:"parentCommentId,omitempty"`
	AuthorID        uuid.UUID  `db:"author_id" json:"authorId"`
	Body            string     `db:"body" json:"body"`
	Status          string     `db:"status" json:"status"`
	ReplyCount      int        `db:"reply_count" json:"replyCount"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrPostNotFound indicates a missing community post record.
	ErrPostNotFound = errors.New("post not found")
	// ErrCommentNotFound indicates a missing (or already removed) comment.
	ErrCommentNotFound = errors.New("comment not found")
)

// CommunityStore exposes persistence helpers for posts and comments.
type CommunityStore struct {
	pool *pgxpool.Pool
}

// NewCommunityStore returns a store bound to the shared pool.
func NewCommunityStore(pool *pgxpool.Pool) (*CommunityStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &CommunityStore{pool: pool}, nil
}

// CreatePostParams captures the fields required to create a post.
type CreatePostParams struct {
	TenantID *uuid.UUID
	AuthorID uuid.UUID
	Title    string
	Body     string
}

// CreatePost inserts a new published post.
func (s *CommunityStore) CreatePost(ctx context.Context, params CreatePostParams) (CommunityPost, error) {
	if params.AuthorID == uuid.Nil {
		return CommunityPost{}, errors.New("author id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, tenant_id, author_id, title, body)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, tenant_id, author_id, title, body, status, comment_count, created_at, updated_at
    `, CommunityPostsTable),
		uuid.New(), params.TenantID, params.AuthorID,
		strings.TrimSpace(params.Title), params.Body,
	)

	post, err := scanPost(row)
	if err != nil {
		return CommunityPost{}, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// GetPost returns a single post by identifier.
func (s *CommunityStore) GetPost(ctx context.Context, id uuid.UUID) (CommunityPost, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, tenant_id, author_id, title, body, status, comment_count, created_at, updated_at
        FROM %s WHERE id = $1
    `, CommunityPostsTable), id)

	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CommunityPost{}, ErrPostNotFound
		}
		return CommunityPost{}, err
	}
	return post, nil
}

// CreateCommentParams captures the fields required to create a comment.
type CreateCommentParams struct {
	PostID          uuid.UUID
	ParentCommentID *uuid.UUID
	AuthorID        uuid.UUID
	Body            string
}

// CreateComment inserts the comment and maintains the denormalized counters
// in the same transaction: the post's comment_count always, and the parent
// comment's reply_count when the comment is a reply.
func (s *CommunityStore) CreateComment(ctx context.Context, params CreateCommentParams) (CommunityComment, error) {
	if params.PostID == uuid.Nil {
		return CommunityComment{}, errors.New("post id is required")
	}
	if params.AuthorID == uuid.Nil {
		return CommunityComment{}, errors.New("author id is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CommunityComment{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if params.ParentCommentID != nil {
		// Replies must target a comment on the same post.
		var parentPost uuid.UUID
		err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT post_id FROM %s WHERE id = $1`, CommunityCommentsTable), *params.ParentCommentID).Scan(&parentPost)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return CommunityComment{}, ErrCommentNotFound
			}
			return CommunityComment{}, fmt.Errorf("check parent comment: %w", err)
		}
		if parentPost != params.PostID {
			return CommunityComment{}, fmt.Errorf("parent comment belongs to a different post")
		}
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, post_id, parent_comment_id, author_id, body)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, post_id, parent_comment_id, author_id, body, status, reply_count, created_at, updated_at
    `, CommunityCommentsTable),
		uuid.New(), params.PostID, params.ParentCommentID, params.AuthorID, params.Body,
	)

	comment, err := scanComment(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return CommunityComment{}, ErrPostNotFound
		}
		return CommunityComment{}, fmt.Errorf("create comment: %w", err)
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET comment_count = comment_count + 1, updated_at = NOW() WHERE id = $1
    `, CommunityPostsTable), params.PostID)
	if err != nil {
		return CommunityComment{}, fmt.Errorf("increment post comment count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return CommunityComment{}, ErrPostNotFound
	}

	if params.ParentCommentID != nil {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
            UPDATE %s SET reply_count = reply_count + 1, updated_at = NOW() WHERE id = $1
        `, CommunityCommentsTable), *params.ParentCommentID); err != nil {
			return CommunityComment{}, fmt.Errorf("increment parent reply count: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return CommunityComment{}, fmt.Errorf("commit comment: %w", err)
	}

	return comment, nil
}

// RemoveComment soft-deletes the comment and decrements the counters it
// contributed to, clamped at zero. Removing an already removed comment is a
// no-op reported as ErrCommentNotFound so callers cannot double-decrement.
func (s *CommunityStore) RemoveComment(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var postID uuid.UUID
	var parentID *uuid.UUID
	err = tx.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET status = '%s', updated_at = NOW()
        WHERE id = $1 AND status <> '%s'
        RETURNING post_id, parent_comment_id
    `, CommunityCommentsTable, CommentStatusRemoved, CommentStatusRemoved), id).Scan(&postID, &parentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCommentNotFound
		}
		return fmt.Errorf("remove comment: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET comment_count = GREATEST(comment_count - 1, 0), updated_at = NOW() WHERE id = $1
    `, CommunityPostsTable), postID); err != nil {
		return fmt.Errorf("decrement post comment count: %w", err)
	}

	if parentID != nil {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
            UPDATE %s SET reply_count = GREATEST(reply_count - 1, 0), updated_at = NOW() WHERE id = $1
        `, CommunityCommentsTable), *parentID); err != nil {
			return fmt.Errorf("decrement parent reply count: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ReconcileCommentCounts recomputes comment_count and reply_count from the
// comments actually present, repairing drift caused by out-of-band data
// mutations. Returns the number of rows whose counters changed.
func (s *CommunityStore) ReconcileCommentCounts(ctx context.Context) (int64, error) {
	postsTag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s p
        SET comment_count = sub.cnt, updated_at = NOW()
        FROM (
            SELECT p2.id,
                   COUNT(c.id) FILTER (WHERE c.status IN ('%s', '%s')) AS cnt
            FROM %s p2
            LEFT JOIN %s c ON c.post_id = p2.id
            GROUP BY p2.id
        ) sub
        WHERE sub.id = p.id AND p.comment_count <> sub.cnt
    `, CommunityPostsTable, CommentStatusPublished, CommentStatusApproved,
		CommunityPostsTable, CommunityCommentsTable))
	if err != nil {
		return 0, fmt.Errorf("reconcile post comment counts: %w", err)
	}

	commentsTag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s c
        SET reply_count = sub.cnt, updated_at = NOW()
        FROM (
            SELECT c2.id,
                   COUNT(r.id) FILTER (WHERE r.status IN ('%s', '%s')) AS cnt
            FROM %s c2
            LEFT JOIN %s r ON r.parent_comment_id = c2.id
            GROUP BY c2.id
        ) sub
        WHERE sub.id = c.id AND c.reply_count <> sub.cnt
    `, CommunityCommentsTable, CommentStatusPublished, CommentStatusApproved,
		CommunityCommentsTable, CommunityCommentsTable))
	if err != nil {
		return 0, fmt.Errorf("reconcile reply counts: %w", err)
	}

	return postsTag.RowsAffected() + commentsTag.RowsAffected(), nil
}

func scanPost(row pgx.Row) (CommunityPost, error) {
	var post CommunityPost
	if err := row.Scan(
		&post.ID, &post.TenantID, &post.AuthorID, &post.Title, &post.Body,
		&post.Status, &post.CommentCount, &post.CreatedAt, &post.UpdatedAt,
	); err != nil {
		return CommunityPost{}, err
	}
	return post, nil
}

func scanComment(row pgx.Row) (CommunityComment, error) {
	var comment CommunityComment
	if err := row.Scan(
		&comment.ID, &comment.PostID, &comment.ParentCommentID, &comment.AuthorID,
		&comment.Body, &comment.Status, &comment.ReplyCount, &comment.CreatedAt, &comment.UpdatedAt,
	); err != nil {
		return CommunityComment{}, err
	}
	return comment, nil
}
