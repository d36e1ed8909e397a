package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// Comment is a comment row attached to an asset.
type Comment struct {
	ID        int64
	AssetID   simpleasset.AssetID
	UserID    int64
	ParentID  int64
	Body      string
	CreatedAt time.Time
}

// CommentLike is a like on a comment.
type CommentLike struct {
	CommentID int64
	UserID    int64
}

// Like is a like on an asset.
type Like struct {
	AssetID simpleasset.AssetID
	UserID  int64
}

// View is a recorded view of an asset.
type View struct {
	AssetID simpleasset.AssetID
	UserID  int64
}

// state holds every table. Transactions work on a clone and swap it in on commit,
// so every write outside a transaction also holds txMu.
type state struct {
	nextAssetID   simpleasset.AssetID
	nextCommentID int64
	assets        map[simpleasset.AssetID]*simpleasset.Asset
	comments      map[int64]*Comment
	commentLikes  []CommentLike
	likes         []Like
	views         []View
	reclaimed     map[simpleasset.AssetID]struct{}
}

func (s *state) clone() *state {
	c := &state{
		nextAssetID:   s.nextAssetID,
		nextCommentID: s.nextCommentID,
		assets:        make(map[simpleasset.AssetID]*simpleasset.Asset, len(s.assets)),
		comments:      make(map[int64]*Comment, len(s.comments)),
		commentLikes:  append([]CommentLike(nil), s.commentLikes...),
		likes:         append([]Like(nil), s.likes...),
		views:         append([]View(nil), s.views...),
		reclaimed:     make(map[simpleasset.AssetID]struct{}, len(s.reclaimed)),
	}
	for id, a := range s.assets {
		cp := *a
		c.assets[id] = &cp
	}
	for id, cm := range s.comments {
		cp := *cm
		c.comments[id] = &cp
	}
	for id := range s.reclaimed {
		c.reclaimed[id] = struct{}{}
	}
	return c
}

// Repository implements simpleasset.Repository using in-memory storage.
// Transactions are serialized; suitable for tests and single-process deployments.
type Repository struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *state
}

var _ simpleasset.Repository = (*Repository)(nil)

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		data: &state{
			assets:    make(map[simpleasset.AssetID]*simpleasset.Asset),
			comments:  make(map[int64]*Comment),
			reclaimed: make(map[simpleasset.AssetID]struct{}),
		},
	}
}

// Asset operations

func (r *Repository) CreateAsset(ctx context.Context, asset *simpleasset.Asset) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data.nextAssetID++
	asset.ID = r.data.nextAssetID

	// Create a copy to avoid external modifications
	assetCopy := *asset
	r.data.assets[asset.ID] = &assetCopy
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id simpleasset.AssetID) (*simpleasset.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, exists := r.data.assets[id]
	if !exists {
		return nil, simpleasset.ErrNotFound
	}
	assetCopy := *asset
	return &assetCopy, nil
}

func (r *Repository) ListExpiredDrafts(ctx context.Context, q simpleasset.ExpiredDraftQuery) ([]*simpleasset.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simpleasset.Asset
	for _, asset := range r.data.assets {
		if !asset.IsDraft() || asset.ID <= q.AfterID || !asset.CreatedAt.Before(q.CreatedBefore) {
			continue
		}
		assetCopy := *asset
		result = append(result, &assetCopy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (r *Repository) CountDependents(ctx context.Context, id simpleasset.AssetID) (simpleasset.DependentCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.countDependents(id), nil
}

func (r *Repository) WasReclaimed(ctx context.Context, id simpleasset.AssetID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.data.reclaimed[id]
	return ok, nil
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx simpleasset.Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	work := r.data.clone()
	r.mu.RUnlock()

	if err := fn(ctx, &tx{data: work}); err != nil {
		return err
	}

	r.mu.Lock()
	r.data = work
	r.mu.Unlock()
	return nil
}

// Dependent rows, used to seed data

// AddComment stores a comment and returns its ID.
func (r *Repository) AddComment(ctx context.Context, c Comment) (int64, error) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data.assets[c.AssetID]; !ok {
		return 0, fmt.Errorf("comment references missing asset %d: %w", c.AssetID, simpleasset.ErrNotFound)
	}
	r.data.nextCommentID++
	c.ID = r.data.nextCommentID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.data.comments[c.ID] = &c
	return c.ID, nil
}

// AddCommentLike stores a like on a comment.
func (r *Repository) AddCommentLike(ctx context.Context, l CommentLike) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data.comments[l.CommentID]; !ok {
		return fmt.Errorf("comment %d not found", l.CommentID)
	}
	r.data.commentLikes = append(r.data.commentLikes, l)
	return nil
}

// AddLike stores a like on an asset.
func (r *Repository) AddLike(ctx context.Context, l Like) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data.assets[l.AssetID]; !ok {
		return fmt.Errorf("like references missing asset %d: %w", l.AssetID, simpleasset.ErrNotFound)
	}
	r.data.likes = append(r.data.likes, l)
	return nil
}

// AddView records a view of an asset.
func (r *Repository) AddView(ctx context.Context, v View) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data.assets[v.AssetID]; !ok {
		return fmt.Errorf("view references missing asset %d: %w", v.AssetID, simpleasset.ErrNotFound)
	}
	r.data.views = append(r.data.views, v)
	return nil
}

// SetCreatedAt backdates an asset. Used to age drafts in tests.
func (r *Repository) SetCreatedAt(id simpleasset.AssetID, t time.Time) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, ok := r.data.assets[id]
	if !ok {
		return simpleasset.ErrNotFound
	}
	asset.CreatedAt = t
	return nil
}

func (s *state) countDependents(id simpleasset.AssetID) simpleasset.DependentCounts {
	var counts simpleasset.DependentCounts
	for _, c := range s.comments {
		if c.AssetID == id {
			counts.Comments++
		}
	}
	for _, l := range s.commentLikes {
		if c, ok := s.comments[l.CommentID]; ok && c.AssetID == id {
			counts.CommentLikes++
		}
	}
	for _, l := range s.likes {
		if l.AssetID == id {
			counts.Likes++
		}
	}
	for _, v := range s.views {
		if v.AssetID == id {
			counts.Views++
		}
	}
	return counts
}

// tx implements simpleasset.Tx over a cloned state.
type tx struct {
	data *state
}

func (t *tx) LockAsset(ctx context.Context, id simpleasset.AssetID) (*simpleasset.Asset, error) {
	asset, ok := t.data.assets[id]
	if !ok {
		return nil, simpleasset.ErrNotFound
	}
	assetCopy := *asset
	return &assetCopy, nil
}

func (t *tx) UpdateAsset(ctx context.Context, asset *simpleasset.Asset) error {
	if _, ok := t.data.assets[asset.ID]; !ok {
		return simpleasset.ErrNotFound
	}
	assetCopy := *asset
	t.data.assets[asset.ID] = &assetCopy
	return nil
}

func (t *tx) DeleteCommentLikes(ctx context.Context, id simpleasset.AssetID) (int64, error) {
	var n int64
	kept := t.data.commentLikes[:0]
	for _, l := range t.data.commentLikes {
		if c, ok := t.data.comments[l.CommentID]; ok && c.AssetID == id {
			n++
			continue
		}
		kept = append(kept, l)
	}
	t.data.commentLikes = kept
	return n, nil
}

func (t *tx) DeleteComments(ctx context.Context, id simpleasset.AssetID) (int64, error) {
	var n int64
	for cid, c := range t.data.comments {
		if c.AssetID != id {
			continue
		}
		for _, l := range t.data.commentLikes {
			if l.CommentID == cid {
				return n, fmt.Errorf("comment %d still has likes", cid)
			}
		}
		delete(t.data.comments, cid)
		n++
	}
	return n, nil
}

func (t *tx) DeleteLikes(ctx context.Context, id simpleasset.AssetID) (int64, error) {
	var n int64
	kept := t.data.likes[:0]
	for _, l := range t.data.likes {
		if l.AssetID == id {
			n++
			continue
		}
		kept = append(kept, l)
	}
	t.data.likes = kept
	return n, nil
}

func (t *tx) DeleteViews(ctx context.Context, id simpleasset.AssetID) (int64, error) {
	var n int64
	kept := t.data.views[:0]
	for _, v := range t.data.views {
		if v.AssetID == id {
			n++
			continue
		}
		kept = append(kept, v)
	}
	t.data.views = kept
	return n, nil
}

func (t *tx) DeleteAsset(ctx context.Context, id simpleasset.AssetID) error {
	if _, ok := t.data.assets[id]; !ok {
		return simpleasset.ErrNotFound
	}
	if counts := t.data.countDependents(id); counts.Total() > 0 {
		return fmt.Errorf("asset %d still has %d dependent rows", id, counts.Total())
	}
	delete(t.data.assets, id)
	t.data.reclaimed[id] = struct{}{}
	return nil
}
