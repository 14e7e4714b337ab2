package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"luna/internal/database"
	"luna/internal/models"
)

// Mongo is the production Store backed by MongoDB. Sessions live in the
// sessions collection; versions live in session_versions, scoped by
// sessionId and guarded by a unique (sessionId, versionNumber) index.
type Mongo struct {
	db           *database.MongoDB
	sessions     *mongo.Collection
	versions     *mongo.Collection
	transactions bool
}

var _ Store = (*Mongo)(nil)

// NewMongo creates a Mongo store. Set useTransactions only on replica-set
// deployments; the conditional-update path keeps the commit invariants on
// standalone servers without it.
func NewMongo(db *database.MongoDB, useTransactions bool) *Mongo {
	return &Mongo{
		db:           db,
		sessions:     db.Collection(database.CollectionSessions),
		versions:     db.Collection(database.CollectionSessionVersions),
		transactions: useTransactions,
	}
}

// mapErr translates driver errors into the store's sentinel taxonomy while
// keeping the original detail in the chain.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) || mongo.IsNetworkError(err):
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (m *Mongo) InsertSession(ctx context.Context, s *models.Session) error {
	if _, err := m.sessions.InsertOne(ctx, s); err != nil {
		return mapErr(fmt.Sprintf("insert session %s", s.SessionID), err)
	}
	return nil
}

func (m *Mongo) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var s models.Session
	err := m.sessions.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&s)
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get session %s", sessionID), err)
	}
	return &s, nil
}

func (m *Mongo) UpdateSession(ctx context.Context, sessionID string, fields map[string]any) (*models.Session, error) {
	set := bson.M{"updatedAt": time.Now()}
	for k, v := range fields {
		set[k] = v
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Session
	err := m.sessions.FindOneAndUpdate(ctx, bson.M{"sessionId": sessionID}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		return nil, mapErr(fmt.Sprintf("update session %s", sessionID), err)
	}
	return &updated, nil
}

func (m *Mongo) DeleteSession(ctx context.Context, sessionID string) error {
	del := func(sctx context.Context) error {
		res, err := m.sessions.DeleteOne(sctx, bson.M{"sessionId": sessionID})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return mongo.ErrNoDocuments
		}
		_, err = m.versions.DeleteMany(sctx, bson.M{"sessionId": sessionID})
		return err
	}

	var err error
	if m.transactions {
		err = m.db.WithTransaction(ctx, func(sctx mongo.SessionContext) error {
			return del(sctx)
		})
	} else {
		err = del(ctx)
	}
	return mapErr(fmt.Sprintf("delete session %s", sessionID), err)
}

// sessionListRow is the aggregation projection for listings: counts and a
// one-message preview instead of the full arrays.
type sessionListRow struct {
	SessionID            string             `bson:"sessionId"`
	Title                string             `bson:"title"`
	Status               string             `bson:"status"`
	OwnerID              *string            `bson:"ownerId"`
	IsBookmarked         bool               `bson:"isBookmarked"`
	Tags                 []string           `bson:"tags"`
	CurrentVersionNumber int                `bson:"currentVersionNumber"`
	TotalVersions        int                `bson:"totalVersions"`
	MessageCount         int                `bson:"messageCount"`
	PresentationCount    int                `bson:"presentationCount"`
	LastMessage          []models.Message   `bson:"lastMessage"`
	BranchInfo           *models.BranchInfo `bson:"branchInfo"`
	CreatedAt            time.Time          `bson:"createdAt"`
	UpdatedAt            time.Time          `bson:"updatedAt"`
}

func sessionFilter(q SessionQuery) bson.M {
	filter := bson.M{}
	if q.OwnerSet {
		filter["ownerId"] = q.OwnerID
	}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	if q.BookmarkedSet {
		filter["isBookmarked"] = q.Bookmarked
	}
	if len(q.Tags) > 0 {
		filter["tags"] = bson.M{"$all": q.Tags}
	}
	return filter
}

func (m *Mongo) ListSessions(ctx context.Context, q SessionQuery) ([]models.SessionListItem, int64, error) {
	filter := sessionFilter(q)

	total, err := m.sessions.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, mapErr("count sessions", err)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: filter}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "updatedAt", Value: -1}}}},
		bson.D{{Key: "$skip", Value: int64((page - 1) * pageSize)}},
		bson.D{{Key: "$limit", Value: int64(pageSize)}},
		bson.D{{Key: "$project", Value: bson.M{
			"sessionId":            1,
			"title":                1,
			"status":               1,
			"ownerId":              1,
			"isBookmarked":         1,
			"tags":                 1,
			"currentVersionNumber": 1,
			"totalVersions":        1,
			"branchInfo":           1,
			"createdAt":            1,
			"updatedAt":            1,
			"messageCount":         bson.M{"$size": bson.M{"$ifNull": bson.A{"$messages", bson.A{}}}},
			"presentationCount":    bson.M{"$size": bson.M{"$ifNull": bson.A{"$presentationRefs", bson.A{}}}},
			"lastMessage":          bson.M{"$slice": bson.A{"$messages", -1}},
		}}},
	}

	cursor, err := m.sessions.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, mapErr("list sessions", err)
	}
	defer cursor.Close(ctx)

	var out []models.SessionListItem
	for cursor.Next(ctx) {
		var row sessionListRow
		if err := cursor.Decode(&row); err != nil {
			return nil, 0, mapErr("decode session row", err)
		}
		item := models.SessionListItem{
			SessionID:            row.SessionID,
			Title:                row.Title,
			Status:               row.Status,
			OwnerID:              row.OwnerID,
			IsBookmarked:         row.IsBookmarked,
			Tags:                 row.Tags,
			CurrentVersionNumber: row.CurrentVersionNumber,
			TotalVersions:        row.TotalVersions,
			MessageCount:         row.MessageCount,
			PresentationCount:    row.PresentationCount,
			BranchInfo:           row.BranchInfo,
			CreatedAt:            row.CreatedAt,
			UpdatedAt:            row.UpdatedAt,
		}
		if len(row.LastMessage) > 0 {
			item.MessagePreview = row.LastMessage[len(row.LastMessage)-1].Content
		}
		out = append(out, item)
	}

	return out, total, nil
}

func (m *Mongo) GetVersion(ctx context.Context, sessionID, versionID string) (*models.Version, error) {
	var v models.Version
	err := m.versions.FindOne(ctx, bson.M{"sessionId": sessionID, "versionId": versionID}).Decode(&v)
	if err != nil {
		return nil, mapErr(fmt.Sprintf("get version %s of session %s", versionID, sessionID), err)
	}
	return &v, nil
}

func (m *Mongo) ListVersions(ctx context.Context, sessionID string, q VersionQuery) ([]models.VersionSummary, error) {
	order := -1
	if q.Ascending {
		order = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "versionNumber", Value: order}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"data": 0}) // summaries never carry the snapshot payload

	cursor, err := m.versions.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, mapErr(fmt.Sprintf("list versions of session %s", sessionID), err)
	}
	defer cursor.Close(ctx)

	var out []models.VersionSummary
	if err := cursor.All(ctx, &out); err != nil {
		return nil, mapErr("decode version summaries", err)
	}
	return out, nil
}

func (m *Mongo) CommitVersion(ctx context.Context, sess *models.Session, v *models.Version, expectedTotal int) error {
	commit := func(sctx context.Context) error {
		// Conditional update: the session document only advances if nobody
		// else has committed since the caller read it.
		filter := bson.M{"sessionId": sess.SessionID, "totalVersions": expectedTotal}
		update := bson.M{"$set": bson.M{
			"messages":             sess.Messages,
			"presentationRefs":     sess.PresentationRefs,
			"metadata":             sess.Metadata,
			"currentVersionNumber": v.VersionNumber,
			"totalVersions":        v.VersionNumber,
			"updatedAt":            sess.UpdatedAt,
			"lastActiveAt":         sess.LastActiveAt,
		}}

		res, err := m.sessions.UpdateOne(sctx, filter, update)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			// Distinguish a lost race from a missing session.
			count, cerr := m.sessions.CountDocuments(sctx, bson.M{"sessionId": sess.SessionID})
			if cerr == nil && count == 0 {
				return mongo.ErrNoDocuments
			}
			return ErrConflict
		}

		// Only the conditional-update winner holds this version number, and
		// the unique index rejects any duplicate that slips through.
		_, err = m.versions.InsertOne(sctx, v)
		return err
	}

	var err error
	if m.transactions {
		err = m.db.WithTransaction(ctx, func(sctx mongo.SessionContext) error {
			return commit(sctx)
		})
	} else {
		err = commit(ctx)
	}
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("commit version %d of session %s: %w", v.VersionNumber, sess.SessionID, ErrConflict)
	}
	return mapErr(fmt.Sprintf("commit version %d of session %s", v.VersionNumber, sess.SessionID), err)
}

func (m *Mongo) AppendChild(ctx context.Context, sessionID, parentVersionID, childVersionID string) error {
	// $addToSet keeps concurrent appends from clobbering each other.
	res, err := m.versions.UpdateOne(ctx,
		bson.M{"sessionId": sessionID, "versionId": parentVersionID},
		bson.M{"$addToSet": bson.M{"childVersionIds": childVersionID}},
	)
	if err != nil {
		return mapErr(fmt.Sprintf("link child %s to %s", childVersionID, parentVersionID), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("link child %s to %s: %w", childVersionID, parentVersionID, ErrNotFound)
	}
	return nil
}
