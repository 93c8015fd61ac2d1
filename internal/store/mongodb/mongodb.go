// Package mongodb implements the engine's Store on MongoDB. Session
// mutations use targeted update operators ($set, $push, $pull, $inc, $max)
// so concurrent host actions on one session document do not overwrite each
// other; whole-document replace is reserved for the single-writer
// participant and Q&A documents.
package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pulse-live/backend/internal/apperr"
	"github.com/pulse-live/backend/internal/models"
	"github.com/pulse-live/backend/internal/store"
)

const (
	collSessions     = "live_sessions"
	collParticipants = "live_participants"
	collQA           = "live_qa_questions"
)

// Store is the MongoDB-backed persistence layer.
type Store struct {
	sessions     *mongo.Collection
	participants *mongo.Collection
	qa           *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// New creates a Store over the given database.
func New(db *mongo.Database) *Store {
	return &Store{
		sessions:     db.Collection(collSessions),
		participants: db.Collection(collParticipants),
		qa:           db.Collection(collQA),
	}
}

// EnsureIndexes creates the indexes the engine's query paths rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	_, err := s.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pin", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "hostIds", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.participants.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "activityId", Value: 1}, {Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "activityId", Value: 1}, {Key: "responses.questionIndex", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.qa.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "activityId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "activityId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "parentQuestionId", Value: 1}}},
	})
	return err
}

func (s *Store) InsertSession(ctx context.Context, sess *models.Session) error {
	_, err := s.sessions.InsertOne(ctx, sess)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("session id or pin already in use")
	}
	if err != nil {
		return apperr.Internal("insert session", err)
	}
	return nil
}

func (s *Store) Session(ctx context.Context, id string) (*models.Session, error) {
	return s.findSession(ctx, bson.M{"_id": id})
}

func (s *Store) SessionByPIN(ctx context.Context, pin string) (*models.Session, error) {
	return s.findSession(ctx, bson.M{"pin": pin})
}

func (s *Store) findSession(ctx context.Context, filter bson.M) (*models.Session, error) {
	var sess models.Session
	err := s.sessions.FindOne(ctx, filter).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("session not found")
	}
	if err != nil {
		return nil, apperr.Internal("find session", err)
	}
	return &sess, nil
}

func (s *Store) SessionsByHost(ctx context.Context, hostID string) ([]*models.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := s.sessions.Find(ctx, bson.M{"hostIds": hostID}, opts)
	if err != nil {
		return nil, apperr.Internal("find sessions", err)
	}
	var out []*models.Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Internal("decode sessions", err)
	}
	return out, nil
}

func (s *Store) SetLive(ctx context.Context, id string, isLive bool, currentIndex int) error {
	return s.updateSession(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"isLive":               isLive,
		"currentQuestionIndex": currentIndex,
		"updatedAt":            time.Now(),
	}})
}

func (s *Store) SetCurrentIndex(ctx context.Context, id string, index int) error {
	return s.updateSession(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"currentQuestionIndex": index,
		"updatedAt":            time.Now(),
	}})
}

func (s *Store) SetSessionDetails(ctx context.Context, id, title, description string, settings models.SessionSettings) error {
	return s.updateSession(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"title":       title,
		"description": description,
		"settings":    settings,
		"updatedAt":   time.Now(),
	}})
}

func (s *Store) AppendItem(ctx context.Context, id string, item models.Item) error {
	return s.updateSession(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"items": item},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
}

func (s *Store) DeactivateItem(ctx context.Context, sessionID, itemID string) error {
	return s.updateSession(ctx,
		bson.M{"_id": sessionID, "items.id": itemID},
		bson.M{"$set": bson.M{"items.$.isActive": false, "updatedAt": time.Now()}},
	)
}

// ReplaceItemResponse runs the remove and append as two array updates; a
// vote landing between them can observe the gap, which is acceptable for
// these non-authoritative live tallies.
func (s *Store) ReplaceItemResponse(ctx context.Context, sessionID, itemID string, r models.ItemResponse, allowMultiple bool) error {
	filter := bson.M{"_id": sessionID, "items.id": itemID}
	if !allowMultiple {
		err := s.updateSession(ctx, filter, bson.M{
			"$pull": bson.M{"items.$.responses": bson.M{"participantId": r.ParticipantID}},
		})
		if err != nil {
			return err
		}
	}
	return s.updateSession(ctx, filter, bson.M{
		"$push": bson.M{"items.$.responses": r},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
}

func (s *Store) IncTotalResponses(ctx context.Context, id string, delta int) error {
	return s.updateSession(ctx, bson.M{"_id": id},
		bson.M{"$inc": bson.M{"analytics.totalResponses": delta}})
}

func (s *Store) RaiseTotalParticipants(ctx context.Context, id string, count int) error {
	return s.updateSession(ctx, bson.M{"_id": id},
		bson.M{"$max": bson.M{"analytics.totalParticipants": count}})
}

func (s *Store) updateSession(ctx context.Context, filter, update bson.M) error {
	res, err := s.sessions.UpdateOne(ctx, filter, update)
	if err != nil {
		return apperr.Internal("update session", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("session not found")
	}
	return nil
}

func (s *Store) InsertParticipant(ctx context.Context, p *models.Participant) error {
	_, err := s.participants.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("participant id already exists")
	}
	if err != nil {
		return apperr.Internal("insert participant", err)
	}
	return nil
}

func (s *Store) Participant(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	err := s.participants.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("participant not found")
	}
	if err != nil {
		return nil, apperr.Internal("find participant", err)
	}
	return &p, nil
}

func (s *Store) ParticipantByUser(ctx context.Context, activityID, userID string) (*models.Participant, error) {
	var p models.Participant
	err := s.participants.FindOne(ctx, bson.M{"activityId": activityID, "userId": userID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("participant not found")
	}
	if err != nil {
		return nil, apperr.Internal("find participant", err)
	}
	return &p, nil
}

func (s *Store) SaveParticipant(ctx context.Context, p *models.Participant) error {
	res, err := s.participants.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return apperr.Internal("save participant", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("participant not found")
	}
	return nil
}

func (s *Store) Participants(ctx context.Context, activityID string) ([]*models.Participant, error) {
	return s.findParticipants(ctx, bson.M{"activityId": activityID})
}

func (s *Store) ParticipantsWithResponse(ctx context.Context, activityID string, questionIndex int) ([]*models.Participant, error) {
	return s.findParticipants(ctx, bson.M{
		"activityId":              activityID,
		"responses.questionIndex": questionIndex,
	})
}

func (s *Store) findParticipants(ctx context.Context, filter bson.M) ([]*models.Participant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joinedAt", Value: 1}})
	cur, err := s.participants.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Internal("find participants", err)
	}
	var out []*models.Participant
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Internal("decode participants", err)
	}
	return out, nil
}

func (s *Store) CountConnected(ctx context.Context, activityID string) (int, error) {
	n, err := s.participants.CountDocuments(ctx, bson.M{"activityId": activityID, "isConnected": true})
	if err != nil {
		return 0, apperr.Internal("count participants", err)
	}
	return int(n), nil
}

// qaDoc carries a denormalized upvoteCount so listings can sort on it;
// the field is rewritten from len(Upvotes) on every write.
type qaDoc struct {
	*models.QAQuestion `bson:",inline"`
	UpvoteCount        int `bson:"upvoteCount"`
}

func (s *Store) InsertQA(ctx context.Context, q *models.QAQuestion) error {
	_, err := s.qa.InsertOne(ctx, qaDoc{QAQuestion: q, UpvoteCount: q.UpvoteCount()})
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict("question id already exists")
	}
	if err != nil {
		return apperr.Internal("insert question", err)
	}
	return nil
}

func (s *Store) QAQuestion(ctx context.Context, id string) (*models.QAQuestion, error) {
	return s.findQA(ctx, bson.M{"_id": id})
}

func (s *Store) QAQuestionInActivity(ctx context.Context, activityID, id string) (*models.QAQuestion, error) {
	return s.findQA(ctx, bson.M{"_id": id, "activityId": activityID})
}

func (s *Store) findQA(ctx context.Context, filter bson.M) (*models.QAQuestion, error) {
	var q models.QAQuestion
	err := s.qa.FindOne(ctx, filter).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("question not found")
	}
	if err != nil {
		return nil, apperr.Internal("find question", err)
	}
	return &q, nil
}

func (s *Store) SaveQA(ctx context.Context, q *models.QAQuestion) error {
	q.UpdatedAt = time.Now()
	res, err := s.qa.ReplaceOne(ctx, bson.M{"_id": q.ID}, qaDoc{QAQuestion: q, UpvoteCount: q.UpvoteCount()})
	if err != nil {
		return apperr.Internal("save question", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("question not found")
	}
	return nil
}

func (s *Store) QAQuestions(ctx context.Context, activityID string, f store.QAFilter) ([]*models.QAQuestion, error) {
	filter := bson.M{"activityId": activityID}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.TopLevelOnly {
		filter["parentQuestionId"] = bson.M{"$in": bson.A{nil, ""}}
	}
	opts := options.Find().SetSort(bson.D{{Key: "upvoteCount", Value: -1}, {Key: "createdAt", Value: -1}})
	return s.listQA(ctx, filter, opts)
}

func (s *Store) QAReplies(ctx context.Context, parentID string) ([]*models.QAQuestion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	return s.listQA(ctx, bson.M{"parentQuestionId": parentID}, opts)
}

func (s *Store) QAUpdatedSince(ctx context.Context, activityID string, since time.Time, limit int) ([]*models.QAQuestion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.listQA(ctx, bson.M{"activityId": activityID, "updatedAt": bson.M{"$gt": since}}, opts)
}

func (s *Store) listQA(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.QAQuestion, error) {
	cur, err := s.qa.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Internal("find questions", err)
	}
	var out []*models.QAQuestion
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Internal("decode questions", err)
	}
	return out, nil
}
