package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"attendance-backend/internal/apperr"
	"attendance-backend/internal/model"
)

const (
	collSessions      = "sessions"
	collPresence      = "presence_heartbeats"
	collLeaveRequests = "leave_requests"
	collLeaveBalances = "leave_balances"
	collUsers         = "users"
	collSubscriptions = "push_subscriptions"
)

// sessionDoc adds the indexed open flag; mongo partial indexes cannot match end_time == null.
type sessionDoc struct {
	model.Session `bson:",inline"`
	Open          bool `bson:"open"`
}

// mongoStore implements the Store interface on MongoDB without multi-document transactions.
type mongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates a MongoDB-backed store and makes sure its indexes exist.
func NewMongoStore(ctx context.Context, db *mongo.Database) (Store, error) {
	s := &mongoStore{db: db}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *mongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collSessions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "start_time", Value: 1}}},
			{
				Keys: bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().
					SetName("one_open_session_per_user").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"open": true}),
			},
		},
		collLeaveRequests: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		collSubscriptions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (s *mongoStore) c(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func mongoLookupErr(err error, format string, args ...any) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound(format, args...)
	}
	return apperr.Persistence(err, format, args...)
}

func overlapFilter(start, end int64) bson.M {
	return bson.M{
		"start_time": bson.M{"$lt": end},
		"$or": bson.A{
			bson.M{"end_time": nil},
			bson.M{"end_time": bson.M{"$gt": start}},
		},
	}
}

func (s *mongoStore) CreateSession(ctx context.Context, sess *model.Session) error {
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	_, err := s.c(collSessions).InsertOne(ctx, sessionDoc{Session: *sess, Open: sess.EndTime == nil})
	if mongo.IsDuplicateKeyError(err) {
		return apperr.InvalidState("user %s already has an open session", sess.UserID)
	}
	return apperr.Persistence(err, "create session for user %s", sess.UserID)
}

func (s *mongoStore) findSession(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*model.Session, error) {
	var doc sessionDoc
	if err := s.c(collSessions).FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc.Session, nil
}

func (s *mongoStore) FindOpenByUser(ctx context.Context, userID string) (*model.Session, error) {
	sess, err := s.findSession(ctx, bson.M{"user_id": userID, "open": true},
		options.FindOne().SetSort(bson.D{{Key: "start_time", Value: -1}}))
	if err != nil {
		return nil, mongoLookupErr(err, "no open session for user %s", userID)
	}
	return sess, nil
}

func (s *mongoStore) FindSessionByID(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.findSession(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, mongoLookupErr(err, "session %s not found", id)
	}
	return sess, nil
}

func (s *mongoStore) CloseSession(ctx context.Context, id string, endTime int64, autoClosed bool) (*model.Session, error) {
	filter := bson.M{"_id": id, "open": true, "start_time": bson.M{"$lte": endTime}}
	update := bson.M{"$set": bson.M{
		"end_time":    endTime,
		"auto_closed": autoClosed,
		"open":        false,
		"updated_at":  time.Now().UTC(),
	}}
	var doc sessionDoc
	err := s.c(collSessions).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err == nil {
		return &doc.Session, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.Persistence(err, "close session %s", id)
	}

	sess, ferr := s.FindSessionByID(ctx, id)
	if ferr != nil {
		return nil, ferr
	}
	if !sess.IsOpen() {
		return nil, apperr.InvalidState("session %s is already closed", id)
	}
	return nil, apperr.Validation("end time %d is before start time %d of session %s", endTime, sess.StartTime, id)
}

func (s *mongoStore) findSessions(ctx context.Context, filter bson.M) ([]model.Session, error) {
	cur, err := s.c(collSessions).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []sessionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	sessions := make([]model.Session, len(docs))
	for i, d := range docs {
		sessions[i] = d.Session
	}
	return sessions, nil
}

func (s *mongoStore) QueryByUserAndRange(ctx context.Context, userID string, start, end int64) ([]model.Session, error) {
	filter := overlapFilter(start, end)
	filter["user_id"] = userID
	sessions, err := s.findSessions(ctx, filter)
	if err != nil {
		return nil, apperr.Persistence(err, "query sessions for user %s", userID)
	}
	return sessions, nil
}

func (s *mongoStore) FindOpenSessions(ctx context.Context) ([]model.Session, error) {
	sessions, err := s.findSessions(ctx, bson.M{"open": true})
	if err != nil {
		return nil, apperr.Persistence(err, "fetch open sessions")
	}
	return sessions, nil
}

func (s *mongoStore) distinctStrings(ctx context.Context, coll, field string, filter bson.M) ([]string, error) {
	values, err := s.c(coll).Distinct(ctx, field, filter)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok && str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

func (s *mongoStore) DistinctUsersInRange(ctx context.Context, start, end int64) ([]string, error) {
	ids, err := s.distinctStrings(ctx, collSessions, "user_id", overlapFilter(start, end))
	if err != nil {
		return nil, apperr.Persistence(err, "distinct users in range")
	}
	return ids, nil
}

func (s *mongoStore) DistinctProjectsInRange(ctx context.Context, start, end int64) ([]string, error) {
	ids, err := s.distinctStrings(ctx, collSessions, "project_id", overlapFilter(start, end))
	if err != nil {
		return nil, apperr.Persistence(err, "distinct projects in range")
	}
	return ids, nil
}

func (s *mongoStore) UpsertHeartbeat(ctx context.Context, hb model.PresenceHeartbeat) error {
	_, err := s.c(collPresence).UpdateOne(ctx,
		bson.M{"_id": hb.SessionID},
		bson.M{"$set": bson.M{"user_id": hb.UserID, "last_seen_at": hb.LastSeenAt}},
		options.Update().SetUpsert(true))
	return apperr.Persistence(err, "upsert heartbeat for session %s", hb.SessionID)
}

func (s *mongoStore) HeartbeatsForSessions(ctx context.Context, sessionIDs []string) (map[string]model.PresenceHeartbeat, error) {
	result := make(map[string]model.PresenceHeartbeat, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return result, nil
	}
	cur, err := s.c(collPresence).Find(ctx, bson.M{"_id": bson.M{"$in": sessionIDs}})
	if err != nil {
		return nil, apperr.Persistence(err, "fetch heartbeats")
	}
	var heartbeats []model.PresenceHeartbeat
	if err := cur.All(ctx, &heartbeats); err != nil {
		return nil, apperr.Persistence(err, "decode heartbeats")
	}
	for _, hb := range heartbeats {
		result[hb.SessionID] = hb
	}
	return result, nil
}

func (s *mongoStore) ensureBalance(ctx context.Context, userID string) error {
	_, err := s.c(collLeaveBalances).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"available_days": 0,
			"history":        bson.A{},
			"updated_at":     time.Now().UTC(),
		}},
		options.Update().SetUpsert(true))
	return err
}

// ApplyLeave debits and appends the history entry in one guarded update, then inserts the
// request. A failed insert is compensated by crediting the days back and pulling the entry.
func (s *mongoStore) ApplyLeave(ctx context.Context, req *model.LeaveRequest, debitDays int) (int, error) {
	if err := s.ensureBalance(ctx, req.UserID); err != nil {
		return 0, apperr.Persistence(err, "create balance for user %s", req.UserID)
	}

	entry := model.LeaveHistoryEntry{
		LeaveRequestID: req.ID,
		LeaveType:      req.LeaveType,
		Status:         req.Status,
		AppliedAt:      req.CreatedAt,
	}
	filter := bson.M{"_id": req.UserID}
	if debitDays > 0 {
		filter["available_days"] = bson.M{"$gte": debitDays}
	}
	update := bson.M{
		"$inc":  bson.M{"available_days": -debitDays},
		"$push": bson.M{"history": entry},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	var balance model.LeaveBalance
	err := s.c(collLeaveBalances).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&balance)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, apperr.InsufficientBalance("not enough %s balance for %d day(s)", req.LeaveType, debitDays)
	}
	if err != nil {
		return 0, apperr.Persistence(err, "debit balance for user %s", req.UserID)
	}

	if _, err := s.c(collLeaveRequests).InsertOne(ctx, req); err != nil {
		_, cerr := s.c(collLeaveBalances).UpdateOne(ctx, bson.M{"_id": req.UserID}, bson.M{
			"$inc":  bson.M{"available_days": debitDays},
			"$pull": bson.M{"history": bson.M{"leave_request_id": req.ID}},
		})
		if cerr != nil {
			err = fmt.Errorf("%w (compensation failed: %v)", err, cerr)
		}
		return 0, apperr.Persistence(err, "create leave request for user %s", req.UserID)
	}
	return balance.AvailableDays, nil
}

func (s *mongoStore) TransitionLeave(ctx context.Context, id string, status model.LeaveStatus, refund RefundFunc) (*model.LeaveRequest, error) {
	var req model.LeaveRequest
	err := s.c(collLeaveRequests).FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": model.LeavePending},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before)).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, ferr := s.FindLeave(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		return nil, apperr.InvalidState("leave request %s is already %s", id, current.Status)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "update leave request %s", id)
	}

	update := bson.M{"$set": bson.M{"history.$[h].status": status, "updated_at": time.Now().UTC()}}
	if refund != nil {
		if days := refund(req); days > 0 {
			update["$inc"] = bson.M{"available_days": days}
		}
	}
	_, err = s.c(collLeaveBalances).UpdateOne(ctx, bson.M{"_id": req.UserID}, update,
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []any{bson.M{"h.leave_request_id": id}},
		}))
	if err != nil {
		return nil, apperr.Persistence(err, "update balance for leave %s", id)
	}

	req.Status = status
	return &req, nil
}

func (s *mongoStore) FindLeave(ctx context.Context, id string) (*model.LeaveRequest, error) {
	var req model.LeaveRequest
	if err := s.c(collLeaveRequests).FindOne(ctx, bson.M{"_id": id}).Decode(&req); err != nil {
		return nil, mongoLookupErr(err, "leave request %s not found", id)
	}
	return &req, nil
}

func (s *mongoStore) ListLeaves(ctx context.Context, filter LeaveFilter) ([]model.LeaveRequest, int64, error) {
	q := bson.M{}
	if len(filter.UserIDs) > 0 {
		q["user_id"] = bson.M{"$in": filter.UserIDs}
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}

	total, err := s.c(collLeaveRequests).CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, apperr.Persistence(err, "count leave requests")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := s.c(collLeaveRequests).Find(ctx, q, opts)
	if err != nil {
		return nil, 0, apperr.Persistence(err, "list leave requests")
	}
	var leaves []model.LeaveRequest
	if err := cur.All(ctx, &leaves); err != nil {
		return nil, 0, apperr.Persistence(err, "decode leave requests")
	}
	return leaves, total, nil
}

func (s *mongoStore) GetBalance(ctx context.Context, userID string) (*model.LeaveBalance, error) {
	if err := s.ensureBalance(ctx, userID); err != nil {
		return nil, apperr.Persistence(err, "create balance for user %s", userID)
	}
	var balance model.LeaveBalance
	if err := s.c(collLeaveBalances).FindOne(ctx, bson.M{"_id": userID}).Decode(&balance); err != nil {
		return nil, apperr.Persistence(err, "load balance for user %s", userID)
	}
	for i := range balance.History {
		balance.History[i].UserID = userID
	}
	return &balance, nil
}

func (s *mongoStore) BalanceHolders(ctx context.Context) ([]string, error) {
	ids, err := s.distinctStrings(ctx, collLeaveBalances, "_id", bson.M{})
	if err != nil {
		return nil, apperr.Persistence(err, "list balance holders")
	}
	return ids, nil
}

func (s *mongoStore) GrantLeave(ctx context.Context, userIDs []string, days int) error {
	if len(userIDs) == 0 || days <= 0 {
		return nil
	}
	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(userIDs))
	writes := make([]mongo.WriteModel, 0, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{
				"$inc":         bson.M{"available_days": days},
				"$set":         bson.M{"updated_at": now},
				"$setOnInsert": bson.M{"history": bson.A{}},
			}).
			SetUpsert(true))
	}
	_, err := s.c(collLeaveBalances).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return apperr.Persistence(err, "grant %d day(s) to %d user(s)", days, len(writes))
}

func (s *mongoStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.c(collUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, mongoLookupErr(err, "user %s not found", id)
	}
	return &user, nil
}

func (s *mongoStore) ListUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	result := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	cur, err := s.c(collUsers).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, apperr.Persistence(err, "list users")
	}
	var users []model.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, apperr.Persistence(err, "decode users")
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

func (s *mongoStore) AllUserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.distinctStrings(ctx, collUsers, "_id", bson.M{})
	if err != nil {
		return nil, apperr.Persistence(err, "list user ids")
	}
	return ids, nil
}

func (s *mongoStore) ActiveEmployeeIDs(ctx context.Context) ([]string, error) {
	filter := bson.M{"role": model.RoleUser, "status": model.StatusActive}
	ids, err := s.distinctStrings(ctx, collUsers, "_id", filter)
	if err != nil {
		return nil, apperr.Persistence(err, "list active employee ids")
	}
	return ids, nil
}

func (s *mongoStore) FindUserIDsByFirstName(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{"first_name": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix), "$options": "i"}}
	ids, err := s.distinctStrings(ctx, collUsers, "_id", filter)
	if err != nil {
		return nil, apperr.Persistence(err, "find users by first name")
	}
	return ids, nil
}

func (s *mongoStore) SaveSubscription(ctx context.Context, sub model.PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := s.c(collSubscriptions).UpdateOne(ctx,
		bson.M{"_id": sub.Endpoint},
		bson.M{
			"$set":         bson.M{"user_id": sub.UserID, "p256dh": sub.P256DH, "auth": sub.Auth},
			"$setOnInsert": bson.M{"created_at": sub.CreatedAt},
		},
		options.Update().SetUpsert(true))
	return apperr.Persistence(err, "save push subscription")
}

func (s *mongoStore) DeleteSubscription(ctx context.Context, endpoint, userID string) error {
	filter := bson.M{"_id": endpoint}
	if userID != "" {
		filter["user_id"] = userID
	}
	_, err := s.c(collSubscriptions).DeleteOne(ctx, filter)
	return apperr.Persistence(err, "delete push subscription")
}

func (s *mongoStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.c(collSubscriptions).FindOne(ctx, bson.M{"_id": endpoint}).Decode(&sub); err != nil {
		return nil, mongoLookupErr(err, "subscription not found")
	}
	return &sub, nil
}

func (s *mongoStore) SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	cur, err := s.c(collSubscriptions).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, apperr.Persistence(err, "fetch subscriptions for user %s", userID)
	}
	var subs []model.PushSubscription
	if err := cur.All(ctx, &subs); err != nil {
		return nil, apperr.Persistence(err, "decode subscriptions")
	}
	return subs, nil
}
