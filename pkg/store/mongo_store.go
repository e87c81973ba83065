package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"anonmsg/pkg/domain"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

// MongoStore implements Store on MongoDB collections.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

type userDoc struct {
	ID             string    `bson:"_id"`
	Username       string    `bson:"username"`
	UsernameKey    string    `bson:"username_key"`
	PasswordHash   string    `bson:"password_hash"`
	RequestTitle   string    `bson:"request_title"`
	ProfilePicture string    `bson:"profile_picture"`
	Plan           string    `bson:"plan"`
	HitCount       int64     `bson:"hit_count"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

type messageDoc struct {
	ID          string    `bson:"_id"`
	SenderID    string    `bson:"sender_id,omitempty"`
	RecipientID string    `bson:"recipient_id"`
	Text        string    `bson:"text"`
	Link        string    `bson:"link,omitempty"`
	Image       string    `bson:"image,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

// NewMongoStore connects, pings, and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("mongo uri: %w", ErrNotConfigured)
	}
	if strings.TrimSpace(database) == "" {
		return nil, fmt.Errorf("mongo database: %w", ErrNotConfigured)
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) users() *mongo.Collection    { return s.db.Collection(usersCollection) }
func (s *MongoStore) messages() *mongo.Collection { return s.db.Collection(messagesCollection) }

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	collections := map[*mongo.Collection][]mongo.IndexModel{
		s.users(): {
			{
				Keys:    bson.D{{Key: "username_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("unique_username_key"),
			},
			{Keys: bson.D{{Key: "username", Value: 1}}},
		},
		s.messages(): {
			{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "sender_id", Value: 1}}},
		},
	}
	for coll, models := range collections {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// CreateUser inserts a new identity; the unique username_key index rejects duplicates.
func (s *MongoStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	u = withUserDefaults(u, time.Now().UTC().Truncate(time.Millisecond))
	if _, err := s.users().InsertOne(ctx, userToDoc(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, err
	}
	return u, nil
}

// GetUserByID returns a user by ID.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

// FindUserByUsername matches the whole username, exactly or case-folded.
func (s *MongoStore) FindUserByUsername(ctx context.Context, username string, caseSensitive bool) (domain.User, bool, error) {
	if caseSensitive {
		return s.findUser(ctx, bson.M{"username": username})
	}
	return s.findUser(ctx, bson.M{"username_key": usernameKey(username)})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (domain.User, bool, error) {
	var doc userDoc
	if err := s.users().FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromDoc(doc), true, nil
}

// UpdateUserProfile applies non-nil profile fields.
func (s *MongoStore) UpdateUserProfile(ctx context.Context, id string, update domain.ProfileUpdate) (domain.User, bool, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if update.RequestTitle != nil {
		set["request_title"] = *update.RequestTitle
	}
	if update.ProfilePicture != nil {
		set["profile_picture"] = *update.ProfilePicture
	}
	return s.findAndUpdateUser(ctx, id, bson.M{"$set": set})
}

// IncrementHitCount bumps hit_count atomically.
func (s *MongoStore) IncrementHitCount(ctx context.Context, id string) (domain.User, bool, error) {
	return s.findAndUpdateUser(ctx, id, bson.M{"$inc": bson.M{"hit_count": 1}})
}

func (s *MongoStore) findAndUpdateUser(ctx context.Context, id string, update bson.M) (domain.User, bool, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDoc
	if err := s.users().FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromDoc(doc), true, nil
}

// CreateMessage inserts a message and returns it with the sender resolved.
func (s *MongoStore) CreateMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	m = withMessageDefaults(m, time.Now().UTC().Truncate(time.Millisecond))
	if _, err := s.messages().InsertOne(ctx, messageToDoc(m)); err != nil {
		return domain.Message{}, err
	}
	out := []domain.Message{m}
	if err := resolveSenders(ctx, out, s.senderProfiles); err != nil {
		return domain.Message{}, fmt.Errorf("resolve sender: %w", err)
	}
	return out[0], nil
}

// ListMessagesForRecipient returns messages newest first; equal timestamps
// keep insertion order through the time-ordered _id.
func (s *MongoStore) ListMessagesForRecipient(ctx context.Context, recipientID string) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.messages().Find(ctx, bson.M{"recipient_id": recipientID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	res := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		res = append(res, messageFromDoc(d))
	}
	if err := resolveSenders(ctx, res, s.senderProfiles); err != nil {
		return nil, fmt.Errorf("resolve senders: %w", err)
	}
	return res, nil
}

func (s *MongoStore) senderProfiles(ctx context.Context, ids []string) (map[string]domain.SenderProfile, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, "username": 1, "profile_picture": 1})
	cursor, err := s.users().Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make(map[string]domain.SenderProfile, len(docs))
	for _, d := range docs {
		out[d.ID] = senderProfile(userFromDoc(d))
	}
	return out, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func userToDoc(u domain.User) userDoc {
	return userDoc{
		ID:             u.ID,
		Username:       u.Username,
		UsernameKey:    usernameKey(u.Username),
		PasswordHash:   u.PasswordHash,
		RequestTitle:   u.RequestTitle,
		ProfilePicture: u.ProfilePicture,
		Plan:           string(u.Plan),
		HitCount:       u.HitCount,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func userFromDoc(d userDoc) domain.User {
	return domain.User{
		ID:             d.ID,
		Username:       d.Username,
		PasswordHash:   d.PasswordHash,
		RequestTitle:   d.RequestTitle,
		ProfilePicture: d.ProfilePicture,
		Plan:           domain.Plan(d.Plan),
		HitCount:       d.HitCount,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func messageToDoc(m domain.Message) messageDoc {
	return messageDoc{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Text:        m.Text,
		Link:        m.Link,
		Image:       m.Image,
		CreatedAt:   m.CreatedAt,
	}
}

func messageFromDoc(d messageDoc) domain.Message {
	return domain.Message{
		ID:          d.ID,
		SenderID:    d.SenderID,
		RecipientID: d.RecipientID,
		Text:        d.Text,
		Link:        d.Link,
		Image:       d.Image,
		CreatedAt:   d.CreatedAt,
	}
}
