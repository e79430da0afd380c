package store

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the MongoDB store.
type MongoConfig struct {
	URI      string // e.g. mongodb://localhost:27017
	Database string // e.g. rpgserver
}

// MongoStore implements Store on a MongoDB backend.
// One collection per table; counters use FindOneAndUpdate with $inc so
// ID allocation is a single atomic fetch-and-increment on the server.
type MongoStore struct {
	client      *mongo.Client
	accounts    *mongoAccountRepo
	characters  *mongoCharacterRepo
	appearances *mongoAppearanceRepo
	sessions    *mongoSessionRepo
	counters    *mongoCounterRepo
}

// NewMongoStore establishes the connection and ensures indexes.
func NewMongoStore(cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "rpgserver"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database)
	const opTimeout = 5 * time.Second
	s := &MongoStore{
		client:      client,
		accounts:    &mongoAccountRepo{coll: db.Collection("accounts"), timeout: opTimeout},
		characters:  &mongoCharacterRepo{coll: db.Collection("characters"), timeout: opTimeout},
		appearances: &mongoAppearanceRepo{coll: db.Collection("appearances"), timeout: opTimeout},
		sessions:    &mongoSessionRepo{coll: db.Collection("sessions"), timeout: opTimeout},
		counters:    &mongoCounterRepo{coll: db.Collection("counters"), timeout: opTimeout},
	}

	if err := s.ensureIndexes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nameIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "name_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("character_name_unique"),
	}
	ownerIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "owner_identity", Value: 1}},
		Options: options.Index().SetName("character_owner"),
	}
	_, err := s.characters.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{nameIdx, ownerIdx})
	return err
}

func (s *MongoStore) Accounts() AccountRepo       { return s.accounts }
func (s *MongoStore) Characters() CharacterRepo   { return s.characters }
func (s *MongoStore) Appearances() AppearanceRepo { return s.appearances }
func (s *MongoStore) Sessions() SessionRepo       { return s.sessions }
func (s *MongoStore) Counters() CounterRepo       { return s.counters }

// Close terminates the connection.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mongoCtx(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

// ---------- accounts ----------

type mongoAccountRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
}

type accountDoc struct {
	Identity  string    `bson:"_id"`
	Username  string    `bson:"username"`
	CreatedAt time.Time `bson:"created_at"`
	LastLogin time.Time `bson:"last_login"`
}

func accountToDoc(a *Account) accountDoc {
	return accountDoc{Identity: a.Identity, Username: a.Username, CreatedAt: a.CreatedAt, LastLogin: a.LastLogin}
}

func (d accountDoc) toRecord() *Account {
	return &Account{Identity: d.Identity, Username: d.Username, CreatedAt: d.CreatedAt, LastLogin: d.LastLogin}
}

func (r *mongoAccountRepo) Insert(ctx context.Context, acc *Account) error {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, accountToDoc(acc))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *mongoAccountRepo) Get(ctx context.Context, identity string) (*Account, error) {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	var doc accountDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": identity}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toRecord(), nil
}

func (r *mongoAccountRepo) Replace(ctx context.Context, acc *Account) error {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": acc.Identity}, accountToDoc(acc))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoAccountRepo) Delete(ctx context.Context, identity string) error {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": identity})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------- characters ----------

type mongoCharacterRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
}

type characterDoc struct {
	ID            uint64    `bson:"_id"`
	OwnerIdentity string    `bson:"owner_identity"`
	Name          string    `bson:"name"`
	NameKey       string    `bson:"name_key"` // lowercase, backs the unique index
	Class         string    `bson:"class"`
	Level         int32     `bson:"level"`
	X             float64   `bson:"x"`
	Y             float64   `bson:"y"`
	Direction     string    `bson:"direction"`
	CreatedAt     time.Time `bson:"created_at"`
	LastUpdated   time.Time `bson:"last_updated"`
}

func characterToDoc(c *Character) characterDoc {
	return characterDoc{
		ID:            c.ID,
		OwnerIdentity: c.OwnerIdentity,
		Name:          c.Name,
		NameKey:       strings.ToLower(c.Name),
		Class:         c.Class,
		Level:         c.Level,
		X:             c.X,
		Y:             c.Y,
		Direction:     c.Direction,
		CreatedAt:     c.CreatedAt,
		LastUpdated:   c.LastUpdated,
	}
}

func (d characterDoc) toRecord() *Character {
	return &Character{
		ID:            d.ID,
		OwnerIdentity: d.OwnerIdentity,
		Name:          d.Name,
		Class:         d.Class,
		Level:         d.Level,
		X:             d.X,
		Y:             d.Y,
		Direction:     d.Direction,
		CreatedAt:     d.CreatedAt,
		LastUpdated:   d.LastUpdated,
	}
}

func (r *mongoCharacterRepo) Insert(ctx context.Context, ch *Character) error {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, characterToDoc(ch))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *mongoCharacterRepo) Get(ctx context.Context, id uint64) (*Character, error) {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	var doc characterDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toRecord(), nil
}

func (r *mongoCharacterRepo) GetByName(ctx context.Context, name string) (*Character, error) {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	var doc characterDoc
	err := r.coll.FindOne(ctx, bson.M{"name_key": strings.ToLower(name)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toRecord(), nil
}

func (r *mongoCharacterRepo) ListByOwner(ctx context.Context, identity string) ([]*Character, error) {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"owner_identity": identity}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var result []*Character
	for cur.Next(ctx) {
		var doc characterDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, doc.toRecord())
	}
	return result, cur.Err()
}

func (r *mongoCharacterRepo) Replace(ctx context.Context, ch *Character) error {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": ch.ID}, characterToDoc(ch))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoCharacterRepo) Delete(ctx context.Context, id uint64) error {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------- appearances ----------

type mongoAppearanceRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
}

type appearanceDoc struct {
	CharacterID uint64 `bson:"_id"`
	Skin        string `bson:"skin"`
	Hair        string `bson:"hair"`
	Eyes        string `bson:"eyes"`
	Outfit      string `bson:"outfit"`
}

func (r *mongoAppearanceRepo) Insert(ctx context.Context, ap *Appearance) error {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, appearanceDoc{
		CharacterID: ap.CharacterID, Skin: ap.Skin, Hair: ap.Hair, Eyes: ap.Eyes, Outfit: ap.Outfit,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *mongoAppearanceRepo) Get(ctx context.Context, characterID uint64) (*Appearance, error) {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	var doc appearanceDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": characterID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Appearance{
		CharacterID: doc.CharacterID, Skin: doc.Skin, Hair: doc.Hair, Eyes: doc.Eyes, Outfit: doc.Outfit,
	}, nil
}

func (r *mongoAppearanceRepo) Delete(ctx context.Context, characterID uint64) error {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": characterID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------- sessions ----------

type mongoSessionRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
}

type sessionDoc struct {
	Identity     string    `bson:"_id"`
	CharacterID  uint64    `bson:"character_id"`
	ConnectedAt  time.Time `bson:"connected_at"`
	LastActivity time.Time `bson:"last_activity"`
}

func (r *mongoSessionRepo) Upsert(ctx context.Context, s *Session) error {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	doc := sessionDoc{
		Identity: s.Identity, CharacterID: s.CharacterID,
		ConnectedAt: s.ConnectedAt, LastActivity: s.LastActivity,
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": s.Identity}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *mongoSessionRepo) Get(ctx context.Context, identity string) (*Session, error) {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	var doc sessionDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": identity}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Session{
		Identity: doc.Identity, CharacterID: doc.CharacterID,
		ConnectedAt: doc.ConnectedAt, LastActivity: doc.LastActivity,
	}, nil
}

func (r *mongoSessionRepo) Delete(ctx context.Context, identity string) error {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": identity})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoSessionRepo) Count(ctx context.Context) (int, error) {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	n, err := r.coll.CountDocuments(ctx, bson.M{})
	return int(n), err
}

// ---------- counters ----------

type mongoCounterRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// Next atomically increments a counter and returns the new value.
// FindOneAndUpdate with $inc executes as one server-side operation,
// so two concurrent callers can never observe the same value.
func (r *mongoCounterRepo) Next(ctx context.Context, name string) (uint64, error) {
	ctx, cancel := mongoCtx(ctx, r.timeout)
	defer cancel()
	res := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var doc struct {
		Value int64 `bson:"value"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return uint64(doc.Value), nil
}
