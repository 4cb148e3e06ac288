// Package mongostore implements store.Backend on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Config struct {
	URI      string
	Database string
}

type Backend struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client with the decimal-aware registry and verifies connectivity.
func Connect(ctx context.Context, cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.URI) == "" || strings.TrimSpace(cfg.Database) == "" {
		return nil, errors.New("mongostore: uri and database are required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetRegistry(NewRegistry()))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	backend := &Backend{client: client, db: client.Database(cfg.Database)}
	if err := backend.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return backend, nil
}

func (b *Backend) Name() string { return "mongo" }

func (b *Backend) Database() *mongo.Database { return b.db }

func (b *Backend) Table(name string) store.Table {
	return &collection{col: b.db.Collection(name)}
}

func (b *Backend) Ping(ctx context.Context) error {
	return classify(b.client.Ping(ctx, nil))
}

func (b *Backend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

// EnsureSchema creates the declared indexes. Collections are created lazily.
func (b *Backend) EnsureSchema(ctx context.Context, schemas ...store.Schema) error {
	for _, schema := range schemas {
		if len(schema.Indexes) == 0 {
			continue
		}
		models := make([]mongo.IndexModel, 0, len(schema.Indexes))
		for _, idx := range schema.Indexes {
			keys := bson.D{}
			for _, field := range idx.Fields {
				keys = append(keys, bson.E{Key: field, Value: 1})
			}
			opts := options.Index().SetName(idx.Name)
			if idx.Unique {
				opts = opts.SetUnique(true)
			}
			if idx.Sparse {
				opts = opts.SetSparse(true)
			}
			models = append(models, mongo.IndexModel{Keys: keys, Options: opts})
		}
		if _, err := b.db.Collection(schema.Table).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongostore: migrate %s indexes: %w", schema.Table, err)
		}
	}
	return nil
}

type collection struct {
	col *mongo.Collection
}

func (c *collection) Insert(ctx context.Context, record any) error {
	_, err := c.col.InsertOne(ctx, record)
	return classify(err)
}

func (c *collection) Get(ctx context.Context, id snowflake.ID, dest any) error {
	return classify(c.col.FindOne(ctx, bson.M{"_id": int64(id)}).Decode(dest))
}

func (c *collection) Update(ctx context.Context, id snowflake.ID, upd store.Update, guards []store.Condition, dest any) error {
	if upd.IsEmpty() {
		return c.Get(ctx, id, dest)
	}

	filter, err := buildFilter(guards)
	if err != nil {
		return err
	}
	filter["_id"] = int64(id)

	set := bson.M{}
	unset := bson.M{}
	for field, value := range upd.Set {
		// Cleared fields are removed so sparse unique indexes skip them.
		if value == nil {
			unset[field] = ""
			continue
		}
		set[field] = value
	}
	doc := bson.M{}
	if len(set) > 0 {
		doc["$set"] = set
	}
	if len(unset) > 0 {
		doc["$unset"] = unset
	}
	if len(upd.Inc) > 0 {
		inc := bson.M{}
		for field, delta := range upd.Inc {
			inc[field] = delta
		}
		doc["$inc"] = inc
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = c.col.FindOneAndUpdate(ctx, filter, doc, opts).Decode(dest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if getErr := c.Get(ctx, id, dest); getErr != nil {
			return getErr
		}
		return store.ErrPreconditionFailed
	}
	return classify(err)
}

func (c *collection) Find(ctx context.Context, q store.Query, dest any) error {
	filter, err := buildFilter(q.Where)
	if err != nil {
		return err
	}
	opts := options.Find()
	if len(q.Sort) > 0 {
		sort := bson.D{}
		for _, s := range q.Sort {
			dir := 1
			if s.Desc {
				dir = -1
			}
			sort = append(sort, bson.E{Key: fieldName(s.Field), Value: dir})
		}
		opts = opts.SetSort(sort)
	}
	if q.Limit > 0 {
		opts = opts.SetLimit(int64(q.Limit))
	}

	cursor, err := c.col.Find(ctx, filter, opts)
	if err != nil {
		return classify(err)
	}
	return classify(cursor.All(ctx, dest))
}

func (c *collection) Delete(ctx context.Context, id snowflake.ID) error {
	res, err := c.col.DeleteOne(ctx, bson.M{"_id": int64(id)})
	if err != nil {
		return classify(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func buildFilter(conds []store.Condition) (bson.M, error) {
	filter := bson.M{}
	and := bson.A{}
	for _, c := range conds {
		if c.Op == store.OpOr {
			or, err := buildOr(c)
			if err != nil {
				return nil, err
			}
			and = append(and, or)
			continue
		}
		field := fieldName(c.Field)
		var expr any
		switch c.Op {
		case store.OpEq:
			expr = c.Value
		case store.OpNe:
			expr = bson.M{"$ne": c.Value}
		case store.OpGt:
			expr = bson.M{"$gt": c.Value}
		case store.OpGte:
			expr = bson.M{"$gte": c.Value}
		case store.OpLt:
			expr = bson.M{"$lt": c.Value}
		case store.OpLte:
			expr = bson.M{"$lte": c.Value}
		case store.OpIn:
			expr = bson.M{"$in": c.Value}
		case store.OpIsNull:
			expr = nil
		case store.OpNotNull:
			expr = bson.M{"$ne": nil}
		default:
			return nil, fmt.Errorf("mongostore: unsupported operator %q", c.Op)
		}
		and = append(and, bson.M{field: expr})
	}
	if len(and) > 0 {
		filter["$and"] = and
	}
	return filter, nil
}

func buildOr(c store.Condition) (bson.M, error) {
	groups, ok := c.Value.([][]store.Condition)
	if !ok {
		return nil, fmt.Errorf("mongostore: or condition holds %T", c.Value)
	}
	branches := make(bson.A, 0, len(groups))
	for _, group := range groups {
		branch, err := buildFilter(group)
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	return bson.M{"$or": branches}, nil
}

func fieldName(field string) string {
	if field == "id" {
		return "_id"
	}
	return field
}

var _ store.Backend = (*Backend)(nil)
