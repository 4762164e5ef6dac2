// Package mongodb implements core.PageDB on MongoDB. A page is one document, with its review and comments embedded.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wansing/schemareview/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const defaultDatabase = "schemareview"

type keywordDoc struct {
	Term       string  `bson:"term"`
	Importance float64 `bson:"importance"`
}

type entityDoc struct {
	Name       string  `bson:"name"`
	Type       string  `bson:"type"`
	Importance float64 `bson:"importance"`
}

type reviewDoc struct {
	ReviewerID   string    `bson:"reviewed_by"`
	ReviewerName string    `bson:"reviewer_name"`
	Decision     string    `bson:"decision"`
	Notes        string    `bson:"notes"`
	ReviewedAt   time.Time `bson:"reviewed_at"`
}

type commentDoc struct {
	ID         string    `bson:"id"`
	Text       string    `bson:"comment"`
	AuthorID   string    `bson:"author_id"`
	AuthorName string    `bson:"author_name"`
	CreatedAt  time.Time `bson:"created_at"`
}

type pageDoc struct {
	ID         string       `bson:"_id"`
	Seq        int64        `bson:"seq"` // insertion order
	ClientID   string       `bson:"client_id"`
	URL        string       `bson:"url"`
	Title      string       `bson:"page_title"`
	MainTopic  string       `bson:"main_topic"`
	Summary    string       `bson:"content_summary"`
	Keywords   []keywordDoc `bson:"keywords"`
	Entities   []entityDoc  `bson:"entities"`
	SchemaBody string       `bson:"schema_body"`
	Status     string       `bson:"status"`
	Review     *reviewDoc   `bson:"review,omitempty"`
	Comments   []commentDoc `bson:"comments"`
	Version    int64        `bson:"version"`
	CreatedAt  time.Time    `bson:"created_at"`
	UpdatedAt  time.Time    `bson:"updated_at"`
}

func toDoc(p *core.Page) *pageDoc {
	var d = &pageDoc{
		ID:         p.ID,
		ClientID:   p.ClientID,
		URL:        p.URL,
		Title:      p.Title,
		MainTopic:  p.MainTopic,
		Summary:    p.Summary,
		Keywords:   []keywordDoc{},
		Entities:   []entityDoc{},
		SchemaBody: p.SchemaBody,
		Status:     string(p.Status),
		Comments:   []commentDoc{},
		Version:    p.Version,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	for _, k := range p.Keywords {
		d.Keywords = append(d.Keywords, keywordDoc{k.Term, k.Importance})
	}
	for _, e := range p.Entities {
		d.Entities = append(d.Entities, entityDoc{e.Name, e.Type, e.Importance})
	}
	if p.Review != nil {
		d.Review = toReviewDoc(p.Review)
	}
	for i := range p.Comments {
		d.Comments = append(d.Comments, toCommentDoc(&p.Comments[i]))
	}
	return d
}

func toReviewDoc(r *core.Review) *reviewDoc {
	return &reviewDoc{
		ReviewerID:   r.ReviewerID,
		ReviewerName: r.ReviewerName,
		Decision:     string(r.Decision),
		Notes:        r.Notes,
		ReviewedAt:   r.ReviewedAt,
	}
}

func toCommentDoc(c *core.Comment) commentDoc {
	return commentDoc{
		ID:         c.ID,
		Text:       c.Text,
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		CreatedAt:  c.CreatedAt,
	}
}

func (d *pageDoc) page() *core.Page {
	var p = &core.Page{
		ID:         d.ID,
		ClientID:   d.ClientID,
		URL:        d.URL,
		Title:      d.Title,
		MainTopic:  d.MainTopic,
		Summary:    d.Summary,
		Keywords:   []core.Keyword{},
		Entities:   []core.Entity{},
		SchemaBody: d.SchemaBody,
		Status:     core.Status(d.Status),
		Comments:   []core.Comment{},
		Version:    d.Version,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	for _, k := range d.Keywords {
		p.Keywords = append(p.Keywords, core.Keyword{Term: k.Term, Importance: k.Importance})
	}
	for _, e := range d.Entities {
		p.Entities = append(p.Entities, core.Entity{Name: e.Name, Type: e.Type, Importance: e.Importance})
	}
	if d.Review != nil {
		p.Review = &core.Review{
			ReviewerID:   d.Review.ReviewerID,
			ReviewerName: d.Review.ReviewerName,
			Decision:     core.Status(d.Review.Decision),
			Notes:        d.Review.Notes,
			ReviewedAt:   d.Review.ReviewedAt,
		}
	}
	for _, c := range d.Comments {
		p.Comments = append(p.Comments, core.Comment{
			ID:         c.ID,
			Text:       c.Text,
			AuthorID:   c.AuthorID,
			AuthorName: c.AuthorName,
			CreatedAt:  c.CreatedAt,
		})
	}
	return p
}

type PageDB struct {
	client   *mongo.Client
	counters *mongo.Collection
	pages    *mongo.Collection
}

// Open connects to the MongoDB server at uri and uses the database named in its path.
func Open(ctx context.Context, uri string) (*PageDB, error) {

	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("could not parse mongodb uri: %w", err)
	}
	var database = cs.Database
	if database == "" {
		database = defaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("could not connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("could not ping mongodb: %w", err)
	}

	var db = &PageDB{
		client:   client,
		counters: client.Database(database).Collection("counters"),
		pages:    client.Database(database).Collection("pages"),
	}

	_, err = db.pages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("could not create index: %w", err)
	}

	return db, nil
}

func (db *PageDB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

func (db *PageDB) IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func scopeFilter(scope core.Scope) bson.D {
	if scope.All() {
		return bson.D{}
	}
	return bson.D{{Key: "client_id", Value: scope.ClientID()}}
}

func idFilter(scope core.Scope, id string) bson.D {
	return append(bson.D{{Key: "_id", Value: id}}, scopeFilter(scope)...)
}

func (db *PageDB) GetPage(ctx context.Context, scope core.Scope, id string) (*core.Page, error) {
	var d = &pageDoc{}
	if err := db.pages.FindOne(ctx, idFilter(scope, id)).Decode(d); err != nil {
		return nil, err
	}
	return d.page(), nil
}

func (db *PageDB) ListPages(ctx context.Context, scope core.Scope) ([]*core.Page, error) {

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})

	cursor, err := db.pages.Find(ctx, scopeFilter(scope), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pages = []*core.Page{}
	for cursor.Next(ctx) {
		var d = &pageDoc{}
		if err := cursor.Decode(d); err != nil {
			return nil, err
		}
		pages = append(pages, d.page())
	}
	return pages, cursor.Err()
}

// nextSeq increments and returns the page counter.
func (db *PageDB) nextSeq(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := db.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: "pages"}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		opts,
	).Decode(&counter)
	return counter.Seq, err
}

func (db *PageDB) InsertPage(ctx context.Context, p *core.Page) error {
	seq, err := db.nextSeq(ctx)
	if err != nil {
		return err
	}
	var doc = toDoc(p)
	doc.Seq = seq
	_, err = db.pages.InsertOne(ctx, doc)
	return err
}

// update applies the update to the page and returns the updated page.
// If no document matches, it finds out whether the page is missing, has no schema or has another version.
func (db *PageDB) update(ctx context.Context, scope core.Scope, id string, needSchema bool, ifVersion int64, update bson.D) (*core.Page, error) {

	var filter = idFilter(scope, id)
	if needSchema {
		filter = append(filter, bson.E{Key: "schema_body", Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: ""}}})
	}
	if ifVersion != 0 {
		filter = append(filter, bson.E{Key: "version", Value: ifVersion})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var d = &pageDoc{}
	err := db.pages.FindOneAndUpdate(ctx, filter, update, opts).Decode(d)
	if err == nil {
		return d.page(), nil
	}
	if !db.IsNotFound(err) {
		return nil, err
	}

	current, err := db.GetPage(ctx, scope, id)
	if err != nil {
		return nil, err // probably mongo.ErrNoDocuments
	}
	if needSchema && !current.HasSchema() {
		return nil, core.ErrInvalidState
	}
	if ifVersion != 0 && current.Version != ifVersion {
		return nil, core.ErrConflict
	}
	return nil, mongo.ErrNoDocuments // should not happen
}

func (db *PageDB) SetSchema(ctx context.Context, scope core.Scope, id string, body string, ifVersion int64, now time.Time) (*core.Page, error) {
	return db.update(ctx, scope, id, false, ifVersion, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "schema_body", Value: body},
			{Key: "status", Value: string(core.Pending)},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$unset", Value: bson.D{{Key: "review", Value: ""}}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	})
}

func (db *PageDB) SetReview(ctx context.Context, scope core.Scope, id string, r *core.Review, ifVersion int64) (*core.Page, error) {
	return db.update(ctx, scope, id, true, ifVersion, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(r.Decision)},
			{Key: "review", Value: toReviewDoc(r)},
			{Key: "updated_at", Value: r.ReviewedAt},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	})
}

// AppendComment pushes onto the comments array, so it never overwrites other fields.
func (db *PageDB) AppendComment(ctx context.Context, scope core.Scope, id string, c *core.Comment) (*core.Page, error) {
	return db.update(ctx, scope, id, false, 0, bson.D{
		{Key: "$push", Value: bson.D{{Key: "comments", Value: toCommentDoc(c)}}},
	})
}
