package mongo

import (
	"context"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/db"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/links"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ClicksRepository persists per-click events and the daily rollup the
// consumer maintains.
type ClicksRepository struct {
	eventsColl *mongo.Collection
	dailyColl  *mongo.Collection
}

type clickEventDoc struct {
	EventID   string    `bson:"eventId"`
	URLID     string    `bson:"urlId"`
	Referrer  string    `bson:"referrer,omitempty"`
	UserAgent string    `bson:"userAgent,omitempty"`
	ClickedAt time.Time `bson:"clickedAt"`
}

type clickDailyDoc struct {
	Code  string `bson:"code"`
	Date  string `bson:"date"` // YYYY-MM-DD (UTC)
	Count int64  `bson:"count"`
}

func NewClicksRepository(m *db.Mongo) (*ClicksRepository, error) {
	repo := &ClicksRepository{
		eventsColl: m.Collection("click_events"),
		dailyColl:  m.Collection("clicks_daily"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.eventsColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "eventId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_event_id"),
		},
		{
			Keys:    bson.D{{Key: "urlId", Value: 1}, {Key: "clickedAt", Value: -1}},
			Options: options.Index().SetName("url_clicked_desc"),
		},
	})
	if err != nil {
		return nil, err
	}

	_, err = repo.dailyColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}, {Key: "date", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_code_date"),
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

// InsertEvent is append-only; events are never updated after the fact.
func (r *ClicksRepository) InsertEvent(ctx context.Context, event *links.ClickEvent) error {
	doc := clickEventDoc{
		EventID:   event.EventID,
		URLID:     event.URLID,
		Referrer:  event.Referrer,
		UserAgent: event.UserAgent,
		ClickedAt: event.ClickedAt.UTC(),
	}

	_, err := r.eventsColl.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		// Redelivered message; the first insert won.
		return nil
	}
	return err
}

func (r *ClicksRepository) IncDaily(ctx context.Context, code string, at time.Time) error {
	date := at.UTC().Format(time.DateOnly)

	_, err := r.dailyColl.UpdateOne(
		ctx,
		bson.M{"code": code, "date": date},
		bson.M{
			"$inc": bson.M{"count": 1},
			"$setOnInsert": bson.M{
				"code": code,
				"date": date,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}
