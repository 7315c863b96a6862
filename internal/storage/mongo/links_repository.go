package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/db"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/links"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type LinksRepository struct {
	coll *mongo.Collection
}

type policyDoc struct {
	Type            string `bson:"type"`
	ContractAddress string `bson:"contractAddress"`
	MinBalance      string `bson:"minBalance"`
	ChainID         int64  `bson:"chainId,omitempty"`
}

type linkDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	ShortCode     string             `bson:"shortCode"`
	OriginalURL   string             `bson:"originalUrl"`
	Title         string             `bson:"title,omitempty"`
	CreatorWallet string             `bson:"creatorWallet,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
	ExpiresAt     *time.Time         `bson:"expiresAt,omitempty"`
	IsActive      bool               `bson:"isActive"`
	ClickCount    int64              `bson:"clickCount"`
	AccessPolicy  *policyDoc         `bson:"accessPolicy,omitempty"`
}

// NewLinksRepository ensures the unique shortCode index. That index is the
// only collision authority; the allocation loop in the service relies on the
// duplicate-key error it produces.
func NewLinksRepository(m *db.Mongo) (*LinksRepository, error) {
	repo := &LinksRepository{coll: m.Collection("links")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "shortCode", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_short_code"),
		},
		{
			Keys:    bson.D{{Key: "creatorWallet", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("wallet_created_desc"),
		},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *LinksRepository) Insert(ctx context.Context, link *links.Link) error {
	doc := linkDoc{
		ShortCode:     link.ShortCode,
		OriginalURL:   link.OriginalURL,
		Title:         link.Title,
		CreatorWallet: link.CreatorWallet,
		CreatedAt:     link.CreatedAt.UTC(),
		ExpiresAt:     link.ExpiresAt,
		IsActive:      link.IsActive,
	}
	if !link.AccessPolicy.Empty() {
		doc.AccessPolicy = &policyDoc{
			Type:            string(link.AccessPolicy.Type),
			ContractAddress: link.AccessPolicy.ContractAddress,
			MinBalance:      link.AccessPolicy.MinBalance,
			ChainID:         link.AccessPolicy.ChainID,
		}
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return links.ErrCodeTaken
		}
		return err
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		link.ID = oid.Hex()
	}
	return nil
}

func (r *LinksRepository) FindByCode(ctx context.Context, code string) (*links.Link, error) {
	var doc linkDoc
	err := r.coll.FindOne(ctx, bson.M{"shortCode": code}).Decode(&doc)
	if err == nil {
		return mapLinkDoc(doc), nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, links.ErrNotFound
	}

	return nil, err
}

// IncClickCount bumps the aggregate counter atomically; callers never
// read-modify-write the count.
func (r *LinksRepository) IncClickCount(ctx context.Context, urlID string) error {
	oid, err := primitive.ObjectIDFromHex(urlID)
	if err != nil {
		return err
	}

	_, err = r.coll.UpdateByID(ctx, oid, bson.M{"$inc": bson.M{"clickCount": 1}})
	return err
}

func mapLinkDoc(doc linkDoc) *links.Link {
	link := &links.Link{
		ID:            doc.ID.Hex(),
		ShortCode:     doc.ShortCode,
		OriginalURL:   doc.OriginalURL,
		Title:         doc.Title,
		CreatorWallet: doc.CreatorWallet,
		CreatedAt:     doc.CreatedAt,
		ExpiresAt:     doc.ExpiresAt,
		IsActive:      doc.IsActive,
		ClickCount:    doc.ClickCount,
	}
	if doc.AccessPolicy != nil {
		link.AccessPolicy = &links.AccessPolicy{
			Type:            links.PolicyType(doc.AccessPolicy.Type),
			ContractAddress: doc.AccessPolicy.ContractAddress,
			MinBalance:      doc.AccessPolicy.MinBalance,
			ChainID:         doc.AccessPolicy.ChainID,
		}
	}
	return link
}
