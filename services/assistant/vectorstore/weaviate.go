// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// weaviateClasses maps logical collection names to Weaviate class names.
var weaviateClasses = map[string]string{
	CollectionWebsite: "WebsiteContent",
	CollectionIsta:    "IstaDocument",
}

// metadataKeys are the recognized document metadata properties. Every key
// is stored as a text property so the adapter round-trips the flat
// string map without schema churn.
var metadataKeys = []string{
	"title", "url", "section", "source_type", "keywords",
	"chunk_index", "total_chunks",
	"type", "groupe", "jour", "heure", "module", "professeur",
	"salle", "date", "info_type", "parrain",
}

// WeaviateStore is the remote backend over a Weaviate deployment.
//
// # Description
//
// One class per logical collection, vectorizer "none" (vectors are
// supplied by the embedding provider), cosine distance. The schema is
// ensured at startup; class absence at query time surfaces ErrNotFound so
// callers degrade to an empty index.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore wraps an initialized Weaviate client and ensures the
// knowledge classes exist.
func NewWeaviateStore(client *weaviate.Client) (*WeaviateStore, error) {
	s := &WeaviateStore{client: client}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureSchema creates the knowledge classes when absent. Idempotent.
func (s *WeaviateStore) ensureSchema(ctx context.Context) error {
	for logical, class := range weaviateClasses {
		_, err := s.client.Schema().ClassGetter().WithClassName(class).Do(ctx)
		if err == nil {
			slog.Info("Weaviate schema present", "class", class)
			continue
		}

		slog.Info("Creating Weaviate schema", "class", class, "collection", logical)
		if err := s.client.Schema().ClassCreator().WithClass(knowledgeClass(class)).Do(ctx); err != nil {
			return fmt.Errorf("creating class %s: %w", class, err)
		}
	}
	return nil
}

// knowledgeClass builds the class definition for one knowledge collection.
func knowledgeClass(name string) *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	props := []*models.Property{
		{
			Name:         "content",
			DataType:     []string{"text"},
			Description:  "The chunked passage text.",
			Tokenization: "word",
		},
		{
			Name:            "doc_id",
			DataType:        []string{"text"},
			Description:     "Stable document identifier within the collection.",
			IndexFilterable: indexFilterable,
			Tokenization:    "field",
		},
	}
	for _, key := range metadataKeys {
		props = append(props, &models.Property{
			Name:            key,
			DataType:        []string{"text"},
			IndexFilterable: indexFilterable,
			Tokenization:    "field",
		})
	}

	return &models.Class{
		Class:       name,
		Description: "Assistant knowledge collection (vectors supplied externally).",
		Vectorizer:  "none",
		Properties:  props,
	}
}

// OpenOrCreate implements Store. It creates the class when it is missing
// (for example after Delete), then binds a handle.
func (s *WeaviateStore) OpenOrCreate(ctx context.Context, name string) (Collection, error) {
	class, ok := weaviateClasses[name]
	if !ok {
		return nil, fmt.Errorf("unknown collection %s", name)
	}
	_, err := s.client.Schema().ClassGetter().WithClassName(class).Do(ctx)
	if err != nil {
		if err := s.client.Schema().ClassCreator().WithClass(knowledgeClass(class)).Do(ctx); err != nil {
			return nil, fmt.Errorf("creating class %s: %w", class, err)
		}
	}
	return &weaviateCollection{name: name, class: class, client: s.client}, nil
}

// Open implements Store.
func (s *WeaviateStore) Open(ctx context.Context, name string) (Collection, error) {
	class, ok := weaviateClasses[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if _, err := s.client.Schema().ClassGetter().WithClassName(class).Do(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &weaviateCollection{name: name, class: class, client: s.client}, nil
}

// Delete implements Store.
func (s *WeaviateStore) Delete(ctx context.Context, name string) error {
	class, ok := weaviateClasses[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := s.client.Schema().ClassDeleter().WithClassName(class).Do(ctx); err != nil {
		return fmt.Errorf("deleting class %s: %w", class, err)
	}
	return nil
}

// =============================================================================
// Collection
// =============================================================================

type weaviateCollection struct {
	name   string
	class  string
	client *weaviate.Client
}

func (c *weaviateCollection) Name() string { return c.name }

// docUUID derives a stable Weaviate object ID from the document ID so
// re-ingestion upserts instead of duplicating.
func docUUID(id string) string {
	hash := sha256.Sum256([]byte(id))
	u, _ := uuid.FromBytes(hash[:16])
	return u.String()
}

// Add implements Collection using the batch API in AddBatchSize groups,
// retrying each batch once on transient failure.
func (c *weaviateCollection) Add(ctx context.Context, docs []Document) error {
	for start := 0; start < len(docs); start += AddBatchSize {
		end := min(start+AddBatchSize, len(docs))

		objects := make([]*models.Object, 0, end-start)
		for _, d := range docs[start:end] {
			properties := map[string]interface{}{
				"content": d.Content,
				"doc_id":  d.ID,
			}
			for _, key := range metadataKeys {
				if v, ok := d.Metadata[key]; ok && v != "" {
					properties[key] = v
				}
			}
			objects = append(objects, &models.Object{
				Class:      c.class,
				ID:         strfmt.UUID(docUUID(d.ID)),
				Vector:     d.Embedding,
				Properties: properties,
			})
		}

		if err := c.sendBatch(ctx, objects); err != nil {
			slog.Warn("Weaviate batch failed, retrying once", "class", c.class, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			if err := c.sendBatch(ctx, objects); err != nil {
				return fmt.Errorf("batch insert into %s: %w", c.class, err)
			}
		}
	}
	return nil
}

func (c *weaviateCollection) sendBatch(ctx context.Context, objects []*models.Object) error {
	batcher := c.client.Batch().ObjectsBatcher()
	batcher.WithObjects(objects...)

	resp, err := batcher.Do(ctx)
	if err != nil {
		return err
	}
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status != "SUCCESS" {
			if item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 && item.Result.Errors.Error[0] != nil {
				return fmt.Errorf("object %s: %s", item.ID, item.Result.Errors.Error[0].Message)
			}
			return fmt.Errorf("object %s: status %s", item.ID, *item.Result.Status)
		}
	}
	return nil
}

// knowledgeFields are the GraphQL fields requested on every read.
func knowledgeFields(withDistance bool) []graphql.Field {
	fields := []graphql.Field{{Name: "content"}, {Name: "doc_id"}}
	for _, key := range metadataKeys {
		fields = append(fields, graphql.Field{Name: key})
	}
	if withDistance {
		fields = append(fields, graphql.Field{
			Name:   "_additional",
			Fields: []graphql.Field{{Name: "distance"}},
		})
	}
	return fields
}

// knowledgeResult mirrors one object of a GraphQL read.
type knowledgeResult struct {
	Content    string `json:"content"`
	DocID      string `json:"doc_id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Section    string `json:"section"`
	SourceType string `json:"source_type"`
	Keywords   string `json:"keywords"`
	ChunkIndex string `json:"chunk_index"`
	TotalCh    string `json:"total_chunks"`
	Type       string `json:"type"`
	Groupe     string `json:"groupe"`
	Jour       string `json:"jour"`
	Heure      string `json:"heure"`
	Module     string `json:"module"`
	Professeur string `json:"professeur"`
	Salle      string `json:"salle"`
	Date       string `json:"date"`
	InfoType   string `json:"info_type"`
	Parrain    string `json:"parrain"`
	Additional struct {
		Distance *float64 `json:"distance"`
	} `json:"_additional"`
}

// toDocument converts a GraphQL result row into the port type.
func (r *knowledgeResult) toDocument() Document {
	meta := map[string]string{}
	for key, val := range map[string]string{
		"title": r.Title, "url": r.URL, "section": r.Section,
		"source_type": r.SourceType, "keywords": r.Keywords,
		"chunk_index": r.ChunkIndex, "total_chunks": r.TotalCh,
		"type": r.Type, "groupe": r.Groupe, "jour": r.Jour,
		"heure": r.Heure, "module": r.Module, "professeur": r.Professeur,
		"salle": r.Salle, "date": r.Date, "info_type": r.InfoType,
		"parrain": r.Parrain,
	} {
		if val != "" {
			meta[key] = val
		}
	}
	return Document{ID: r.DocID, Content: r.Content, Metadata: meta}
}

// parseResults decodes the dynamic GraphQL payload for this class.
func (c *weaviateCollection) parseResults(resp *models.GraphQLResponse) ([]knowledgeResult, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling GraphQL data: %w", err)
	}

	var parsed struct {
		Get map[string][]knowledgeResult `json:"Get"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling GraphQL data: %w", err)
	}
	return parsed.Get[c.class], nil
}

// Query implements Collection with a nearVector search.
func (c *weaviateCollection) Query(ctx context.Context, embedding []float32, topK int) ([]Candidate, error) {
	nearVector := c.client.GraphQL().NearVectorArgBuilder().WithVector(embedding)

	resp, err := c.client.GraphQL().Get().
		WithClassName(c.class).
		WithFields(knowledgeFields(true)...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.class, err)
	}

	rows, err := c.parseResults(resp)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		dist := 0.0
		if row.Additional.Distance != nil {
			dist = *row.Additional.Distance
		}
		candidates = append(candidates, Candidate{
			Document:   row.toDocument(),
			Distance:   dist,
			Collection: c.name,
		})
	}
	return candidates, nil
}

// getAllLimit bounds a full scan; collections are curated knowledge, well
// below this.
const getAllLimit = 10000

// GetAll implements Collection.
func (c *weaviateCollection) GetAll(ctx context.Context) ([]Document, error) {
	resp, err := c.client.GraphQL().Get().
		WithClassName(c.class).
		WithFields(knowledgeFields(false)...).
		WithLimit(getAllLimit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", c.class, err)
	}

	rows, err := c.parseResults(resp)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.toDocument())
	}
	return docs, nil
}

// Count implements Collection via the aggregate meta count.
func (c *weaviateCollection) Count(ctx context.Context) (int, error) {
	resp, err := c.client.GraphQL().Aggregate().
		WithClassName(c.class).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", c.class, err)
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return 0, fmt.Errorf("marshaling aggregate data: %w", err)
	}
	var parsed struct {
		Aggregate map[string][]struct {
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"Aggregate"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("unmarshaling aggregate data: %w", err)
	}

	rows := parsed.Aggregate[c.class]
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Meta.Count, nil
}
