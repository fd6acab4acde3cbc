package chroma

import (
	"context"
	"fmt"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
)

// New connects to a Chroma server and returns the named collection, creating it
// in cosine space when missing.
func New(ctx context.Context, baseURL, collectionName string) (chromago.Client, chromago.Collection, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, nil, fmt.Errorf("create chroma client failed: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Heartbeat(pingCtx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping chroma failed: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		ctx,
		collectionName,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", "cosine"),
				chromago.NewStringAttribute("created_by", "docqa-service"),
			),
		),
	)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("get or create chroma collection %q failed: %w", collectionName, err)
	}
	return client, collection, nil
}
