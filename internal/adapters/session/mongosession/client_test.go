package mongosession

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/deepresearch/agentrunner/internal/adapters/session"
)

func TestDocumentRoundTripsThroughRecord(t *testing.T) {
	rec := session.Record{
		ResearchID:   "r-1",
		Status:       "finalized",
		InitialQuery: "what is the weather",
		Plan:         "research the topic thoroughly",
		TextConfig:   map[string]any{"target_words": float64(4000)},
	}

	doc := toDocument(rec)
	require.Equal(t, rec, doc.toRecord())
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(context.Background(), Options{Database: "research"})
	require.Error(t, err)
}

func TestNewRequiresDatabase(t *testing.T) {
	_, err := New(context.Background(), Options{Client: &mongodriver.Client{}})
	require.Error(t, err)
}

func TestNewFromEnvRequiresURI(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("MONGODB_DATABASE", "research")
	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
}

func TestNewFromEnvRequiresDatabase(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("MONGODB_DATABASE", "")
	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
}
