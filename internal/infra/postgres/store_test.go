package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyaddict/studyaddict/internal/app/cloudsync"
	"github.com/studyaddict/studyaddict/internal/infra/postgres"
)

func TestTableIdent_Quotes(t *testing.T) {
	assert.Equal(t, `"progress_documents"`, postgres.TableIdent("progress_documents"))
	assert.Equal(t, `"bad""; drop"`, postgres.TableIdent(`bad"; drop`))
}

func TestMergeSQL_Concatenates(t *testing.T) {
	q := postgres.MergeSQL(`"docs"`)
	assert.Contains(t, q, `ON CONFLICT (id) DO UPDATE SET doc = "docs".doc || excluded.doc`)
	assert.Contains(t, q, "$2::jsonb")
}

// TestStore_Live runs against a real database when STUDYADDICT_POSTGRES_DSN is set.
func TestStore_Live(t *testing.T) {
	dsn := os.Getenv("STUDYADDICT_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STUDYADDICT_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := postgres.DefaultConfig()
	cfg.DSN = dsn
	cfg.Table = fmt.Sprintf("progress_test_%d", time.Now().UnixNano())
	store, err := postgres.Open(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	doc, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	xp, prestige := int64(10), 1
	require.NoError(t, store.Merge(ctx, "u1", cloudsync.Document{XP: &xp, Prestige: &prestige}))
	xp2 := int64(20)
	require.NoError(t, store.Merge(ctx, "u1", cloudsync.Document{XP: &xp2}))

	doc, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, int64(20), *doc.XP)
	assert.Equal(t, 1, *doc.Prestige)
}
