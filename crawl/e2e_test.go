package crawl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scipunch/backlog/fetcher"
	"github.com/scipunch/backlog/fetcher/types"
	"github.com/scipunch/backlog/registry"
	"github.com/scipunch/backlog/store"
)

func TestRun_SQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := store.Open(ctx, filepath.Join(dir, "backlog.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(ctx))

	rssPath := filepath.Join(dir, "rss.xml")
	require.NoError(t, os.WriteFile(rssPath, []byte(goodRSS), 0o644))
	ytFixture, err := os.ReadFile("../parser/youtube/testdata/channel.xml")
	require.NoError(t, err)
	ytPath := filepath.Join(dir, "channel.xml")
	require.NoError(t, os.WriteFile(ytPath, ytFixture, 0o644))

	reg := registry.New(st.DB())
	_, err = reg.Add(ctx, "file://"+rssPath, "")
	require.NoError(t, err)
	_, err = reg.Add(ctx, "file://"+ytPath, types.Structured)
	require.NoError(t, err)
	_, err = reg.Add(ctx, "file://"+filepath.Join(dir, "missing.xml"), "")
	require.NoError(t, err)

	sink := SinkFunc(func(ctx context.Context) (Session, error) {
		sess, err := st.Session(ctx)
		if err != nil {
			return nil, err
		}
		return sess, nil
	})
	o := New(reg, fetcher.GetFetchers(), parsers(t), sink, nil, WithConcurrency(2))

	first := o.Run(ctx)
	assert.Equal(t, 3, first.Sources)
	assert.Equal(t, 2, first.Done)
	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, 4, first.Stored)

	second := o.Run(ctx)
	assert.Equal(t, 2, second.Done)
	assert.Zero(t, second.Stored)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{Sources: 3, CrawledSources: 2, Articles: 4}, stats)

	var created []string
	require.NoError(t, st.DB().Select(&created, `SELECT created FROM articles WHERE link LIKE 'https://www.youtube.com/%' ORDER BY created`))
	assert.Equal(t, []string{"2023-04-20 16:30:05", "2023-05-01 10:00:00"}, created)
}
