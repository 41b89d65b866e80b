package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorwatch/internal/schema"
)

func testPrediction(seq int64, anomalous bool) Prediction {
	return Prediction{
		SensorEvent: schema.SensorEvent{
			Timestamp:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
			Sequence:     seq,
			StationID:    "station_001",
			TemperatureC: 70.2,
			HumidityPct:  44.7,
			SoundDB:      66.1,
		},
		AnomalyScore: 0.42,
		Label:        anomalous,
		ModelVersion: "iforest-test-1",
		ScoredAt:     time.Now().UTC(),
		RawInput:     json.RawMessage(`{"sequence":` + fmt.Sprint(seq) + `}`),
	}
}

func openTestLog(t *testing.T) (*LogFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "predictions.log")
	lf, err := OpenLogFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { lf.Close() })
	return lf, path
}

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	lf, _ := openTestLog(t)
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		id, err := lf.Append(ctx, testPrediction(i, false))
		require.NoError(t, err)
		assert.Equal(t, i, id)
	}
}

func TestRecentAnomaliesFiltersAndOrders(t *testing.T) {
	lf, _ := openTestLog(t)
	ctx := context.Background()
	for i := int64(1); i <= 10; i++ {
		_, err := lf.Append(ctx, testPrediction(i, i%2 == 0))
		require.NoError(t, err)
	}
	got, err := lf.RecentAnomalies(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Even sequences were anomalous; newest first.
	assert.Equal(t, int64(10), got[0].Sequence)
	assert.Equal(t, int64(8), got[1].Sequence)
	assert.Equal(t, int64(6), got[2].Sequence)
	for _, rec := range got {
		assert.True(t, rec.Label)
	}
}

func TestRecentAnomaliesEmpty(t *testing.T) {
	lf, _ := openTestLog(t)
	got, err := lf.RecentAnomalies(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestRecentAnomaliesClampsLimit(t *testing.T) {
	lf, _ := openTestLog(t)
	ctx := context.Background()
	for i := int64(0); i < int64(MaxRecentLimit)+20; i++ {
		_, err := lf.Append(ctx, testPrediction(i, true))
		require.NoError(t, err)
	}
	got, err := lf.RecentAnomalies(ctx, 10_000)
	require.NoError(t, err)
	assert.Len(t, got, MaxRecentLimit)

	got, err = lf.RecentAnomalies(ctx, -3)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReadIdempotent(t *testing.T) {
	lf, _ := openTestLog(t)
	ctx := context.Background()
	for i := int64(1); i <= 7; i++ {
		_, err := lf.Append(ctx, testPrediction(i, true))
		require.NoError(t, err)
	}
	first, err := lf.RecentAnomalies(ctx, 5)
	require.NoError(t, err)
	second, err := lf.RecentAnomalies(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConcurrentAppends(t *testing.T) {
	lf, _ := openTestLog(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := lf.Append(ctx, testPrediction(int64(i), true))
			if err != nil {
				t.Errorf("append %d: %v", i, err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	got, err := lf.RecentAnomalies(ctx, MaxRecentLimit)
	require.NoError(t, err)
	assert.Len(t, got, n)
	// Field values intact, not interleaved.
	for _, rec := range got {
		assert.Equal(t, "station_001", rec.StationID)
		assert.Equal(t, "iforest-test-1", rec.ModelVersion)
	}
}

func TestReplayPreservesRecords(t *testing.T) {
	lf, path := openTestLog(t)
	ctx := context.Background()
	for i := int64(1); i <= 4; i++ {
		_, err := lf.Append(ctx, testPrediction(i, true))
		require.NoError(t, err)
	}
	before, err := lf.RecentAnomalies(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, lf.Close())

	reopened, err := OpenLogFile(path)
	require.NoError(t, err)
	defer reopened.Close()

	after, err := reopened.RecentAnomalies(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// New appends continue the id sequence.
	id, err := reopened.Append(ctx, testPrediction(5, false))
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestReplayDropsTornTail(t *testing.T) {
	lf, path := openTestLog(t)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		_, err := lf.Append(ctx, testPrediction(i, true))
		require.NoError(t, err)
	}
	require.NoError(t, lf.Close())

	// Simulate a crash mid-write.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":4,"timestamp":"2025-`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := OpenLogFile(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.RecentAnomalies(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	id, err := reopened.Append(ctx, testPrediction(4, true))
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)

	got, err = reopened.RecentAnomalies(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestAppendOverwritesUncommittedTail(t *testing.T) {
	// Partial bytes past the committed boundary (a failed earlier write)
	// must not glue onto the next append: the acknowledged record has to
	// survive replay with its id intact.
	lf, path := openTestLog(t)
	ctx := context.Background()
	for i := int64(1); i <= 2; i++ {
		_, err := lf.Append(ctx, testPrediction(i, true))
		require.NoError(t, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":3,"timest`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	id, err := lf.Append(ctx, testPrediction(3, true))
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	require.NoError(t, lf.Close())

	reopened, err := OpenLogFile(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.RecentAnomalies(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3, "acknowledged record must survive replay")
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(3), got[0].Sequence)

	// Ids keep advancing from the committed point, never reused.
	id, err = reopened.Append(ctx, testPrediction(4, true))
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
}

func TestAppendAfterClose(t *testing.T) {
	lf, _ := openTestLog(t)
	require.NoError(t, lf.Close())
	_, err := lf.Append(context.Background(), testPrediction(1, false))
	var uerr *UnavailableError
	assert.ErrorAs(t, err, &uerr)
}
