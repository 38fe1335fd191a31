package visited

import (
	"context"
	"regexp"
	"testing"
	"time"

	"factmap/internal/geo"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(lat, lng float64, min int) geo.VisitedSample {
	return geo.VisitedSample{Lat: lat, Lng: lng, Timestamp: t0.Add(time.Duration(min) * time.Minute)}
}

func TestTrackDedupeAgainstLast(t *testing.T) {
	tr := NewTrack()
	added := tr.Append(
		at(10, 20, 0),
		at(10.0005, 20.0005, 1), // 两轴均在阈值内
		at(10.0005, 20.002, 2),  // 经度超出阈值
		at(10.0005, 20.002, 3),
	)
	assert.Len(t, added, 2)
	// 早于已有末条
	assert.Empty(t, tr.Append(at(11, 21, 1)))
	assert.Equal(t, 2, tr.Len())
	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, 20.002, last.Lng)
}

func TestTrackSkipsInvalid(t *testing.T) {
	tr := NewTrack(at(100, 0, 0), at(1, 1, 1))
	assert.Equal(t, 1, tr.Len())
}

func TestTrackWithin(t *testing.T) {
	tr := NewTrack(at(1, 1, 0), at(5, 5, 1), at(2, 2, 2), at(-3, 40, 3))
	got := tr.Within(geo.NewBounds(geo.LatLng{Lat: 0, Lng: 0}, geo.LatLng{Lat: 3, Lng: 3}))
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Lat)
	assert.Equal(t, 2.0, got[1].Lat)

	got = tr.Within(geo.PointBounds(geo.LatLng{Lat: 5, Lng: 5}))
	assert.Len(t, got, 1)
}

func TestMerge(t *testing.T) {
	local := []geo.VisitedSample{at(1, 1, 0), at(3, 3, 20)}
	remote := []geo.VisitedSample{at(2, 2, 10), at(2.0001, 2.0001, 11), at(4, 4, 30)}
	got := Merge(local, remote)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}
	assert.Equal(t, []float64{1, 2, 3, 4}, []float64{got[0].Lat, got[1].Lat, got[2].Lat, got[3].Lat})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Append(ctx, []geo.VisitedSample{at(1, 1, 0), at(1, 1, 1)}))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAppendSortsBatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Append(ctx, []geo.VisitedSample{at(10, 10, 60), at(20, 20, 0)}))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 20.0, got[0].Lat)
	assert.Equal(t, 10.0, got[1].Lat)

	tr := NewTrack(at(1, 1, 30))
	added := tr.Append(at(3, 3, 50), at(2, 2, 40), at(0, 0, 10))
	require.Len(t, added, 2)
	assert.Equal(t, 2.0, added[0].Lat)
	assert.Equal(t, 3.0, added[1].Lat)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(rc, "")

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Append(ctx, []geo.VisitedSample{at(1, 1, 0), at(2, 2, 1)}))
	// 与已存末条重复
	require.NoError(t, s.Append(ctx, []geo.VisitedSample{at(2.0002, 2.0002, 2), at(3, 3, 3)}))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 3.0, got[2].Lat)
	assert.True(t, got[0].Timestamp.Equal(t0))

	list, err := mr.List(DefaultRedisKey)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestPostgresStoreAppend(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := AttachDB(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT lat, lng, ts FROM _visited_samples ORDER BY id DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"lat", "lng", "ts"}).AddRow(1.0, 1.0, t0))
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO _visited_samples(lat, lng, ts) VALUES($1, $2, $3)"))
	prep.ExpectExec().WithArgs(5.0, 5.0, t0.Add(2*time.Minute)).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Append(ctx, []geo.VisitedSample{at(1.0001, 1.0001, 1), at(5, 5, 2)}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLoad(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT lat, lng, ts FROM _visited_samples ORDER BY id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"lat", "lng", "ts"}).
			AddRow(1.0, 2.0, t0).
			AddRow(3.0, 4.0, t0.Add(time.Minute)))

	got, err := AttachDB(db).Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 4.0, got[1].Lng)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreNothingNew(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT lat, lng, ts FROM _visited_samples").
		WillReturnRows(sqlmock.NewRows([]string{"lat", "lng", "ts"}))
	require.NoError(t, AttachDB(db).Append(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIndexKeepsEverySample(t *testing.T) {
	idx := NewIndex([]geo.VisitedSample{at(1, 1, 5), at(1.0001, 1.0001, 1), at(1, 1, 3)})
	got := idx.Samples()
	require.Len(t, got, 3)
	assert.Equal(t, 1.0001, got[0].Lat)
}
