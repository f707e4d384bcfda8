//go:build integration

package implementation

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/health"
	shmmodels "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models"
	interfaces "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Repository/Interfaces"
)

// startPostgres runs a throwaway PostgreSQL with the application schema.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shm",
				"POSTGRES_PASSWORD": "shm",
				"POSTGRES_DB":       "smart_home",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=shm password=shm dbname=smart_home sslmode=disable", host, port.Port())
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, health.NewDatabaseManager(db).CreateTables(ctx))
	return db
}

func TestPostgresRepositories(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	users := NewPostgresUserRepository(db)
	rooms := NewPostgresRoomRepository(db)
	devices := NewPostgresDeviceRepository(db)
	usages := NewPostgresDeviceUsageRepository(db)
	query := NewPostgresQueryRepository(db)
	analytics := NewPostgresAnalyticsRepository(db)

	t.Run("upsert keeps the sequence ahead", func(t *testing.T) {
		room, err := rooms.Upsert(ctx, 42, shmmodels.RoomCreate{Name: "Kitchen"})
		require.NoError(t, err)
		assert.Equal(t, int64(42), room.ID)

		next, err := rooms.Create(ctx, shmmodels.RoomCreate{Name: "Bedroom"})
		require.NoError(t, err)
		assert.Equal(t, int64(43), next.ID)

		renamed, err := rooms.Upsert(ctx, 42, shmmodels.RoomCreate{Name: "Kitchen 2"})
		require.NoError(t, err)
		assert.Equal(t, "Kitchen 2", renamed.Name)
	})

	t.Run("missing rows and references", func(t *testing.T) {
		_, err := users.Get(ctx, 999)
		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.ErrorIs(t, devices.Delete(ctx, 999), sql.ErrNoRows)

		missing := int64(999)
		_, err = devices.Create(ctx, shmmodels.DeviceCreate{Name: "Lamp", RoomID: &missing})
		assert.ErrorIs(t, err, interfaces.ErrInvalidReference)
	})

	t.Run("overlap report", func(t *testing.T) {
		roomID := int64(42)
		user, err := users.Create(ctx, shmmodels.UserCreate{Name: "Alice"})
		require.NoError(t, err)
		lamp, err := devices.Create(ctx, shmmodels.DeviceCreate{Name: "Lamp", RoomID: &roomID})
		require.NoError(t, err)
		tv, err := devices.Create(ctx, shmmodels.DeviceCreate{Name: "TV", RoomID: &roomID})
		require.NoError(t, err)

		start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
		end1 := start.Add(time.Hour)
		end2 := start.Add(90 * time.Minute)
		for _, in := range []shmmodels.DeviceUsageCreate{
			{UserID: user.ID, DeviceID: lamp.ID, StartTime: start, EndTime: &end1},
			{UserID: user.ID, DeviceID: tv.ID, StartTime: start.Add(30 * time.Minute), EndTime: &end2},
		} {
			_, err := usages.Create(ctx, in)
			require.NoError(t, err)
		}

		// A reversed interval written around the API must not reduce the total.
		_, err = db.ExecContext(ctx,
			`INSERT INTO device_usages (user_id, device_id, start_time, end_time) VALUES ($1, $2, $3, $4)`,
			user.ID, tv.ID, start.Add(40*time.Minute), start.Add(20*time.Minute))
		require.NoError(t, err)

		overlaps, err := analytics.DeviceOverlaps(ctx, time.Now(), 10)
		require.NoError(t, err)
		require.Len(t, overlaps, 1)
		assert.Equal(t, lamp.ID, overlaps[0].DeviceA)
		assert.Equal(t, tv.ID, overlaps[0].DeviceB)
		assert.InDelta(t, 30.0, overlaps[0].TotalMinutes, 0.001)

		names, err := analytics.DeviceNames(ctx, []int64{lamp.ID, tv.ID})
		require.NoError(t, err)
		assert.Equal(t, map[int64]string{lamp.ID: "Lamp", tv.ID: "TV"}, names)
	})

	t.Run("select runs read only", func(t *testing.T) {
		rs, err := query.Select(ctx, "SELECT id, name FROM rooms ORDER BY id")
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, rs.Columns)
		assert.Len(t, rs.Rows, 2)

		_, err = query.Select(ctx, "DELETE FROM rooms")
		assert.Error(t, err)

		schema, err := query.Schema(ctx)
		require.NoError(t, err)
		tables := make([]string, len(schema))
		for i, s := range schema {
			tables[i] = s.Name
		}
		assert.Subset(t, tables, []string{"users", "rooms", "devices", "device_usages", "security_events", "feedbacks"})
	})
}
