package pgshipments

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "cargoledger_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/cargoledger_test?sslmode=disable"

	// порт слушается раньше, чем postgres принимает соединения
	var st *Storage
	deadline := time.Now().Add(30 * time.Second)
	for {
		st, err = New(dsn)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func encode(t *testing.T, rec *models.ShipmentRecord) Row {
	t.Helper()
	r, err := EncodeRecord(rec)
	require.NoError(t, err)
	return r
}

func TestPGShipments_RepoFlow(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	v, dirty, err := st.MigrationVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), v)

	a := models.NewShipmentRecord(models.PendingID("temp_1"))
	a.Set(models.FieldDate, models.String("240101"))
	a.Set(models.FieldDriverName, models.String("Kim"))
	a.SessionID = "sess_1"
	b := models.NewShipmentRecord(models.PendingID("temp_2"))
	b.Set(models.FieldDate, models.String("240102"))
	b.Billing.Freight = models.Number(500)

	var ids []uint64
	err = st.WithinTx(ctx, func(tx Tx) error {
		var err error
		ids, err = tx.InsertRows(ctx, []Row{encode(t, a), encode(t, b)})
		return err
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	rows, err := st.ListRows(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	got, err := DecodeRow(rows[1])
	require.NoError(t, err)
	require.Equal(t, "500", got.Billing.Freight.String())

	// update + delete в одной транзакции
	err = st.WithinTx(ctx, func(tx Tx) error {
		stored, err := tx.ListIDs(ctx)
		if err != nil {
			return err
		}
		require.ElementsMatch(t, ids, stored)

		upd := a.Clone()
		upd.ID = models.PersistedID(ids[0])
		upd.Set(models.FieldDriverName, models.String("Lee"))
		if err := tx.UpdateRows(ctx, []Row{encode(t, upd)}); err != nil {
			return err
		}
		n, err := tx.DeleteRows(ctx, []uint64{ids[1]})
		require.Equal(t, int64(1), n)
		return err
	})
	require.NoError(t, err)

	row, err := st.GetRow(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, "Lee", row.DriverName)

	// контент и замок пишутся раздельно
	err = st.WithinTx(ctx, func(tx Tx) error {
		if err := tx.UpdateLock(ctx, ids[0], true, "march invoice", "hash"); err != nil {
			return err
		}
		forged := a.Clone()
		forged.ID = models.PersistedID(ids[0])
		forged.IsInvoiceLocked = false
		return tx.UpdateRows(ctx, []Row{encode(t, forged)})
	})
	require.NoError(t, err)

	row, err = st.GetRow(ctx, ids[0])
	require.NoError(t, err)
	require.True(t, row.IsInvoiceLocked)
	require.Equal(t, "march invoice", row.InvoiceMemo)
	require.Equal(t, "Kim", row.DriverName)

	require.NoError(t, st.WithinTx(ctx, func(tx Tx) error {
		locked, err := tx.ListLocked(ctx)
		require.Equal(t, []uint64{ids[0]}, locked)
		return err
	}))
	_, err = st.GetRow(ctx, ids[1])
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestPGShipments_RollbackOnError(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertRows(ctx, []Row{encode(t, models.NewShipmentRecord(models.PendingID("x")))}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := st.ListRows(ctx, "")
	require.NoError(t, err)
	require.Empty(t, rows)

	// обновление несуществующей записи откатывает всю транзакцию
	err = st.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.InsertRows(ctx, []Row{encode(t, models.NewShipmentRecord(models.PendingID("y")))}); err != nil {
			return err
		}
		ghost := models.NewShipmentRecord(models.PersistedID(999999))
		return tx.UpdateRows(ctx, []Row{encode(t, ghost)})
	})
	require.ErrorIs(t, err, models.ErrNotFound)
	rows, err = st.ListRows(ctx, "")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestPGShipments_Sessions(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, st.CreateSession(ctx, models.SheetSession{
		SessionID: "sess_a", UserID: "u1", SheetTitle: "Jan", Headers: []string{"일시", "기사명"},
	}))

	rec := models.NewShipmentRecord(models.PendingID("sheet_1"))
	rec.SessionID = "sess_a"
	require.NoError(t, st.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.InsertRows(ctx, []Row{encode(t, rec), encode(t, rec)})
		return err
	}))

	list, err := st.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].ItemCount)
	require.Equal(t, []string{"일시", "기사명"}, list[0].Headers)

	_, err = st.GetSession(ctx, "u2", "sess_a")
	require.ErrorIs(t, err, models.ErrNotFound)

	rows, err := st.ListRows(ctx, "sess_a")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var deleted int64
	require.NoError(t, st.WithinTx(ctx, func(tx Tx) error {
		n, err := tx.DeleteSession(ctx, "u2", "sess_a")
		require.Equal(t, int64(-1), n)
		if err != nil {
			return err
		}
		deleted, err = tx.DeleteSession(ctx, "u1", "sess_a")
		return err
	}))
	require.Equal(t, int64(2), deleted)

	list, err = st.ListSessions(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, list)
}
