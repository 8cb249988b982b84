package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupancyIsOccupied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewOccupancyRepo(db)
	q := regexp.QuoteMeta(`SELECT isoccupied FROM flightseatoccupancy WHERE flightid = ? AND seatid = ?`)

	mock.ExpectQuery(q).WithArgs("100", "3A").WillReturnRows(sqlmock.NewRows([]string{"isoccupied"}).AddRow(true))
	mock.ExpectQuery(q).WithArgs("100", "3B").WillReturnRows(sqlmock.NewRows([]string{"isoccupied"}))
	mock.ExpectQuery(q).WithArgs("100", "3C").WillReturnError(errors.New("bad connection"))

	occupied, err := repo.IsOccupied(context.Background(), "100", "3A")
	require.NoError(t, err)
	assert.True(t, occupied)

	occupied, err = repo.IsOccupied(context.Background(), "100", "3B")
	require.NoError(t, err)
	assert.False(t, occupied)

	_, err = repo.IsOccupied(context.Background(), "100", "3C")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupancyMarkOccupied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO flightseatoccupancy .* ON DUPLICATE KEY UPDATE`).
		WithArgs("100", "3A", int64(42), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewOccupancyRepo(db).MarkOccupied(context.Background(), "100", "3A", 42))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupiedSeats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT seatid FROM flightseatoccupancy`).WithArgs("100").
		WillReturnRows(sqlmock.NewRows([]string{"seatid"}).AddRow("1A").AddRow("3C"))

	seats, err := NewOccupancyRepo(db).OccupiedSeats(context.Background(), "100")
	require.NoError(t, err)
	assert.Equal(t, []string{"1A", "3C"}, seats)
}

func TestBookingTransitions(t *testing.T) {
	update := regexp.QuoteMeta(`UPDATE bookings SET bookingstatus = ? WHERE bookingid = ? AND bookingstatus = ?`)
	status := regexp.QuoteMeta(`SELECT bookingstatus FROM bookings WHERE bookingid = ?`)

	t.Run("pending to cancelled", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectExec(update).WithArgs(BookingCancelled, int64(7), BookingPending).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, NewBookingRepo(db).CancelBooking(context.Background(), 7))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already confirmed is idempotent", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectExec(update).WithArgs(BookingConfirmed, int64(7), BookingPending).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(status).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"bookingstatus"}).AddRow(BookingConfirmed))

		require.NoError(t, NewBookingRepo(db).ConfirmBooking(context.Background(), 7))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cancel after confirm conflicts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectExec(update).WithArgs(BookingCancelled, int64(7), BookingPending).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(status).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"bookingstatus"}).AddRow(BookingConfirmed))

		err = NewBookingRepo(db).CancelBooking(context.Background(), 7)
		require.ErrorIs(t, err, ErrConflict)
	})

	t.Run("missing booking", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectExec(update).WithArgs(BookingConfirmed, int64(9), BookingPending).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(status).WithArgs(int64(9)).WillReturnRows(sqlmock.NewRows([]string{"bookingstatus"}))

		err = NewBookingRepo(db).ConfirmBooking(context.Background(), 9)
		require.ErrorIs(t, err, ErrNotFound)
	})
}
