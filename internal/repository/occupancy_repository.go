package repository

import (
	"context"
	"database/sql"
	"errors"
)

// OccupancyRepo provides access to the flightseatoccupancy table, the
// durable record of sold seats.  A row with isoccupied = TRUE is final;
// the seat lock service only ever sets the flag.
type OccupancyRepo struct {
	db *sql.DB
}

// NewOccupancyRepo returns a new OccupancyRepo bound to the provided database.
func NewOccupancyRepo(db *sql.DB) *OccupancyRepo { return &OccupancyRepo{db: db} }

// IsOccupied reports whether the seat is sold.  A missing row means the
// seat was never sold.
func (r *OccupancyRepo) IsOccupied(ctx context.Context, flightID, seatID string) (bool, error) {
	var occupied bool
	err := r.db.QueryRowContext(ctx,
		`SELECT isoccupied FROM flightseatoccupancy WHERE flightid = ? AND seatid = ?`,
		flightID, seatID,
	).Scan(&occupied)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return occupied, nil
}

// MarkOccupied upserts the seat as sold.  Repeating the call is harmless
// and never overwrites the booking that first claimed the seat.
func (r *OccupancyRepo) MarkOccupied(ctx context.Context, flightID, seatID string, bookingID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO flightseatoccupancy (flightid, seatid, isoccupied, bookingid)
		 VALUES (?, ?, TRUE, NULLIF(?, 0))
		 ON DUPLICATE KEY UPDATE isoccupied = TRUE, bookingid = COALESCE(bookingid, NULLIF(?, 0))`,
		flightID, seatID, bookingID, bookingID,
	)
	return err
}

// OccupiedSeats lists the sold seats of a flight.
func (r *OccupancyRepo) OccupiedSeats(ctx context.Context, flightID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seatid FROM flightseatoccupancy WHERE flightid = ? AND isoccupied = TRUE ORDER BY seatid`,
		flightID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seats := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}
