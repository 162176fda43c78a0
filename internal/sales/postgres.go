package sales

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// PostgresMapper отображает Sales на таблицу sales
type PostgresMapper struct{}

// Columns колонки таблицы sales кроме id
func (PostgresMapper) Columns() []string {
	return []string{"description", "state", "date"}
}

// Values значения в порядке Columns; нулевая дата пишется как NULL
func (PostgresMapper) Values(s Sales) ([]any, error) {
	date := pgtype.Date{}
	if !s.Date.IsZero() {
		date = pgtype.Date{Time: s.Date.Time, Valid: true}
	}
	return []any{s.Description, string(s.State), date}, nil
}

// Scan читает строку (id, description, state, date)
func (PostgresMapper) Scan(row pgx.Row) (Sales, error) {
	var (
		s     Sales
		state string
		date  pgtype.Date
	)
	if err := row.Scan(&s.ID, &s.Description, &state, &date); err != nil {
		return Sales{}, err
	}
	s.State = State(state)
	if date.Valid {
		s.Date = DateOf(date.Time)
	}
	return s, nil
}
