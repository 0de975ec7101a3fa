package postgres_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
)

// rowStub implements pgx.Row with a canned scan function.
type rowStub struct {
	scan func(dest ...any) error
}

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

func errRow(err error) rowStub {
	return rowStub{scan: func(...any) error { return err }}
}

func statusRow(status domain.JobStatus) rowStub {
	return rowStub{scan: func(dest ...any) error {
		*(dest[0].(*domain.JobStatus)) = status
		return nil
	}}
}

// jobRow fills a full jobColumns scan. payloads is keyed by column position
// within the payload block (0 extractor .. 4 summary).
func jobRow(id string, status domain.JobStatus, payloads map[int][]byte) rowStub {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = "owner-1"
		*(dest[2].(*domain.JobKind)) = domain.KindCVParse
		*(dest[3].(*domain.JobStatus)) = status
		*(dest[4].(*int)) = 42
		*(dest[5].(*[]byte)) = []byte(`{"cv_text":"cv body"}`)
		for i := 0; i < 5; i++ {
			if b, ok := payloads[i]; ok {
				*(dest[6+i].(*[]byte)) = b
			}
		}
		*(dest[11].(*string)) = ""
		*(dest[12].(*time.Time)) = now
		*(dest[15].(*time.Time)) = now
		return nil
	}}
}

// poolStub scripts Exec/QueryRow/Query responses and records every call.
type poolStub struct {
	execTag pgconn.CommandTag
	execErr error
	row     pgx.Row
	rows    pgx.Rows
	rowsErr error

	execSQL  []string
	execArgs [][]any
	querySQL []string
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	p.execArgs = append(p.execArgs, args)
	return p.execTag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	p.querySQL = append(p.querySQL, sql)
	if p.row != nil {
		return p.row
	}
	return errRow(pgx.ErrNoRows)
}

func (p *poolStub) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	p.querySQL = append(p.querySQL, sql)
	return p.rows, p.rowsErr
}

// rowsStub implements pgx.Rows over a fixed list of row stubs.
type rowsStub struct {
	rows []rowStub
	idx  int
	err  error
}

func (r *rowsStub) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *rowsStub) Scan(dest ...any) error { return r.rows[r.idx-1].Scan(dest...) }
func (r *rowsStub) Close()                 {}
func (r *rowsStub) Err() error             { return r.err }

func (r *rowsStub) CommandTag() pgconn.CommandTag             { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Values() ([]any, error)                    { return nil, nil }
func (r *rowsStub) RawValues() [][]byte                       { return nil }
func (r *rowsStub) Conn() *pgx.Conn                           { return nil }
