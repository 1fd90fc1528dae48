package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestUpsertOpportunityReportsInsert(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO opportunities`).
		WithArgs("op-1", "Robotics Internship", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0.9).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(true))

	inserted, err := st.UpsertOpportunity(context.Background(), Opportunity{
		ID: "op-1", Title: "Robotics Internship", Organization: "Example Labs", Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("UpsertOpportunity: %v", err)
	}
	if !inserted {
		t.Fatal("expected insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertOpportunityGeneratesID(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO opportunities`).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(false))

	inserted, err := st.UpsertOpportunity(context.Background(), Opportunity{Title: "No ID"})
	if err != nil {
		t.Fatalf("UpsertOpportunity: %v", err)
	}
	if inserted {
		t.Fatal("expected update path")
	}
}

func opportunityRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "title", "organization", "category", "opportunity_type",
		"url", "deadline", "summary", "location_type", "confidence", "created_at", "updated_at",
	})
	now := time.Now()
	for _, id := range ids {
		rows.AddRow(id, "Title "+id, "Org", "internship", "paid", "https://"+id, nil, "summary", "remote", 0.8, now, now)
	}
	return rows
}

func TestListOpportunitiesWithFilters(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, title, .+ FROM opportunities WHERE 1=1 AND \(title ILIKE \$1 OR organization ILIKE \$1 OR summary ILIKE \$1\) AND category = \$2 ORDER BY updated_at DESC LIMIT \$3`).
		WithArgs("%robotics%", "internship", 10).
		WillReturnRows(opportunityRows("op-1", "op-2"))

	ops, err := st.ListOpportunities(context.Background(), "robotics", "internship", 10)
	if err != nil {
		t.Fatalf("ListOpportunities: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("got %d rows", len(ops))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListOpportunitiesClampsLimit(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, title, .+ FROM opportunities WHERE 1=1 ORDER BY updated_at DESC LIMIT \$1`).
		WithArgs(25).
		WillReturnRows(opportunityRows())

	if _, err := st.ListOpportunities(context.Background(), "", "", 0); err != nil {
		t.Fatalf("ListOpportunities: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOpportunitiesByIDsPreservesOrder(t *testing.T) {
	st, mock := newMockStore(t)

	// Rows come back in storage order; the result must follow request order.
	mock.ExpectQuery(`SELECT id, title, .+ FROM opportunities WHERE id = ANY\(\$1\)`).
		WillReturnRows(opportunityRows("op-1", "op-2"))

	ops, err := st.GetOpportunitiesByIDs(context.Background(), []string{"op-2", "op-1", "missing"})
	if err != nil {
		t.Fatalf("GetOpportunitiesByIDs: %v", err)
	}
	if len(ops) != 2 || ops[0].ID != "op-2" || ops[1].ID != "op-1" {
		t.Fatalf("order not preserved: %+v", ops)
	}
}

func TestGetOpportunitiesByIDsEmptyInput(t *testing.T) {
	st, _ := newMockStore(t)
	ops, err := st.GetOpportunitiesByIDs(context.Background(), nil)
	if err != nil || ops != nil {
		t.Fatalf("got %v, %v", ops, err)
	}
}

func TestCreateBookmarkIgnoresDuplicates(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO bookmarks`).
		WithArgs("user-1", "op-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.CreateBookmark(context.Background(), "user-1", "op-1"); err != nil {
		t.Fatalf("CreateBookmark: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
