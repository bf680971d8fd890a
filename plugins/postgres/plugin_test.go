package postgres

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"github.com/BDNK1/agentflow/runtime"
)

const searchSQL = `SELECT id, 1 - (embedding <=> $1::vector) AS score, metadata FROM "embeddings" WHERE tenant_id = $2 AND namespace = $3`

type PostgresPluginTestSuite struct {
	suite.Suite
	mock   sqlmock.Sqlmock
	plugin *PostgresPlugin
}

func TestPostgresPluginSuite(t *testing.T) {
	suite.Run(t, new(PostgresPluginTestSuite))
}

func (suite *PostgresPluginTestSuite) SetupTest() {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	suite.Require().NoError(err)
	suite.mock = mock
	suite.plugin = &PostgresPlugin{
		Config: Config{Table: "embeddings"},
		Logger: slog.Default(),
		db:     db,
	}
}

func (suite *PostgresPluginTestSuite) TearDownTest() {
	suite.NoError(suite.mock.ExpectationsWereMet())
}

func (suite *PostgresPluginTestSuite) TestSearch() {
	rows := sqlmock.NewRows([]string{"id", "score", "metadata"}).
		AddRow("doc-1", 0.92, []byte(`{"title":"Refunds"}`)).
		AddRow("doc-2", 0.71, nil)
	suite.mock.ExpectQuery(searchSQL+" ORDER BY embedding <=> $1::vector LIMIT $4").
		WithArgs("[0.1,0.25,-1]", "tenant-a", "kb", 3).
		WillReturnRows(rows)

	matches, err := suite.plugin.Search(context.Background(), runtime.VectorQuery{
		TenantID:  "tenant-a",
		Namespace: "kb",
		Vector:    []float64{0.1, 0.25, -1},
		TopK:      3,
	})
	suite.Require().NoError(err)
	suite.Equal([]runtime.VectorMatch{
		{ID: "doc-1", Score: 0.92, Metadata: map[string]any{"title": "Refunds"}},
		{ID: "doc-2", Score: 0.71},
	}, matches)
}

func (suite *PostgresPluginTestSuite) TestSearchWithFilters() {
	suite.mock.ExpectQuery(searchSQL+" AND metadata @> $4::jsonb ORDER BY embedding <=> $1::vector LIMIT $5").
		WithArgs("[1]", "tenant-a", "kb", `{"lang":"en"}`, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "score", "metadata"}))

	matches, err := suite.plugin.Search(context.Background(), runtime.VectorQuery{
		TenantID:  "tenant-a",
		Namespace: "kb",
		Vector:    []float64{1},
		TopK:      5,
		Filters:   map[string]any{"lang": "en"},
	})
	suite.Require().NoError(err)
	suite.Empty(matches)
}

func (suite *PostgresPluginTestSuite) TestSearchErrors() {
	tests := []struct {
		name string
		err  error
		kind runtime.ServiceErrorKind
	}{
		{"connection failure", &pq.Error{Code: "08006"}, runtime.ServiceErrorNetwork},
		{"statement timeout", &pq.Error{Code: "57014"}, runtime.ServiceErrorTimeout},
		{"undefined table", &pq.Error{Code: "42P01"}, runtime.ServiceErrorInvalidRequest},
		{"deadline", context.DeadlineExceeded, runtime.ServiceErrorTimeout},
		{"other", errors.New("boom"), runtime.ServiceErrorProvider},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.mock.ExpectQuery(searchSQL + " ORDER BY embedding <=> $1::vector LIMIT $4").
				WillReturnError(tt.err)

			_, err := suite.plugin.Search(context.Background(), runtime.VectorQuery{
				TenantID: "tenant-a", Namespace: "kb", Vector: []float64{1}, TopK: 1,
			})
			var se *runtime.ServiceError
			suite.Require().ErrorAs(err, &se)
			suite.Equal(tt.kind, se.Kind)
		})
	}
}

func (suite *PostgresPluginTestSuite) TestSearchRejectsEmptyVector() {
	_, err := suite.plugin.Search(context.Background(), runtime.VectorQuery{TenantID: "tenant-a", Namespace: "kb"})
	var se *runtime.ServiceError
	suite.Require().ErrorAs(err, &se)
	suite.Equal(runtime.ServiceErrorInvalidRequest, se.Kind)
}

const upsertSQL = `INSERT INTO "embeddings" (id, tenant_id, namespace, embedding, metadata) VALUES ($1, $2, $3, $4::vector, $5::jsonb)` +
	` ON CONFLICT (tenant_id, namespace, id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`

func tenantContext(tenantID string) context.Context {
	return runtime.NewExecution(context.Background(), nil, runtime.Scope{TenantID: tenantID, UserID: "u-1"}, nil)
}

func (suite *PostgresPluginTestSuite) TestUpsertTask() {
	suite.mock.ExpectExec(upsertSQL).
		WithArgs("doc-9", "tenant-a", "kb", "[0.5,1]", `{"title":"Returns"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	out, err := suite.plugin.Upsert(tenantContext("tenant-a"), UpsertInput{
		Namespace: "kb",
		ID:        "doc-9",
		Embedding: []float64{0.5, 1},
		Metadata:  map[string]any{"title": "Returns"},
	})
	suite.Require().NoError(err)
	suite.Equal("doc-9", out.ID)
}

func (suite *PostgresPluginTestSuite) TestDeleteTask() {
	suite.mock.ExpectExec(`DELETE FROM "embeddings" WHERE tenant_id = $1 AND namespace = $2 AND id = ANY($3)`).
		WithArgs("tenant-a", "kb", pq.Array([]string{"doc-1", "doc-2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	out, err := suite.plugin.Delete(tenantContext("tenant-a"), DeleteInput{Namespace: "kb", IDs: []string{"doc-1", "doc-2"}})
	suite.Require().NoError(err)
	suite.Equal(int64(2), out.Deleted)
}

func (suite *PostgresPluginTestSuite) TestWritesNeedTenant() {
	_, err := suite.plugin.Upsert(context.Background(), UpsertInput{Namespace: "kb", ID: "x", Embedding: []float64{1}})
	var se *runtime.ServiceError
	suite.Require().ErrorAs(err, &se)
	suite.Equal(runtime.ServiceErrorInvalidRequest, se.Kind)

	_, err = suite.plugin.Delete(context.Background(), DeleteInput{Namespace: "kb", IDs: []string{"x"}})
	suite.Require().ErrorAs(err, &se)
}

// Tool parameters cannot redirect a write to another tenant: the tenant
// always comes from the run.
func (suite *PostgresPluginTestSuite) TestUpsertTaskIgnoresTenantParameter() {
	container := runtime.NewContainer()
	suite.Require().NoError(container.RegisterPlugin("postgres", suite.plugin))
	task := container.GetTask("postgres.upsert")
	suite.Require().NotNil(task)

	suite.mock.ExpectExec(upsertSQL).
		WithArgs("doc-1", "tenant-a", "kb", "[1]", "{}").
		WillReturnResult(sqlmock.NewResult(0, 1))

	out, err := task.Execute(tenantContext("tenant-a"), map[string]any{
		"tenant_id": "tenant-b",
		"namespace": "kb",
		"id":        "doc-1",
		"embedding": []any{1.0},
	})
	suite.Require().NoError(err)
	suite.Equal("doc-1", out["id"])
	suite.Nil(container.GetTask("postgres.get"))
	suite.Nil(container.GetTask("postgres.exec"))
}
