package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/models"
)

// clientRow is the DB-level representation of a client.
type clientRow struct {
	Seq          int64     `json:"seq"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PanNumber    string    `json:"pan_number"`
	KycStatus    bool      `json:"kyc_status"`
	Age          int       `json:"age"`
	RiskAppetite int       `json:"risk_appetite"`
	Profession   string    `json:"profession"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r *clientRow) toModel() *models.Client {
	return &models.Client{
		ID:           r.Seq,
		UserID:       r.UserID,
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		PanNumber:    r.PanNumber,
		KycStatus:    r.KycStatus,
		Age:          r.Age,
		RiskAppetite: r.RiskAppetite,
		Profession:   r.Profession,
		CreatedAt:    r.CreatedAt,
	}
}

// ClientStore implements interfaces.ClientStore using SurrealDB.
type ClientStore struct {
	db     *surrealdb.DB
	ids    *idAllocator
	logger *common.Logger
}

// NewClientStore creates a new ClientStore.
func NewClientStore(db *surrealdb.DB, ids *idAllocator, logger *common.Logger) *ClientStore {
	return &ClientStore{db: db, ids: ids, logger: logger}
}

func (s *ClientStore) CreateClient(ctx context.Context, client *models.Client) (*models.Client, error) {
	ok, err := exists(ctx, s.db, "user", client.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("client owner %d: %w", client.UserID, common.ErrNotFound)
	}

	id, err := s.ids.next(ctx, "client")
	if err != nil {
		return nil, err
	}

	row := clientRow{
		Seq:          id,
		UserID:       client.UserID,
		Name:         client.Name,
		Email:        client.Email,
		Phone:        client.Phone,
		PanNumber:    client.PanNumber,
		KycStatus:    client.KycStatus,
		Age:          client.Age,
		RiskAppetite: client.RiskAppetite,
		Profession:   client.Profession,
		CreatedAt:    client.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	if _, err := surrealdb.Query[any](ctx, s.db, "CREATE $rid CONTENT $row", map[string]any{
		"rid": surrealmodels.NewRecordID("client", id),
		"row": row,
	}); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	s.logger.Debug().Int64("client_id", id).Int64("user_id", row.UserID).Msg("Client stored")
	return row.toModel(), nil
}

func (s *ClientStore) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	rows, err := queryRows[clientRow](ctx, s.db, "SELECT * OMIT id FROM $rid", map[string]any{
		"rid": surrealmodels.NewRecordID("client", id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if len(rows) == 0 {
		return nil, notFound("client", id)
	}
	return rows[0].toModel(), nil
}

func (s *ClientStore) ListClients(ctx context.Context, userID int64) ([]*models.Client, error) {
	rows, err := queryRows[clientRow](ctx, s.db, "SELECT * OMIT id FROM client WHERE user_id = $user_id ORDER BY seq", map[string]any{
		"user_id": userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	out := make([]*models.Client, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

var _ interfaces.ClientStore = (*ClientStore)(nil)
