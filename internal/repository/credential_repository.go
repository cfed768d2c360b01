package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/recomplejos/court-booking/internal/crypto"
	"github.com/recomplejos/court-booking/internal/model"
)

// ErrCredentialNotFound is returned when a facility has no stored
// gateway credential.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialRepo provides data access to the operator_credentials
// table.  Token columns are sealed with AES-GCM before they touch the
// database and opened on the way out.
type CredentialRepo struct {
	db     *sql.DB
	sealer *crypto.Sealer
}

// NewCredentialRepo returns a new CredentialRepo bound to the provided
// database and sealer.
func NewCredentialRepo(db *sql.DB, sealer *crypto.Sealer) *CredentialRepo {
	return &CredentialRepo{db: db, sealer: sealer}
}

// GetByFacility loads the credential for one facility.  Returns
// ErrCredentialNotFound when the facility never connected.
func (r *CredentialRepo) GetByFacility(ctx context.Context, facilityID string) (*model.OperatorCredential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT facility_id, access_token, refresh_token, expires_at, refreshed_at
		 FROM operator_credentials WHERE facility_id = ?`, facilityID)
	cred, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, ErrCredentialNotFound
	}
	return cred, err
}

// Upsert stores a credential pair, replacing any previous pair for the
// facility.
func (r *CredentialRepo) Upsert(ctx context.Context, cred *model.OperatorCredential) error {
	access, err := r.sealer.Seal(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.sealer.Seal(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	var expires interface{}
	if cred.ExpiresAt != nil {
		expires = cred.ExpiresAt.UTC()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO operator_credentials (facility_id, access_token, refresh_token, expires_at, refreshed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   access_token = VALUES(access_token),
		   refresh_token = VALUES(refresh_token),
		   expires_at = VALUES(expires_at),
		   refreshed_at = VALUES(refreshed_at)`,
		cred.FacilityID, access, refresh, expires, cred.RefreshedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// ListAll returns every stored credential.  Used by the webhook
// reconciler when it has to probe tokens to verify a payment whose
// owning facility is not yet known.
func (r *CredentialRepo) ListAll(ctx context.Context) ([]*model.OperatorCredential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT facility_id, access_token, refresh_token, expires_at, refreshed_at
		 FROM operator_credentials ORDER BY refreshed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()
	var creds []*model.OperatorCredential
	for rows.Next() {
		cred, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return creds, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *CredentialRepo) scan(row scanner) (*model.OperatorCredential, error) {
	var (
		cred    model.OperatorCredential
		access  string
		refresh string
		expires sql.NullTime
	)
	if err := row.Scan(&cred.FacilityID, &access, &refresh, &expires, &cred.RefreshedAt); err != nil {
		return nil, err
	}
	var err error
	if cred.AccessToken, err = r.sealer.Open(access); err != nil {
		return nil, fmt.Errorf("open access token for %q: %w", cred.FacilityID, err)
	}
	if cred.RefreshToken, err = r.sealer.Open(refresh); err != nil {
		return nil, fmt.Errorf("open refresh token for %q: %w", cred.FacilityID, err)
	}
	if expires.Valid {
		t := expires.Time
		cred.ExpiresAt = &t
	}
	return &cred, nil
}
