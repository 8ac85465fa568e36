package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

const customerColumns = `id, email, first_name, last_name, marketing_opt_in, created_at, updated_at, version`

func GetCustomerByEmail(ctx context.Context, db *sql.DB, email string) (*models.Customer, error) {
	customer := &models.Customer{}

	err := db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))).Scan(
		&customer.ID,
		&customer.Email,
		&customer.FirstName,
		&customer.LastName,
		&customer.Marketing,
		&customer.CreatedAt,
		&customer.UpdatedAt,
		&customer.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return customer, nil
}

// UpsertCustomer creates or updates the profile keyed by email.
func UpsertCustomer(ctx context.Context, db *sql.DB, email, firstName, lastName string, marketing bool) (*models.Customer, error) {
	customer := &models.Customer{}

	query := `
		INSERT INTO customers (email, first_name, last_name, marketing_opt_in, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		ON CONFLICT (email) DO UPDATE
		SET first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    marketing_opt_in = EXCLUDED.marketing_opt_in,
		    updated_at = NOW(),
		    version = customers.version + 1
		RETURNING ` + customerColumns

	err := db.QueryRowContext(ctx, query,
		strings.ToLower(strings.TrimSpace(email)), firstName, lastName, marketing).Scan(
		&customer.ID,
		&customer.Email,
		&customer.FirstName,
		&customer.LastName,
		&customer.Marketing,
		&customer.CreatedAt,
		&customer.UpdatedAt,
		&customer.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}

	return customer, nil
}

type AddressParams struct {
	Line1    string
	Line2    string
	City     string
	Postcode string
	Country  string
}

// SetDefaultAddress replaces the customer's default shipping address.
func SetDefaultAddress(ctx context.Context, db *sql.DB, customerID int64, p AddressParams) (*models.Address, error) {
	address := &models.Address{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE addresses SET is_default = FALSE, updated_at = NOW()
			 WHERE customer_id = $1 AND is_default`, customerID)
		if err != nil {
			return fmt.Errorf("clear default address: %w", err)
		}

		query := `
			INSERT INTO addresses (customer_id, line1, line2, city, postcode, country, is_default, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
			RETURNING id, customer_id, line1, line2, city, postcode, country, is_default, created_at, updated_at`

		err = tx.QueryRowContext(ctx, query,
			customerID, p.Line1, p.Line2, p.City, p.Postcode, p.Country).Scan(
			&address.ID,
			&address.CustomerID,
			&address.Line1,
			&address.Line2,
			&address.City,
			&address.Postcode,
			&address.Country,
			&address.IsDefault,
			&address.CreatedAt,
			&address.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert address: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return address, nil
}
