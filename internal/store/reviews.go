package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

// CreateReview inserts a review pending moderation; it only appears in
// listings once approved.
func CreateReview(ctx context.Context, db *sql.DB, productID int64, customerName string, rating int, title, comment string) (*models.Review, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check product exists: %w", err)
	}
	if !exists {
		return nil, database.ErrProductNotFound
	}

	review := &models.Review{}
	query := `
		INSERT INTO product_reviews (product_id, customer_name, rating, title, comment, approved, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
		RETURNING id, product_id, customer_name, rating, title, comment, approved, created_at`

	err = db.QueryRowContext(ctx, query, productID, customerName, rating, title, comment).Scan(
		&review.ID,
		&review.ProductID,
		&review.CustomerName,
		&review.Rating,
		&review.Title,
		&review.Comment,
		&review.Approved,
		&review.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	return review, nil
}

func ListProductReviews(ctx context.Context, db *sql.DB, productID int64, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM product_reviews WHERE product_id = $1 AND approved`, productID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, product_id, customer_name, rating, title, comment, approved, created_at
		FROM product_reviews
		WHERE product_id = $1 AND approved
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := db.QueryContext(ctx, query, productID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var review models.Review
		err := rows.Scan(
			&review.ID,
			&review.ProductID,
			&review.CustomerName,
			&review.Rating,
			&review.Title,
			&review.Comment,
			&review.Approved,
			&review.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(reviews, total, page, pageSize), nil
}

func ApproveReview(ctx context.Context, db *sql.DB, reviewID int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE product_reviews SET approved = TRUE WHERE id = $1`, reviewID)
	if err != nil {
		return fmt.Errorf("approve review: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrReviewNotFound
	}

	return nil
}
