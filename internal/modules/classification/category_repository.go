package classification

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/bookkeeper/internal/domain"
)

// defaultCategories is the baseline catalogue seeded on startup. Rule and
// fallback categories are all present so classification never has to invent
// GAAP mappings at runtime.
var defaultCategories = []domain.Category{
	{Name: "Meals & Entertainment", GaapMap: "Expense:Meals"},
	{Name: "Software", GaapMap: "Expense:Software"},
	{Name: "Office Supplies", GaapMap: "Expense:Office"},
	{Name: "Transportation", GaapMap: "Expense:Transportation"},
	{Name: "Bank Fees", GaapMap: "Expense:BankFees"},
	{Name: "Interest Income", GaapMap: "Revenue:Interest"},
	{Name: "Shopping", GaapMap: "Expense:Shopping"},
	{Name: "Transfer", GaapMap: "Asset:Cash", IsTransfer: true},
	{Name: "Payment", GaapMap: "Liability:CreditCard", IsPayment: true},
	{Name: "Uncategorized Expense", GaapMap: "Expense:Uncategorized"},
	{Name: "Uncategorized Income", GaapMap: "Revenue:Uncategorized"},
}

// CategoryRepository handles category persistence
type CategoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *sql.DB, log zerolog.Logger) *CategoryRepository {
	return &CategoryRepository{
		db:  db,
		log: log.With().Str("repo", "categories").Logger(),
	}
}

// EnsureDefaults seeds the default catalogue, leaving existing rows alone
func (r *CategoryRepository) EnsureDefaults() error {
	for _, category := range defaultCategories {
		_, err := r.db.Exec(`
			INSERT INTO categories (id, name, gaap_map, is_transfer, is_payment)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (name) DO NOTHING`,
			uuid.New().String(), category.Name, category.GaapMap,
			boolToInt(category.IsTransfer), boolToInt(category.IsPayment))
		if err != nil {
			return fmt.Errorf("failed to seed category %s: %w", category.Name, err)
		}
	}
	r.log.Debug().Int("count", len(defaultCategories)).Msg("Default categories ensured")
	return nil
}

// ResolveOrCreate returns the category with the given name, creating a
// bare one when it does not exist yet.
func (r *CategoryRepository) ResolveOrCreate(name string) (*domain.Category, error) {
	category, err := r.GetByName(name)
	if err == nil {
		return category, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	created := &domain.Category{ID: uuid.New().String(), Name: name}
	_, err = r.db.Exec(`
		INSERT INTO categories (id, name, is_transfer, is_payment)
		VALUES (?, ?, 0, 0)
		ON CONFLICT (name) DO NOTHING`,
		created.ID, created.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create category %s: %w", name, err)
	}

	// Re-read so a concurrent creator's row wins over ours
	return r.GetByName(name)
}

// GetByName retrieves a category by its unique name
func (r *CategoryRepository) GetByName(name string) (*domain.Category, error) {
	return r.getOne(`name = ?`, name)
}

// GetByID retrieves a category by id
func (r *CategoryRepository) GetByID(id string) (*domain.Category, error) {
	return r.getOne(`id = ?`, id)
}

func (r *CategoryRepository) getOne(where string, arg any) (*domain.Category, error) {
	var category domain.Category
	var gaapMap sql.NullString
	var isTransfer, isPayment int

	err := r.db.QueryRow(`
		SELECT id, name, gaap_map, is_transfer, is_payment
		FROM categories
		WHERE `+where, arg).Scan(&category.ID, &category.Name, &gaapMap,
		&isTransfer, &isPayment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("category", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	category.GaapMap = gaapMap.String
	category.IsTransfer = isTransfer != 0
	category.IsPayment = isPayment != 0
	return &category, nil
}

// List returns all categories ordered by name
func (r *CategoryRepository) List() ([]domain.Category, error) {
	rows, err := r.db.Query(`
		SELECT id, name, gaap_map, is_transfer, is_payment
		FROM categories
		ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var category domain.Category
		var gaapMap sql.NullString
		var isTransfer, isPayment int
		err := rows.Scan(&category.ID, &category.Name, &gaapMap, &isTransfer, &isPayment)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		category.GaapMap = gaapMap.String
		category.IsTransfer = isTransfer != 0
		category.IsPayment = isPayment != 0
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
