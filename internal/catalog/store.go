package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cartelera-live/cartelera/internal/storage"
)

// ErrNotFound is returned when a row the caller addressed does not exist
// inside the location the caller is scoped to.
var ErrNotFound = errors.New("catalog: not found")

// Store is the persistence surface the service depends on; tests substitute
// an in-memory one.
type Store interface {
	CreateProduct(ctx context.Context, localID int64, in ProductInput) (*Product, error)
	UpdateProduct(ctx context.Context, localID, id int64, in ProductInput) (*Product, error)
	DeleteProduct(ctx context.Context, localID, id int64) error
	ListProducts(ctx context.Context, localID int64) ([]Product, error)

	CreateCategory(ctx context.Context, localID int64, in CategoryInput) (*Category, error)
	UpdateCategory(ctx context.Context, localID, id int64, in CategoryInput) (*Category, error)
	ListCategories(ctx context.Context, localID int64) ([]Category, error)

	GetCarousel(ctx context.Context, localID int64) (*CarouselConfig, error)
	SetCarousel(ctx context.Context, localID int64, in CarouselInput) (*CarouselConfig, error)

	GetMenu(ctx context.Context, localID int64) (*Menu, error)
}

// PgStore implements Store over the pgx pool.
type PgStore struct {
	db *storage.DB
}

func NewPgStore(db *storage.DB) *PgStore {
	return &PgStore{db: db}
}

const productColumns = `id, local_id, categoria_id, nombre, COALESCE(descripcion, ''),
	precio, COALESCE(imagen_url, ''), disponible, destacado, orden, fecha_actualizacion`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.LocalID, &p.CategoryID, &p.Name, &p.Description,
		&p.Price, &p.ImageURL, &p.Available, &p.Featured, &p.Order, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}

func (s *PgStore) CreateProduct(ctx context.Context, localID int64, in ProductInput) (*Product, error) {
	available := true
	if in.Available != nil {
		available = *in.Available
	}
	featured := false
	if in.Featured != nil {
		featured = *in.Featured
	}
	row := s.db.Pool.QueryRow(ctx, `
		INSERT INTO productos (local_id, categoria_id, nombre, descripcion, precio,
			imagen_url, disponible, destacado, orden)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+productColumns,
		localID, in.CategoryID, in.Name, in.Description, in.Price,
		in.ImageURL, available, featured, in.Order)
	return scanProduct(row)
}

func (s *PgStore) UpdateProduct(ctx context.Context, localID, id int64, in ProductInput) (*Product, error) {
	row := s.db.Pool.QueryRow(ctx, `
		UPDATE productos
		SET categoria_id = $3, nombre = $4, descripcion = $5, precio = $6,
			imagen_url = $7,
			disponible = COALESCE($8, disponible),
			destacado = COALESCE($9, destacado),
			orden = $10,
			fecha_actualizacion = now()
		WHERE id = $1 AND local_id = $2
		RETURNING `+productColumns,
		id, localID, in.CategoryID, in.Name, in.Description, in.Price,
		in.ImageURL, in.Available, in.Featured, in.Order)
	return scanProduct(row)
}

func (s *PgStore) DeleteProduct(ctx context.Context, localID, id int64) error {
	tag, err := s.db.Pool.Exec(ctx,
		`DELETE FROM productos WHERE id = $1 AND local_id = $2`, id, localID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) ListProducts(ctx context.Context, localID int64) ([]Product, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM productos
		WHERE local_id = $1
		ORDER BY orden, id`, localID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

const categoryColumns = `id, local_id, nombre, COALESCE(descripcion, ''), orden, esta_activo`

func scanCategory(row pgx.Row) (*Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.LocalID, &c.Name, &c.Description, &c.Order, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan category: %w", err)
	}
	return &c, nil
}

func (s *PgStore) CreateCategory(ctx context.Context, localID int64, in CategoryInput) (*Category, error) {
	row := s.db.Pool.QueryRow(ctx, `
		INSERT INTO categorias (local_id, nombre, descripcion, orden)
		VALUES ($1, $2, $3, $4)
		RETURNING `+categoryColumns,
		localID, in.Name, in.Description, in.Order)
	return scanCategory(row)
}

func (s *PgStore) UpdateCategory(ctx context.Context, localID, id int64, in CategoryInput) (*Category, error) {
	row := s.db.Pool.QueryRow(ctx, `
		UPDATE categorias
		SET nombre = $3, descripcion = $4, orden = $5
		WHERE id = $1 AND local_id = $2
		RETURNING `+categoryColumns,
		id, localID, in.Name, in.Description, in.Order)
	return scanCategory(row)
}

func (s *PgStore) ListCategories(ctx context.Context, localID int64) ([]Category, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+categoryColumns+`
		FROM categorias
		WHERE local_id = $1 AND esta_activo
		ORDER BY orden, id`, localID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PgStore) GetCarousel(ctx context.Context, localID int64) (*CarouselConfig, error) {
	var cfg CarouselConfig
	err := s.db.Pool.QueryRow(ctx, `
		SELECT local_id, habilitado, intervalo_segundos
		FROM configuracion_carrusel
		WHERE local_id = $1`, localID).
		Scan(&cfg.LocalID, &cfg.Enabled, &cfg.IntervalSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		// Absent row means the defaults apply.
		return &CarouselConfig{LocalID: localID, Enabled: true, IntervalSeconds: 8}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get carousel config: %w", err)
	}
	return &cfg, nil
}

func (s *PgStore) SetCarousel(ctx context.Context, localID int64, in CarouselInput) (*CarouselConfig, error) {
	var cfg CarouselConfig
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO configuracion_carrusel (local_id, habilitado, intervalo_segundos)
		VALUES ($1, $2, $3)
		ON CONFLICT (local_id) DO UPDATE
		SET habilitado = EXCLUDED.habilitado,
			intervalo_segundos = EXCLUDED.intervalo_segundos,
			fecha_actualizacion = now()
		RETURNING local_id, habilitado, intervalo_segundos`,
		localID, in.Enabled, in.IntervalSeconds).
		Scan(&cfg.LocalID, &cfg.Enabled, &cfg.IntervalSeconds)
	if err != nil {
		return nil, fmt.Errorf("set carousel config: %w", err)
	}
	return &cfg, nil
}

// GetMenu assembles the kiosk read model in two queries: active categories,
// then available products grouped client-side. Uncategorized products land
// in a synthetic trailing group.
func (s *PgStore) GetMenu(ctx context.Context, localID int64) (*Menu, error) {
	categories, err := s.ListCategories(ctx, localID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM productos
		WHERE local_id = $1 AND disponible
		ORDER BY orden, id`, localID)
	if err != nil {
		return nil, fmt.Errorf("list menu products: %w", err)
	}
	defer rows.Close()

	byCategory := make(map[int64][]Product)
	var uncategorized []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		if p.CategoryID == nil {
			uncategorized = append(uncategorized, *p)
			continue
		}
		byCategory[*p.CategoryID] = append(byCategory[*p.CategoryID], *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	menu := &Menu{LocalID: localID, Categories: make([]MenuCategory, 0, len(categories))}
	for _, c := range categories {
		menu.Categories = append(menu.Categories, MenuCategory{
			Category: c,
			Products: byCategory[c.ID],
		})
	}
	if len(uncategorized) > 0 {
		menu.Categories = append(menu.Categories, MenuCategory{
			Category: Category{LocalID: localID, Name: "Otros", Active: true},
			Products: uncategorized,
		})
	}
	return menu, nil
}
