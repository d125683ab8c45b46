package catalog

import "time"

// Product is one menu item. JSON field names match the frames kiosks and
// admin panels already consume.
type Product struct {
	ID          int64     `json:"id"`
	LocalID     int64     `json:"local_id"`
	CategoryID  *int64    `json:"categoria_id"`
	Name        string    `json:"nombre"`
	Description string    `json:"descripcion,omitempty"`
	Price       float64   `json:"precio"`
	ImageURL    string    `json:"imagen_url,omitempty"`
	Available   bool      `json:"disponible"`
	Featured    bool      `json:"destacado"`
	Order       int       `json:"orden"`
	UpdatedAt   time.Time `json:"fecha_actualizacion"`
}

// Category groups products inside one location's menu.
type Category struct {
	ID          int64  `json:"id"`
	LocalID     int64  `json:"local_id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion,omitempty"`
	Order       int    `json:"orden"`
	Active      bool   `json:"esta_activo"`
}

// CarouselConfig drives the kiosk's featured-product rotation.
type CarouselConfig struct {
	LocalID         int64 `json:"local_id"`
	Enabled         bool  `json:"habilitado"`
	IntervalSeconds int   `json:"intervalo_segundos"`
}

// Menu is the kiosk read model: every active category with its available
// products, fetched whole on (re)connect to reconcile missed events.
type Menu struct {
	LocalID    int64          `json:"local_id"`
	Categories []MenuCategory `json:"categorias"`
}

type MenuCategory struct {
	Category
	Products []Product `json:"productos"`
}

// ProductInput carries a create/update request.
type ProductInput struct {
	CategoryID  *int64  `json:"categoria_id"`
	Name        string  `json:"nombre"       validate:"required,min=1,max=100"`
	Description string  `json:"descripcion"  validate:"max=2000"`
	Price       float64 `json:"precio"       validate:"min=0"`
	ImageURL    string  `json:"imagen_url"   validate:"omitempty,url"`
	Available   *bool   `json:"disponible"`
	Featured    *bool   `json:"destacado"`
	Order       int     `json:"orden"        validate:"min=0"`
}

// CategoryInput carries a create/update request.
type CategoryInput struct {
	Name        string `json:"nombre"      validate:"required,min=1,max=50"`
	Description string `json:"descripcion" validate:"max=2000"`
	Order       int    `json:"orden"       validate:"min=0"`
}

// CarouselInput carries a carousel reconfiguration.
type CarouselInput struct {
	Enabled         bool `json:"habilitado"`
	IntervalSeconds int  `json:"intervalo_segundos" validate:"required,min=1,max=600"`
}
