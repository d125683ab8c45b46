package catalog

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cartelera-live/cartelera/internal/domain"
)

// Service applies catalog mutations and announces each one on the live
// channel. Publishing is fire-and-forget: a mutation that persisted is a
// success even if no kiosk is connected to hear about it.
type Service struct {
	store    Store
	bus      domain.Broadcaster
	validate *validator.Validate
	log      *zap.Logger
}

func NewService(store Store, bus domain.Broadcaster, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		bus:      bus,
		validate: validator.New(),
		log:      log,
	}
}

func (s *Service) CreateProduct(ctx context.Context, localID int64, in ProductInput) (*Product, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("validate product: %w", err)
	}
	p, err := s.store.CreateProduct(ctx, localID, in)
	if err != nil {
		return nil, err
	}
	s.announce(domain.EventProductCreated, localID, p)
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, localID, id int64, in ProductInput) (*Product, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("validate product: %w", err)
	}
	p, err := s.store.UpdateProduct(ctx, localID, id, in)
	if err != nil {
		return nil, err
	}
	s.announce(domain.EventProductUpdated, localID, p)
	return p, nil
}

func (s *Service) DeleteProduct(ctx context.Context, localID, id int64) error {
	if err := s.store.DeleteProduct(ctx, localID, id); err != nil {
		return err
	}
	s.announce(domain.EventProductDeleted, localID, map[string]int64{"id": id, "local_id": localID})
	return nil
}

func (s *Service) CreateCategory(ctx context.Context, localID int64, in CategoryInput) (*Category, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("validate category: %w", err)
	}
	c, err := s.store.CreateCategory(ctx, localID, in)
	if err != nil {
		return nil, err
	}
	s.announce(domain.EventCategoryCreated, localID, c)
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, localID, id int64, in CategoryInput) (*Category, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("validate category: %w", err)
	}
	c, err := s.store.UpdateCategory(ctx, localID, id, in)
	if err != nil {
		return nil, err
	}
	s.announce(domain.EventCategoryUpdated, localID, c)
	return c, nil
}

func (s *Service) SetCarousel(ctx context.Context, localID int64, in CarouselInput) (*CarouselConfig, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("validate carousel config: %w", err)
	}
	cfg, err := s.store.SetCarousel(ctx, localID, in)
	if err != nil {
		return nil, err
	}
	s.announce(domain.EventCarouselUpdated, localID, cfg)
	return cfg, nil
}

func (s *Service) GetCarousel(ctx context.Context, localID int64) (*CarouselConfig, error) {
	return s.store.GetCarousel(ctx, localID)
}

// ListProducts returns every product in the location, including unavailable
// ones; the admin panel edits the whole set, not the kiosk view.
func (s *Service) ListProducts(ctx context.Context, localID int64) ([]Product, error) {
	return s.store.ListProducts(ctx, localID)
}

func (s *Service) ListCategories(ctx context.Context, localID int64) ([]Category, error) {
	return s.store.ListCategories(ctx, localID)
}

// GetMenu serves the kiosk refetch path: the full menu on connect and after
// every reconnect, reconciling anything missed while offline.
func (s *Service) GetMenu(ctx context.Context, localID int64) (*Menu, error) {
	return s.store.GetMenu(ctx, localID)
}

// RefreshMenu pushes the whole menu read model to every display in the
// location. The coarse signal for bulk imports and manual resyncs, where
// per-row events would be noise.
func (s *Service) RefreshMenu(ctx context.Context, localID int64) (*Menu, error) {
	menu, err := s.store.GetMenu(ctx, localID)
	if err != nil {
		return nil, err
	}
	s.announce(domain.EventMenuUpdated, localID, menu)
	return menu, nil
}

// announce publishes a scoped event. Failures are logged and swallowed; the
// mutation already committed.
func (s *Service) announce(event string, localID int64, payload any) {
	env, err := domain.NewEnvelope(event, domain.Target{LocalID: localID}, payload)
	if err != nil {
		s.log.Error("encoding broadcast failed",
			zap.String("event", event), zap.Int64("local_id", localID), zap.Error(err))
		return
	}
	s.bus.Publish(env)
}
