package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"shopfront/internal/domain"
	"shopfront/internal/logging"
	"shopfront/internal/repository"
	productrepo "shopfront/internal/repository/product"
)

// Admin describes the administrator account created by Apply.
type Admin struct {
	Email    string
	Password string
	Phone    string
}

type productSeed struct {
	Category string
	Name     string
	Price    string
	Colors   []string
	Sizes    []string
	Stock    int
}

var demoProducts = []productSeed{
	{Category: "tees", Name: "Demo T-Shirt", Price: "19.99", Colors: []string{"white", "black"}, Sizes: []string{"S", "M", "L"}, Stock: 100},
	{Category: "hoodies", Name: "Demo Hoodie", Price: "49.00", Colors: []string{"grey"}, Sizes: []string{"M", "L", "XL"}, Stock: 40},
	{Category: "caps", Name: "Demo Cap", Price: "12.99", Colors: []string{"navy", "red"}, Sizes: []string{"one-size"}, Stock: 3},
}

// Apply inserts demo products and an admin account for manual testing. It is
// idempotent: products are matched by name and an existing admin email is
// left untouched.
func Apply(ctx context.Context, stores repository.Stores, admin Admin, logger *zap.Logger) error {
	logger = logging.OrNop(logger)

	if err := ensureAdmin(ctx, stores, admin, logger); err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}

	existing, err := stores.Products.List(ctx, productrepo.Filter{})
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	names := lo.Map(existing, func(p domain.Product, _ int) string { return p.Name })

	for _, p := range demoProducts {
		if lo.Contains(names, p.Name) {
			continue
		}
		created, err := stores.Products.Create(ctx, domain.Product{
			CategoryID: p.Category,
			Name:       p.Name,
			Price:      decimal.RequireFromString(p.Price),
			Currency:   "USD",
			Colors:     p.Colors,
			Sizes:      p.Sizes,
			Stock:      p.Stock,
		})
		if err != nil {
			return fmt.Errorf("create product %s: %w", p.Name, err)
		}
		logger.Info("seed product created", zap.String("product_id", created.ID), zap.String("name", p.Name))
	}
	return nil
}

func ensureAdmin(ctx context.Context, stores repository.Stores, admin Admin, logger *zap.Logger) error {
	if admin.Email == "" || admin.Password == "" {
		return errors.New("admin email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	phone := admin.Phone
	if phone == "" {
		phone = "+10000000000"
	}
	u, err := stores.Users.Create(ctx, domain.User{
		Email:        admin.Email,
		Phone:        phone,
		PasswordHash: string(hash),
		FirstName:    "Admin",
		Address:      domain.Address{Country: "US", City: "n/a", Street: "n/a"},
		Role:         domain.RoleAdmin,
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		logger.Info("seed admin exists", zap.String("email", admin.Email))
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("seed admin created", zap.String("user_id", u.ID))
	return nil
}
