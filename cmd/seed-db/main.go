package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/duyanhad/shop-api/internal/domain/product"
	"github.com/duyanhad/shop-api/internal/domain/user"
	"github.com/duyanhad/shop-api/internal/postgres"
)

type productJSON struct {
	Name        string          `json:"name"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Discount    int             `json:"discount"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	SizeStocks  map[string]int  `json:"size_stocks"`
}

func main() {
	var (
		databaseURL   string
		productsFile  string
		adminEmail    string
		adminPassword string
		pepper        string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&adminEmail, "admin-email", "", "admin account email to seed (or SHOP_SEED_ADMIN_EMAIL env)")
	flag.StringVar(&adminPassword, "admin-password", "", "admin account password (or SHOP_SEED_ADMIN_PASSWORD env)")
	flag.StringVar(&pepper, "password-pepper", "", "HMAC pepper for password hashing (or SHOP_PASSWORD_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminEmail == "" {
		adminEmail = os.Getenv("SHOP_SEED_ADMIN_EMAIL")
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("SHOP_SEED_ADMIN_PASSWORD")
	}
	if pepper == "" {
		pepper = os.Getenv("SHOP_PASSWORD_PEPPER")
	}
	if adminEmail != "" && adminPassword == "" {
		slog.Error("admin password is required when seeding an admin account")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, adminEmail, adminPassword, pepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, adminEmail, adminPassword, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if adminEmail != "" {
		if err := seedAdmin(ctx, postgres.NewUserRepository(pool), adminEmail, adminPassword, pepper); err != nil {
			return errors.Wrap(err, "seed admin account")
		}
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var entries []productJSON
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	existing, err := repo.List(ctx, "")
	if err != nil {
		return errors.Wrap(err, "list existing products")
	}
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.Brand+"/"+p.Name] = true
	}

	slog.Info("inserting products", slog.Int("count", len(entries)))

	for _, e := range entries {
		if seen[e.Brand+"/"+e.Name] {
			slog.Info("skipping existing product", slog.String("name", e.Name))
			continue
		}

		sizes := e.SizeStocks
		if len(sizes) == 0 {
			sizes = map[string]int{product.DefaultSize: 0}
		}
		p := &product.Product{
			Name:        e.Name,
			Brand:       e.Brand,
			Category:    e.Category,
			Price:       e.Price,
			Discount:    e.Discount,
			Description: e.Description,
			ImageURL:    e.ImageURL,
			SizeStocks:  sizes,
		}
		if err := repo.Create(ctx, p); err != nil {
			return errors.Wrapf(err, "insert product %q", e.Name)
		}

		slog.Info("inserted product", slog.Int64("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedAdmin(ctx context.Context, repo *postgres.UserRepository, email, password, pepper string) error {
	slog.Info("seeding admin account", slog.String("email", email))

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(password))

	u := &user.User{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hex.EncodeToString(mac.Sum(nil)),
		Role:         user.RoleAdmin,
	}
	if err := repo.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			slog.Info("admin account already exists", slog.String("email", email))
			return nil
		}
		return errors.Wrap(err, "create admin user")
	}

	slog.Info("created admin account", slog.Int64("id", u.ID), slog.String("email", email))
	return nil
}
