package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/buildkart/buildkart/internal/domain/identity"
	"github.com/buildkart/buildkart/internal/repository"
)

const (
	upsertDistributorSQL = `
INSERT INTO distributors (id, name, city, state, active)
VALUES ($1, $2, $3, $4, TRUE)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name, city = EXCLUDED.city, state = EXCLUDED.state, active = TRUE`

	upsertProductSQL = `
INSERT INTO products (id, distributor_id, name, category, unit, price, stock, active, image)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
ON CONFLICT (id) DO UPDATE SET
    distributor_id = EXCLUDED.distributor_id, name = EXCLUDED.name,
    category = EXCLUDED.category, unit = EXCLUDED.unit, price = EXCLUDED.price,
    stock = EXCLUDED.stock, active = TRUE, image = EXCLUDED.image, updated_at = now()`

	upsertCouponSQL = `
INSERT INTO coupons (code, type, value, min_purchase, max_discount, active)
VALUES ($1, $2, $3, $4, $5, TRUE)
ON CONFLICT (code) DO UPDATE SET
    type = EXCLUDED.type, value = EXCLUDED.value, min_purchase = EXCLUDED.min_purchase,
    max_discount = EXCLUDED.max_discount, active = TRUE`

	upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, name, role, subject_id, active)
VALUES ($1, $2, $3, $4, $5, TRUE)
ON CONFLICT (id) DO UPDATE SET
    key_hash = EXCLUDED.key_hash, name = EXCLUDED.name, role = EXCLUDED.role,
    subject_id = EXCLUDED.subject_id, active = TRUE`
)

type productJSON struct {
	ID            string          `json:"id"`
	DistributorID string          `json:"distributorId"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	Image         string          `json:"image"`
}

type distributorRow struct {
	id, name, city, state string
}

var distributors = []distributorRow{
	{id: "DIST-MUM-01", name: "Sharma Building Supplies", city: "Mumbai", state: "Maharashtra"},
	{id: "DIST-BLR-01", name: "Nagarjuna Hardware & Cement", city: "Bengaluru", state: "Karnataka"},
}

func main() {
	var (
		databaseURL    string
		productsFile   string
		adminKey       string
		distributorKey string
		userKey        string
		apiKeyPepper   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or BUILDKART_SEED_ADMIN_KEY env)")
	flag.StringVar(&distributorKey, "distributor-key", "", "distributor API key to seed (or BUILDKART_SEED_DISTRIBUTOR_KEY env)")
	flag.StringVar(&userKey, "user-key", "", "user API key to seed (or BUILDKART_SEED_USER_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BUILDKART_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("BUILDKART_SEED_ADMIN_KEY")
	}
	if adminKey == "" {
		slog.Error("admin API key is required: set --admin-key or BUILDKART_SEED_ADMIN_KEY")
		os.Exit(1)
	}
	if distributorKey == "" {
		distributorKey = os.Getenv("BUILDKART_SEED_DISTRIBUTOR_KEY")
	}
	if userKey == "" {
		userKey = os.Getenv("BUILDKART_SEED_USER_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("BUILDKART_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	keys := seedKeys{admin: adminKey, distributor: distributorKey, user: userKey, pepper: apiKeyPepper}
	if err := run(ctx, databaseURL, productsFile, keys); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

type seedKeys struct {
	admin, distributor, user, pepper string
}

func run(ctx context.Context, databaseURL, productsFile string, keys seedKeys) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedDistributors(ctx, pool); err != nil {
		return errors.Wrap(err, "seed distributors")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAPIKeys(ctx, pool, keys); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func seedDistributors(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("upserting distributors", slog.Int("count", len(distributors)))

	for _, d := range distributors {
		if _, err := pool.Exec(ctx, upsertDistributorSQL, d.id, d.name, d.city, d.state); err != nil {
			return errors.Wrapf(err, "upsert distributor %s", d.id)
		}

		slog.Info("upserted distributor", slog.String("id", d.id), slog.String("name", d.name))
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		unit := p.Unit
		if unit == "" {
			unit = "piece"
		}
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.DistributorID, p.Name, p.Category, unit, p.Price, int32(p.Stock), p.Image,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	coupons := []struct {
		code, typ                       string
		value, minPurchase, maxDiscount decimal.Decimal
	}{
		{
			code: "WELCOME10", typ: "percentage",
			value:       decimal.NewFromInt(10),
			minPurchase: decimal.Zero,
			maxDiscount: decimal.NewFromInt(500),
		},
		{
			code: "FLAT200", typ: "fixed",
			value:       decimal.NewFromInt(200),
			minPurchase: decimal.NewFromInt(2000),
			maxDiscount: decimal.Zero,
		},
	}

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsertCouponSQL, c.code, c.typ, c.value, c.minPurchase, c.maxDiscount); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("type", c.typ))
	}

	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, keys seedKeys) error {
	slog.Info("seeding API keys")

	rows := []struct {
		id, raw, name, subjectID string
		role                     identity.Role
	}{
		{id: "admin-default", raw: keys.admin, name: "Default admin key", role: identity.RoleAdmin},
		{id: "distributor-default", raw: keys.distributor, name: "Default distributor key", role: identity.RoleDistributor, subjectID: distributors[0].id},
		{id: "user-default", raw: keys.user, name: "Default user key", role: identity.RoleUser, subjectID: "user-demo"},
	}

	for _, r := range rows {
		if r.raw == "" {
			continue
		}
		hash := identity.HashKey([]byte(keys.pepper), r.raw)
		if _, err := pool.Exec(ctx, upsertAPIKeySQL, r.id, hash, r.name, string(r.role), r.subjectID); err != nil {
			return errors.Wrapf(err, "upsert API key %s", r.id)
		}

		slog.Info("upserted API key", slog.String("id", r.id), slog.String("role", string(r.role)))
	}

	return nil
}
